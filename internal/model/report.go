// Package model holds the spotcheck domain types: content keys, reference
// identities, mismatches, observations and reports. Pure data construction,
// no side effects.
package model

import "sort"

// Observation is the full comparison result for one content item in one run:
// the set of mismatches found, keyed by type so duplicates cannot occur.
type Observation struct {
	ReferenceID ReferenceID               `json:"reference_id"`
	Key         Key                       `json:"key"`
	Mismatches  map[MismatchType]Mismatch `json:"mismatches"`
}

// NewObservation builds an empty observation for a content key. An empty
// observation is meaningful: it records that the key was checked and no
// discrepancies were found.
func NewObservation(refID ReferenceID, key Key) *Observation {
	return &Observation{
		ReferenceID: refID,
		Key:         key,
		Mismatches:  make(map[MismatchType]Mismatch),
	}
}

// AddMismatch records a mismatch, replacing any prior mismatch of the same type.
func (o *Observation) AddMismatch(m Mismatch) {
	if o.Mismatches == nil {
		o.Mismatches = make(map[MismatchType]Mismatch)
	}
	o.Mismatches[m.Type] = m
}

// Report is the full set of observations produced by one comparison run.
// At most one observation per content key; later additions for the same key
// overwrite earlier ones.
type Report struct {
	ID           ReportID             `json:"id"`
	Notes        string               `json:"notes,omitempty"`
	Observations map[Key]*Observation `json:"observations"`
}

// NewReport builds an empty report for the given run identity.
func NewReport(id ReportID, notes string) *Report {
	return &Report{
		ID:           id,
		Notes:        notes,
		Observations: make(map[Key]*Observation),
	}
}

// AddObservation adds an observation to the report. A nil observation or an
// observation with an unset key violates the caller contract.
func (r *Report) AddObservation(o *Observation) error {
	if o == nil {
		return &InvalidArgumentError{Field: "observation", Reason: "must not be nil"}
	}
	if o.Key.IsZero() {
		return &InvalidArgumentError{Field: "observation.key", Reason: "must not be empty"}
	}
	if r.Observations == nil {
		r.Observations = make(map[Key]*Observation)
	}
	r.Observations[o.Key] = o
	return nil
}

// AddObservations adds each observation in order; the first contract
// violation aborts the batch.
func (r *Report) AddObservations(obs []*Observation) error {
	for _, o := range obs {
		if err := r.AddObservation(o); err != nil {
			return err
		}
	}
	return nil
}

// AddRefMissingObservation records that a content item present in observed
// data has no counterpart in the reference dataset.
func (r *Report) AddRefMissingObservation(key Key) error {
	o := NewObservation(r.ID.ReferenceID(), key)
	o.AddMismatch(NewMismatch(MismatchReferenceDataMissing, key.ID, ""))
	return r.AddObservation(o)
}

// AddObservedMissingObservation records that a content item present in the
// reference dataset has no counterpart in observed data.
func (r *Report) AddObservedMissingObservation(key Key) error {
	o := NewObservation(r.ID.ReferenceID(), key)
	o.AddMismatch(NewMismatch(MismatchObservedDataMissing, "", key.ID))
	return r.AddObservation(o)
}

// ObservedCount returns the number of content items observed.
func (r *Report) ObservedCount() int {
	return len(r.Observations)
}

// MismatchCount returns the total number of mismatches across all observations.
func (r *Report) MismatchCount() int {
	n := 0
	for _, o := range r.Observations {
		n += len(o.Mismatches)
	}
	return n
}

// SortedKeys returns the report's content keys in canonical order.
func (r *Report) SortedKeys() []Key {
	keys := make([]Key, 0, len(r.Observations))
	for k := range r.Observations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
