package model

import (
	"sort"
	"time"
)

// MismatchType is a closed enumeration of discrepancy categories. Each type
// is scoped to one content category.
type MismatchType string

const (
	// Bill checks.
	MismatchBillSponsor    MismatchType = "bill_sponsor"
	MismatchBillCosponsor  MismatchType = "bill_cosponsor"
	MismatchBillTitle      MismatchType = "bill_title"
	MismatchBillActionDate MismatchType = "bill_action_date"
	MismatchBillFullText   MismatchType = "bill_full_text"

	// Calendar checks.
	MismatchActiveListCalDate MismatchType = "active_list_cal_date"
	MismatchFloorCalEntry     MismatchType = "floor_cal_entry"

	// Agenda checks.
	MismatchAgendaCommittee   MismatchType = "agenda_committee_name"
	MismatchAgendaMeetingTime MismatchType = "agenda_meeting_time"

	// One-sided observations.
	MismatchReferenceDataMissing MismatchType = "reference_data_missing"
	MismatchObservedDataMissing  MismatchType = "observed_data_missing"
)

var mismatchTypeContent = map[MismatchType]ContentType{
	MismatchBillSponsor:       ContentBill,
	MismatchBillCosponsor:     ContentBill,
	MismatchBillTitle:         ContentBill,
	MismatchBillActionDate:    ContentBill,
	MismatchBillFullText:      ContentBill,
	MismatchActiveListCalDate: ContentCalendar,
	MismatchFloorCalEntry:     ContentCalendar,
	MismatchAgendaCommittee:   ContentAgenda,
	MismatchAgendaMeetingTime: ContentAgenda,
}

// ContentType returns the content category the mismatch type is scoped to.
// The missing-data types apply to every category and return the empty value.
func (mt MismatchType) ContentType() (ContentType, bool) {
	ct, ok := mismatchTypeContent[mt]
	return ct, ok
}

// MismatchState is the lifecycle state of a persisted mismatch. There is no
// terminal state; a row can cycle between open and closed indefinitely.
type MismatchState string

const (
	StateOpen   MismatchState = "open"
	StateClosed MismatchState = "closed"
)

// AllMismatchStates returns the persisted lifecycle states.
func AllMismatchStates() []MismatchState {
	return []MismatchState{StateOpen, StateClosed}
}

// IgnoreKind enumerates the ways a mismatch can be suppressed from review.
type IgnoreKind string

const (
	IgnoreNever         IgnoreKind = "not_ignored"
	IgnoreOnce          IgnoreKind = "ignore_once"
	IgnoreUntilResolved IgnoreKind = "ignore_until_resolved"
	IgnorePermanently   IgnoreKind = "ignore_permanently"
	IgnoreUntilDate     IgnoreKind = "ignore_date"
)

// IgnoreStatus annotates a mismatch with a review-suppression rule. It is
// orthogonal to the lifecycle state and preserved across state transitions.
// The zero value is "unset" and is rejected by the mutation API.
type IgnoreStatus struct {
	Kind IgnoreKind `json:"kind"`
	// Until is only meaningful for IgnoreUntilDate.
	Until time.Time `json:"until,omitempty"`
}

// NotIgnored is the default status for newly detected mismatches.
var NotIgnored = IgnoreStatus{Kind: IgnoreNever}

// IgnoredUntil builds an IgnoreUntilDate status.
func IgnoredUntil(d time.Time) IgnoreStatus {
	return IgnoreStatus{Kind: IgnoreUntilDate, Until: d}
}

// IsZero reports whether the status is unset.
func (s IgnoreStatus) IsZero() bool {
	return s.Kind == ""
}

// Valid reports whether the status carries a defined kind.
func (s IgnoreStatus) Valid() bool {
	switch s.Kind {
	case IgnoreNever, IgnoreOnce, IgnoreUntilResolved, IgnorePermanently:
		return true
	case IgnoreUntilDate:
		return !s.Until.IsZero()
	}
	return false
}

// Ignored reports whether the status suppresses the mismatch at time now.
func (s IgnoreStatus) Ignored(now time.Time) bool {
	switch s.Kind {
	case IgnoreOnce, IgnoreUntilResolved, IgnorePermanently:
		return true
	case IgnoreUntilDate:
		return now.Before(s.Until)
	}
	return false
}

// Mismatch is a single detected discrepancy between observed and reference
// data for one content item and one discrepancy category.
type Mismatch struct {
	Type           MismatchType  `json:"type"`
	ObservedValue  string        `json:"observed_value"`
	ReferenceValue string        `json:"reference_value"`
	IgnoreStatus   IgnoreStatus  `json:"ignore_status"`
	State          MismatchState `json:"state"`
	Notes          string        `json:"notes,omitempty"`
	IssueIDs       []string      `json:"issue_ids,omitempty"`
}

// NewMismatch builds a mismatch in the default (not ignored) status.
func NewMismatch(mt MismatchType, observed, reference string) Mismatch {
	return Mismatch{
		Type:           mt,
		ObservedValue:  observed,
		ReferenceValue: reference,
		IgnoreStatus:   NotIgnored,
	}
}

// Ignored reports whether the mismatch is currently suppressed.
func (m Mismatch) Ignored(now time.Time) bool {
	return m.IgnoreStatus.Ignored(now)
}

// NormalizeIssueIDs sorts and de-duplicates an issue id list in place,
// returning the normalized slice. Order of ids is not significant.
func NormalizeIssueIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
