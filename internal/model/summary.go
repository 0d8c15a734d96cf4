package model

import "time"

// ReportSummary tallies a report's mismatches by state and by type, in both
// groupings, plus the ignored subset. Built in a single pass over the
// report's observations.
type ReportSummary struct {
	ReportID      ReportID                                 `json:"report_id"`
	Notes         string                                   `json:"notes,omitempty"`
	ObservedCount int                                      `json:"observed_count"`
	MismatchCount int                                      `json:"mismatch_count"`
	IgnoredCount  int                                      `json:"ignored_count"`
	ByState       map[MismatchState]int                    `json:"by_state"`
	ByType        map[MismatchType]int                     `json:"by_type"`
	TypeByState   map[MismatchType]map[MismatchState]int   `json:"type_by_state"`
	StateByType   map[MismatchState]map[MismatchType]int   `json:"state_by_type"`
}

// Summary walks all observations once and tallies counts by state and by
// (type x state) in both directions. Ignored mismatches are counted
// separately and excluded from the per-dimension tallies.
func (r *Report) Summary() *ReportSummary {
	now := r.ID.ReportDateTime
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s := &ReportSummary{
		ReportID:      r.ID,
		Notes:         r.Notes,
		ObservedCount: len(r.Observations),
		ByState:       make(map[MismatchState]int),
		ByType:        make(map[MismatchType]int),
		TypeByState:   make(map[MismatchType]map[MismatchState]int),
		StateByType:   make(map[MismatchState]map[MismatchType]int),
	}
	for _, st := range AllMismatchStates() {
		s.ByState[st] = 0
	}

	for _, obs := range r.Observations {
		for _, mm := range obs.Mismatches {
			s.MismatchCount++
			if mm.Ignored(now) {
				s.IgnoredCount++
				continue
			}
			st := mm.State
			if st == "" {
				st = StateOpen
			}
			s.ByState[st]++
			s.ByType[mm.Type]++
			if s.TypeByState[mm.Type] == nil {
				s.TypeByState[mm.Type] = make(map[MismatchState]int)
			}
			s.TypeByState[mm.Type][st]++
			if s.StateByType[st] == nil {
				s.StateByType[st] = make(map[MismatchType]int)
			}
			s.StateByType[st][mm.Type]++
		}
	}
	return s
}

// OpenMismatchCount counts open mismatches across all observations.
// When ignored is true it counts only suppressed mismatches, otherwise only
// unsuppressed ones.
func (r *Report) OpenMismatchCount(ignored bool) int {
	now := r.ID.ReportDateTime
	if now.IsZero() {
		now = time.Now().UTC()
	}
	n := 0
	for _, obs := range r.Observations {
		for _, mm := range obs.Mismatches {
			if mm.State != "" && mm.State != StateOpen {
				continue
			}
			if mm.Ignored(now) == ignored {
				n++
			}
		}
	}
	return n
}
