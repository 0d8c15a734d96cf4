package model

import "time"

// DenormMismatch is the persisted current-state row for one
// (content key, mismatch type) pair. It is the authoritative record of what
// is true right now, separate from the historical report archive. Rows are
// never deleted; closed mismatches remain queryable.
type DenormMismatch struct {
	MismatchID     string        `json:"mismatch_id"`
	Key            Key           `json:"key"`
	RefType        ReferenceType `json:"ref_type"`
	Type           MismatchType  `json:"type"`
	State          MismatchState `json:"state"`
	ObservedValue  string        `json:"observed_value"`
	ReferenceValue string        `json:"reference_value"`
	Notes          string        `json:"notes,omitempty"`
	IgnoreStatus   IgnoreStatus  `json:"ignore_status"`
	IssueIDs       []string      `json:"issue_ids,omitempty"`
	FirstDetected  time.Time     `json:"first_detected"`
	LastObserved   time.Time     `json:"last_observed"`
	LastReportID   ReportID      `json:"last_report_id"`
}

// DataSource returns the data source of the reference type that produced
// the row.
func (d DenormMismatch) DataSource() DataSource {
	return d.RefType.DataSource()
}
