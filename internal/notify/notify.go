// Package notify delivers spotcheck events to humans: completed report
// digests and run failures. Delivery is best effort and never blocks or
// fails a comparison run.
package notify

import (
	"context"
	"time"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

// EventKind identifies the kind of notification.
type EventKind string

const (
	EventReportCompleted EventKind = "report_completed"
	EventRunFailed       EventKind = "run_failed"
)

// ReportDigest is the payload for a completed report notification.
type ReportDigest struct {
	RefType        model.ReferenceType `json:"ref_type"`
	ReferenceTime  time.Time           `json:"reference_time"`
	ReportTime     time.Time           `json:"report_time"`
	ObservedCount  int                 `json:"observed_count"`
	OpenMismatches int                 `json:"open_mismatches"`
	Notes          string              `json:"notes,omitempty"`
}

// Notifier is the sink for spotcheck events.
type Notifier interface {
	// ReportCompleted announces a successfully saved report.
	ReportCompleted(ctx context.Context, digest ReportDigest)

	// RunFailed announces a failed comparison run. fatal marks failures that
	// aborted the run rather than degrading it.
	RunFailed(ctx context.Context, refType model.ReferenceType, err error, fatal bool)
}
