// Package store persists spotcheck state: the denormalized current-state
// mismatch rows, the append-only report archive, and the run log. Two
// drivers implement the same contract: Postgres (pgxpool) for production and
// SQLite (modernc) for local runs and integration tests.
package store

import (
	"context"
	"time"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

// LimitOffset is the pagination contract for mismatch queries.
type LimitOffset struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// All is the sentinel requesting unpaginated retrieval.
var All = LimitOffset{Limit: -1}

// IsAll reports whether the page spec requests every row.
func (lo LimitOffset) IsAll() bool {
	return lo.Limit < 0
}

// MismatchQuery filters denormalized mismatch rows. Zero-valued fields are
// not applied. The same predicate backs both row retrieval and the summary
// aggregates.
type MismatchQuery struct {
	// ObservedFrom/ObservedTo bound last_observed to [from, to).
	ObservedFrom time.Time             `json:"observed_from,omitempty"`
	ObservedTo   time.Time             `json:"observed_to,omitempty"`
	Source       model.DataSource      `json:"source,omitempty"`
	ContentTypes []model.ContentType   `json:"content_types,omitempty"`
	States       []model.MismatchState `json:"states,omitempty"`
	IgnoreKinds  []model.IgnoreKind    `json:"ignore_kinds,omitempty"`
	Types        []model.MismatchType  `json:"types,omitempty"`
}

// MismatchPage is one page of query results plus the unpaginated total.
type MismatchPage struct {
	Results []model.DenormMismatch `json:"results"`
	Total   int                    `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// StatusSummary counts mismatches grouped by lifecycle state.
type StatusSummary struct {
	Counts map[model.MismatchState]int `json:"counts"`
	Total  int                         `json:"total"`
}

// TypeSummary counts mismatches grouped by mismatch type.
type TypeSummary struct {
	Counts map[model.MismatchType]int `json:"counts"`
	Total  int                        `json:"total"`
}

// ContentTypeSummary counts mismatches grouped by content category and state.
type ContentTypeSummary struct {
	Counts map[model.ContentType]map[model.MismatchState]int `json:"counts"`
	Total  int                                               `json:"total"`
}

// ReportTx is the transactional surface the reconciler drives while saving
// one report. Everything done through it commits or rolls back atomically.
type ReportTx interface {
	// CurrentMismatches loads the current-state rows for one content key,
	// all types, any state.
	CurrentMismatches(ctx context.Context, key model.Key) ([]model.DenormMismatch, error)

	// InsertMismatch creates a current-state row for a first detection.
	InsertMismatch(ctx context.Context, row model.DenormMismatch) error

	// UpdateMismatch overwrites an existing current-state row by mismatch id.
	UpdateMismatch(ctx context.Context, row model.DenormMismatch) error

	// ArchiveReport appends the report header and its observations to the
	// historical archive.
	ArchiveReport(ctx context.Context, r *model.Report) error
}

// RunEntry is one row of the run log.
type RunEntry struct {
	ID            int64               `json:"id"`
	RefType       model.ReferenceType `json:"ref_type"`
	Comparator    string              `json:"comparator"`
	Status        string              `json:"status"`
	StartedAt     time.Time           `json:"started_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	ObservedCount int                 `json:"observed_count"`
	MismatchCount int                 `json:"mismatch_count"`
	Error         string              `json:"error,omitempty"`
}

// Run log statuses.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunSkipped  = "skipped"
	RunFailed   = "failed"
)

// RunResult carries the counts recorded when a run completes.
type RunResult struct {
	ObservedCount int `json:"observed_count"`
	MismatchCount int `json:"mismatch_count"`
}

// Store is the persistence contract for the spotcheck engine.
type Store interface {
	// ReconcileReport runs fn inside a single transaction. The reconciler
	// uses it so a report's row updates are all-or-nothing.
	ReconcileReport(ctx context.Context, fn func(tx ReportTx) error) error

	// Query service.
	GetMismatches(ctx context.Context, q MismatchQuery, page LimitOffset) (*MismatchPage, error)
	GetMismatch(ctx context.Context, mismatchID string) (*model.DenormMismatch, error)
	StatusSummary(ctx context.Context, q MismatchQuery) (*StatusSummary, error)
	TypeSummary(ctx context.Context, q MismatchQuery) (*TypeSummary, error)
	ContentTypeSummary(ctx context.Context, q MismatchQuery) (*ContentTypeSummary, error)

	// Mutation API. Each returns model.NotFoundError for an unknown id.
	SetIgnoreStatus(ctx context.Context, mismatchID string, status model.IgnoreStatus) error
	AddIssueID(ctx context.Context, mismatchID, issueID string) error
	DeleteIssueID(ctx context.Context, mismatchID, issueID string) error

	// Run log.
	StartRun(ctx context.Context, refType model.ReferenceType, comparator string) (int64, error)
	CompleteRun(ctx context.Context, runID int64, result RunResult) error
	SkipRun(ctx context.Context, runID int64, reason string) error
	FailRun(ctx context.Context, runID int64, errMsg string) error
	RecentRuns(ctx context.Context, limit int) ([]RunEntry, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
