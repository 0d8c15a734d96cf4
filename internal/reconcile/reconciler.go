// Package reconcile implements the mismatch lifecycle: it folds each new
// comparison report into the denormalized current-state rows, opening,
// refreshing and closing mismatches, and exposes the review mutation API.
package reconcile

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/legis-watch/spotcheck-cli/internal/model"
	"github.com/legis-watch/spotcheck-cli/internal/store"
)

// Reconciler persists comparison reports and maintains the current-state
// mismatch rows. Safe for concurrent use.
type Reconciler struct {
	store store.Store
	locks keyLocks
	log   *zap.Logger
}

// New creates a Reconciler on top of a store.
func New(st store.Store) *Reconciler {
	return &Reconciler{
		store: st,
		log:   zap.L().With(zap.String("component", "reconciler")),
	}
}

// SaveReport archives the report and reconciles every observed key against
// the current-state rows, all inside one store transaction. Keys absent from
// the report are left untouched.
func (rc *Reconciler) SaveReport(ctx context.Context, r *model.Report) error {
	if r == nil {
		return &model.InvalidArgumentError{Field: "report", Reason: "must not be nil"}
	}
	if !r.ID.RefType.Valid() {
		return &model.InvalidArgumentError{Field: "report.ref_type", Reason: "unknown reference type"}
	}

	err := rc.store.ReconcileReport(ctx, func(tx store.ReportTx) error {
		if err := tx.ArchiveReport(ctx, r); err != nil {
			return err
		}
		for _, key := range r.SortedKeys() {
			unlock := rc.locks.lock(key)
			err := rc.reconcileKey(ctx, tx, r, key)
			unlock()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return eris.Wrapf(err, "reconcile: save report %s", r.ID.RefType)
	}

	rc.log.Info("report saved",
		zap.String("ref_type", string(r.ID.RefType)),
		zap.Time("report_time", r.ID.ReportDateTime),
		zap.Int("observed", r.ObservedCount()),
		zap.Int("mismatches", r.MismatchCount()),
	)
	return nil
}

// reconcileKey folds one observation into the current rows for its key:
// unseen mismatch types open new rows, re-detected types refresh in place
// (reopening closed rows), and open rows whose type is absent from the
// observation close.
func (rc *Reconciler) reconcileKey(ctx context.Context, tx store.ReportTx, r *model.Report, key model.Key) error {
	obs := r.Observations[key]
	reportTime := r.ID.ReportDateTime

	current, err := tx.CurrentMismatches(ctx, key)
	if err != nil {
		return err
	}
	byType := make(map[model.MismatchType]model.DenormMismatch, len(current))
	for _, row := range current {
		byType[row.Type] = row
	}

	for _, mt := range sortedTypes(obs.Mismatches) {
		m := obs.Mismatches[mt]
		row, exists := byType[mt]
		if !exists {
			err := tx.InsertMismatch(ctx, model.DenormMismatch{
				MismatchID:     uuid.New().String(),
				Key:            key,
				RefType:        r.ID.RefType,
				Type:           mt,
				State:          model.StateOpen,
				ObservedValue:  m.ObservedValue,
				ReferenceValue: m.ReferenceValue,
				Notes:          m.Notes,
				IgnoreStatus:   model.NotIgnored,
				FirstDetected:  reportTime,
				LastObserved:   reportTime,
				LastReportID:   r.ID,
			})
			if err != nil {
				return err
			}
			continue
		}
		if reportTime.Before(row.LastObserved) {
			rc.log.Debug("stale report, row untouched",
				zap.String("key", key.String()), zap.String("type", string(mt)))
			continue
		}
		// Re-detection. A closed row reopens; its ignore status and issue
		// ids carry over untouched.
		row.State = model.StateOpen
		row.RefType = r.ID.RefType
		row.ObservedValue = m.ObservedValue
		row.ReferenceValue = m.ReferenceValue
		row.Notes = m.Notes
		row.LastObserved = reportTime
		row.LastReportID = r.ID
		if err := tx.UpdateMismatch(ctx, row); err != nil {
			return err
		}
	}

	// Open rows with no mismatch of their type in this observation resolve.
	for _, row := range current {
		if _, seen := obs.Mismatches[row.Type]; seen {
			continue
		}
		if row.State != model.StateOpen || reportTime.Before(row.LastObserved) {
			continue
		}
		row.State = model.StateClosed
		row.RefType = r.ID.RefType
		row.LastObserved = reportTime
		row.LastReportID = r.ID
		if err := tx.UpdateMismatch(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func sortedTypes(ms map[model.MismatchType]model.Mismatch) []model.MismatchType {
	types := make([]model.MismatchType, 0, len(ms))
	for mt := range ms {
		types = append(types, mt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// SetIgnoreStatus updates the review-suppression status of one mismatch.
// An unset or malformed status is a contract violation.
func (rc *Reconciler) SetIgnoreStatus(ctx context.Context, mismatchID string, status model.IgnoreStatus) error {
	if mismatchID == "" {
		return &model.InvalidArgumentError{Field: "mismatch_id", Reason: "must not be empty"}
	}
	if status.IsZero() {
		return &model.InvalidArgumentError{Field: "ignore_status", Reason: "must not be unset"}
	}
	if !status.Valid() {
		return &model.InvalidArgumentError{Field: "ignore_status", Reason: "unknown ignore kind"}
	}
	return rc.store.SetIgnoreStatus(ctx, mismatchID, status)
}

// AddIssueID attaches a tracking-issue id to a mismatch. Set semantics:
// re-adding an attached id is a no-op.
func (rc *Reconciler) AddIssueID(ctx context.Context, mismatchID, issueID string) error {
	if err := validateIssueArgs(mismatchID, issueID); err != nil {
		return err
	}
	return rc.store.AddIssueID(ctx, mismatchID, issueID)
}

// DeleteIssueID detaches a tracking-issue id. Deleting an absent id is a
// no-op.
func (rc *Reconciler) DeleteIssueID(ctx context.Context, mismatchID, issueID string) error {
	if err := validateIssueArgs(mismatchID, issueID); err != nil {
		return err
	}
	return rc.store.DeleteIssueID(ctx, mismatchID, issueID)
}

func validateIssueArgs(mismatchID, issueID string) error {
	if mismatchID == "" {
		return &model.InvalidArgumentError{Field: "mismatch_id", Reason: "must not be empty"}
	}
	if issueID == "" {
		return &model.InvalidArgumentError{Field: "issue_id", Reason: "must not be empty"}
	}
	return nil
}
