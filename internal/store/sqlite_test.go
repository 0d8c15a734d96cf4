package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legis-watch/spotcheck-cli/internal/model"
	"github.com/legis-watch/spotcheck-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "spotcheck.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedMismatch(t *testing.T, s *store.SQLiteStore, row model.DenormMismatch) model.DenormMismatch {
	t.Helper()
	if row.MismatchID == "" {
		row.MismatchID = uuid.New().String()
	}
	if row.State == "" {
		row.State = model.StateOpen
	}
	if row.IgnoreStatus.IsZero() {
		row.IgnoreStatus = model.NotIgnored
	}
	err := s.ReconcileReport(context.Background(), func(tx store.ReportTx) error {
		return tx.InsertMismatch(context.Background(), row)
	})
	require.NoError(t, err)
	return row
}

func billRow(printNo string, mt model.MismatchType, observed time.Time) model.DenormMismatch {
	key := model.BillKey(printNo, 2017)
	return model.DenormMismatch{
		Key:            key,
		RefType:        model.RefDaybreakBill,
		Type:           mt,
		ObservedValue:  "obs",
		ReferenceValue: "ref",
		FirstDetected:  observed,
		LastObserved:   observed,
		LastReportID: model.ReportID{
			RefType:        model.RefDaybreakBill,
			RefDateTime:    observed,
			ReportDateTime: observed,
		},
	}
}

func TestSQLiteReconcileReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("insert then read back", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		base := time.Date(2017, 3, 1, 12, 0, 0, 0, time.UTC)
		row := seedMismatch(t, s, billRow("S100", model.MismatchBillTitle, base))

		err := s.ReconcileReport(ctx, func(tx store.ReportTx) error {
			got, err := tx.CurrentMismatches(ctx, row.Key)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, row.MismatchID, got[0].MismatchID)
			assert.Equal(t, row.Key, got[0].Key)
			assert.Equal(t, model.StateOpen, got[0].State)
			assert.Equal(t, model.IgnoreNever, got[0].IgnoreStatus.Kind)
			assert.True(t, got[0].LastObserved.Equal(base))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("update overwrites row state", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		base := time.Date(2017, 3, 1, 12, 0, 0, 0, time.UTC)
		row := seedMismatch(t, s, billRow("S101", model.MismatchBillTitle, base))

		row.State = model.StateClosed
		row.IssueIDs = []string{"OL-123"}
		row.LastObserved = base.Add(time.Hour)
		err := s.ReconcileReport(ctx, func(tx store.ReportTx) error {
			return tx.UpdateMismatch(ctx, row)
		})
		require.NoError(t, err)

		got, err := s.GetMismatch(ctx, row.MismatchID)
		require.NoError(t, err)
		assert.Equal(t, model.StateClosed, got.State)
		assert.Equal(t, []string{"OL-123"}, got.IssueIDs)
		assert.True(t, got.LastObserved.Equal(base.Add(time.Hour)))
	})

	t.Run("update unknown id is not found", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		err := s.ReconcileReport(ctx, func(tx store.ReportTx) error {
			return tx.UpdateMismatch(ctx, model.DenormMismatch{MismatchID: "nope"})
		})
		assert.True(t, model.IsNotFound(err))
	})

	t.Run("callback error rolls back", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		base := time.Date(2017, 3, 1, 12, 0, 0, 0, time.UTC)
		row := billRow("S102", model.MismatchBillTitle, base)
		row.MismatchID = uuid.New().String()
		row.State = model.StateOpen
		row.IgnoreStatus = model.NotIgnored

		sentinel := assert.AnError
		err := s.ReconcileReport(ctx, func(tx store.ReportTx) error {
			require.NoError(t, tx.InsertMismatch(ctx, row))
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		_, err = s.GetMismatch(ctx, row.MismatchID)
		assert.True(t, model.IsNotFound(err))
	})

	t.Run("archive report with clean observation", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		id := model.ReportID{
			RefType:        model.RefDaybreakBill,
			RefDateTime:    time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC),
			ReportDateTime: time.Date(2017, 3, 1, 6, 0, 0, 0, time.UTC),
		}
		r := model.NewReport(id, "nightly")
		clean := model.NewObservation(id.ReferenceID(), model.BillKey("S200", 2017))
		require.NoError(t, r.AddObservation(clean))
		dirty := model.NewObservation(id.ReferenceID(), model.BillKey("S201", 2017))
		dirty.AddMismatch(model.NewMismatch(model.MismatchBillSponsor, "SMITH", "JONES"))
		require.NoError(t, r.AddObservation(dirty))

		err := s.ReconcileReport(ctx, func(tx store.ReportTx) error {
			return tx.ArchiveReport(ctx, r)
		})
		require.NoError(t, err)

		// Archiving the same report id again violates the uniqueness of
		// (ref_type, ref_date_time, report_date_time).
		err = s.ReconcileReport(ctx, func(tx store.ReportTx) error {
			return tx.ArchiveReport(ctx, r)
		})
		assert.Error(t, err)
	})
}

func TestSQLiteGetMismatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC)
	open1 := seedMismatch(t, s, billRow("S100", model.MismatchBillTitle, base.Add(3*time.Hour)))
	open2 := seedMismatch(t, s, billRow("S100", model.MismatchBillSponsor, base.Add(2*time.Hour)))
	closed := billRow("S101", model.MismatchBillTitle, base.Add(time.Hour))
	closed.State = model.StateClosed
	closed = seedMismatch(t, s, closed)
	ignored := billRow("S102", model.MismatchBillCosponsor, base)
	ignored.IgnoreStatus = model.IgnoreStatus{Kind: model.IgnorePermanently}
	ignored = seedMismatch(t, s, ignored)

	t.Run("unfiltered returns all ordered by last observed desc", func(t *testing.T) {
		page, err := s.GetMismatches(ctx, store.MismatchQuery{}, store.All)
		require.NoError(t, err)
		assert.Equal(t, 4, page.Total)
		require.Len(t, page.Results, 4)
		ids := []string{page.Results[0].MismatchID, page.Results[1].MismatchID,
			page.Results[2].MismatchID, page.Results[3].MismatchID}
		assert.Equal(t, []string{open1.MismatchID, open2.MismatchID, closed.MismatchID, ignored.MismatchID}, ids)
	})

	t.Run("state filter", func(t *testing.T) {
		page, err := s.GetMismatches(ctx, store.MismatchQuery{
			States: []model.MismatchState{model.StateClosed},
		}, store.All)
		require.NoError(t, err)
		require.Len(t, page.Results, 1)
		assert.Equal(t, closed.MismatchID, page.Results[0].MismatchID)
	})

	t.Run("ignore kind filter", func(t *testing.T) {
		page, err := s.GetMismatches(ctx, store.MismatchQuery{
			IgnoreKinds: []model.IgnoreKind{model.IgnorePermanently},
		}, store.All)
		require.NoError(t, err)
		require.Len(t, page.Results, 1)
		assert.Equal(t, ignored.MismatchID, page.Results[0].MismatchID)
	})

	t.Run("observed window is half open", func(t *testing.T) {
		page, err := s.GetMismatches(ctx, store.MismatchQuery{
			ObservedFrom: base.Add(time.Hour),
			ObservedTo:   base.Add(3 * time.Hour),
		}, store.All)
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
		for _, r := range page.Results {
			assert.NotEqual(t, open1.MismatchID, r.MismatchID, "upper bound is exclusive")
			assert.NotEqual(t, ignored.MismatchID, r.MismatchID, "below lower bound")
		}
	})

	t.Run("type filter", func(t *testing.T) {
		page, err := s.GetMismatches(ctx, store.MismatchQuery{
			Types: []model.MismatchType{model.MismatchBillSponsor, model.MismatchBillCosponsor},
		}, store.All)
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
	})

	t.Run("source filter", func(t *testing.T) {
		page, err := s.GetMismatches(ctx, store.MismatchQuery{Source: model.SourceSenateSite}, store.All)
		require.NoError(t, err)
		assert.Zero(t, page.Total)
		assert.Empty(t, page.Results)
	})

	t.Run("pagination keeps unpaged total", func(t *testing.T) {
		page, err := s.GetMismatches(ctx, store.MismatchQuery{}, store.LimitOffset{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 4, page.Total)
		require.Len(t, page.Results, 2)
		assert.Equal(t, open2.MismatchID, page.Results[0].MismatchID)
		assert.Equal(t, closed.MismatchID, page.Results[1].MismatchID)
	})

	t.Run("get by unknown id", func(t *testing.T) {
		_, err := s.GetMismatch(ctx, "missing")
		assert.True(t, model.IsNotFound(err))
	})
}

func TestSQLiteSummariesAgreeWithFold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.DenormMismatch{
		billRow("S300", model.MismatchBillTitle, base),
		billRow("S300", model.MismatchBillSponsor, base.Add(time.Minute)),
		billRow("S301", model.MismatchBillTitle, base.Add(2*time.Minute)),
	}
	rows[2].State = model.StateClosed
	cal := model.DenormMismatch{
		Key:           model.CalendarKey(12, 2017),
		RefType:       model.RefCalendarAlert,
		Type:          model.MismatchFloorCalEntry,
		FirstDetected: base,
		LastObserved:  base.Add(3 * time.Minute),
		LastReportID: model.ReportID{
			RefType: model.RefCalendarAlert, RefDateTime: base, ReportDateTime: base,
		},
	}
	rows = append(rows, cal)
	for i := range rows {
		rows[i] = seedMismatch(t, s, rows[i])
	}

	all, err := s.GetMismatches(ctx, store.MismatchQuery{}, store.All)
	require.NoError(t, err)
	require.Len(t, all.Results, 4)

	t.Run("status", func(t *testing.T) {
		got, err := s.StatusSummary(ctx, store.MismatchQuery{})
		require.NoError(t, err)
		want := store.FoldStatusSummary(all.Results)
		assert.Equal(t, want.Counts, got.Counts)
		assert.Equal(t, want.Total, got.Total)
	})

	t.Run("type", func(t *testing.T) {
		got, err := s.TypeSummary(ctx, store.MismatchQuery{})
		require.NoError(t, err)
		want := store.FoldTypeSummary(all.Results)
		assert.Equal(t, want.Counts, got.Counts)
		assert.Equal(t, want.Total, got.Total)
	})

	t.Run("content type", func(t *testing.T) {
		got, err := s.ContentTypeSummary(ctx, store.MismatchQuery{})
		require.NoError(t, err)
		want := store.FoldContentTypeSummary(all.Results)
		assert.Equal(t, want.Counts, got.Counts)
		assert.Equal(t, want.Total, got.Total)
	})

	t.Run("status summary ignores state filter", func(t *testing.T) {
		got, err := s.StatusSummary(ctx, store.MismatchQuery{
			States: []model.MismatchState{model.StateOpen},
		})
		require.NoError(t, err)
		assert.Equal(t, 4, got.Total, "state is the grouping dimension, not a filter")
	})
}

func TestSQLiteMutationAPI(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("set ignore status", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		row := seedMismatch(t, s, billRow("S400", model.MismatchBillTitle,
			time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC)))

		until := time.Date(2017, 4, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.SetIgnoreStatus(ctx, row.MismatchID, model.IgnoredUntil(until)))

		got, err := s.GetMismatch(ctx, row.MismatchID)
		require.NoError(t, err)
		assert.Equal(t, model.IgnoreUntilDate, got.IgnoreStatus.Kind)
		assert.True(t, got.IgnoreStatus.Until.Equal(until))

		require.NoError(t, s.SetIgnoreStatus(ctx, row.MismatchID, model.NotIgnored))
		got, err = s.GetMismatch(ctx, row.MismatchID)
		require.NoError(t, err)
		assert.Equal(t, model.IgnoreNever, got.IgnoreStatus.Kind)
		assert.True(t, got.IgnoreStatus.Until.IsZero())

		err = s.SetIgnoreStatus(ctx, "missing", model.NotIgnored)
		assert.True(t, model.IsNotFound(err))
	})

	t.Run("issue id add and delete", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		row := seedMismatch(t, s, billRow("S401", model.MismatchBillTitle,
			time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC)))

		require.NoError(t, s.AddIssueID(ctx, row.MismatchID, "OL-2"))
		require.NoError(t, s.AddIssueID(ctx, row.MismatchID, "OL-1"))
		// Adding the same id twice is a no-op.
		require.NoError(t, s.AddIssueID(ctx, row.MismatchID, "OL-2"))

		got, err := s.GetMismatch(ctx, row.MismatchID)
		require.NoError(t, err)
		assert.Equal(t, []string{"OL-1", "OL-2"}, got.IssueIDs)

		require.NoError(t, s.DeleteIssueID(ctx, row.MismatchID, "OL-1"))
		// Deleting an absent id is a no-op, not an error.
		require.NoError(t, s.DeleteIssueID(ctx, row.MismatchID, "OL-9"))

		got, err = s.GetMismatch(ctx, row.MismatchID)
		require.NoError(t, err)
		assert.Equal(t, []string{"OL-2"}, got.IssueIDs)

		assert.True(t, model.IsNotFound(s.AddIssueID(ctx, "missing", "OL-1")))
		assert.True(t, model.IsNotFound(s.DeleteIssueID(ctx, "missing", "OL-1")))
	})
}

func TestSQLiteRunLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	id1, err := s.StartRun(ctx, model.RefDaybreakBill, "daybreak-bill")
	require.NoError(t, err)
	id2, err := s.StartRun(ctx, model.RefCalendarAlert, "calendar-alert")
	require.NoError(t, err)
	id3, err := s.StartRun(ctx, model.RefAgendaAlert, "agenda-alert")
	require.NoError(t, err)

	require.NoError(t, s.CompleteRun(ctx, id1, store.RunResult{ObservedCount: 120, MismatchCount: 7}))
	require.NoError(t, s.SkipRun(ctx, id2, "reference data not found"))
	require.NoError(t, s.FailRun(ctx, id3, "alert feed unreachable"))

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	byID := make(map[int64]store.RunEntry, len(runs))
	for _, r := range runs {
		byID[r.ID] = r
	}

	done := byID[id1]
	assert.Equal(t, store.RunComplete, done.Status)
	assert.Equal(t, 120, done.ObservedCount)
	assert.Equal(t, 7, done.MismatchCount)
	require.NotNil(t, done.CompletedAt)

	skipped := byID[id2]
	assert.Equal(t, store.RunSkipped, skipped.Status)
	assert.Equal(t, "reference data not found", skipped.Error)

	failed := byID[id3]
	assert.Equal(t, store.RunFailed, failed.Status)
	assert.Equal(t, "alert feed unreachable", failed.Error)

	limited, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
