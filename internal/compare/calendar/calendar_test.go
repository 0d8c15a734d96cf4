package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

type stubSource struct {
	observed []Entry
	snapshot *Snapshot
	refErr   error
}

func (s *stubSource) Observed(context.Context) ([]Entry, error) {
	return s.observed, nil
}

func (s *stubSource) Reference(context.Context, model.TimeRange) (*Snapshot, error) {
	if s.refErr != nil {
		return nil, s.refErr
	}
	return s.snapshot, nil
}

func TestCalendarGenerateReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	day := time.Date(2017, 3, 6, 0, 0, 0, 0, time.UTC)
	snapTime := time.Date(2017, 3, 6, 8, 0, 0, 0, time.UTC)

	t.Run("detects date and entry drift", func(t *testing.T) {
		t.Parallel()
		src := &stubSource{
			observed: []Entry{
				{CalNo: 12, Year: 2017, CalDate: day, FloorEntries: []string{"S100", "S200"}},
				{CalNo: 13, Year: 2017, CalDate: day, FloorEntries: []string{"S300"}},
				{CalNo: 15, Year: 2017, CalDate: day},
			},
			snapshot: &Snapshot{
				RefDateTime: snapTime,
				Entries: []Entry{
					{CalNo: 12, Year: 2017, CalDate: day.AddDate(0, 0, 1), FloorEntries: []string{"S100"}},
					{CalNo: 13, Year: 2017, CalDate: day, FloorEntries: []string{"S300"}},
					{CalNo: 14, Year: 2017, CalDate: day},
				},
			},
		}
		c, err := New(src, model.RefCalendarAlert)
		require.NoError(t, err)

		report, err := c.GenerateReport(ctx, model.AllTime())
		require.NoError(t, err)
		assert.True(t, report.ID.RefDateTime.Equal(snapTime))
		assert.Equal(t, 4, report.ObservedCount())

		drifted := report.Observations[model.CalendarKey(12, 2017)]
		require.NotNil(t, drifted)
		assert.Contains(t, drifted.Mismatches, model.MismatchActiveListCalDate)
		assert.Contains(t, drifted.Mismatches, model.MismatchFloorCalEntry)

		clean := report.Observations[model.CalendarKey(13, 2017)]
		require.NotNil(t, clean)
		assert.Empty(t, clean.Mismatches)

		refOnly := report.Observations[model.CalendarKey(14, 2017)]
		require.NotNil(t, refOnly)
		assert.Contains(t, refOnly.Mismatches, model.MismatchObservedDataMissing)

		obsOnly := report.Observations[model.CalendarKey(15, 2017)]
		require.NotNil(t, obsOnly)
		assert.Contains(t, obsOnly.Mismatches, model.MismatchReferenceDataMissing)
	})

	t.Run("propagates reference not found", func(t *testing.T) {
		t.Parallel()
		src := &stubSource{refErr: eris.Wrap(model.ErrReferenceDataNotFound, "no alert in window")}
		c, err := New(src, model.RefCalendarAlert)
		require.NoError(t, err)

		_, err = c.GenerateReport(ctx, model.AllTime())
		assert.True(t, model.IsReferenceDataNotFound(err))
	})

	t.Run("rejects non calendar reference type", func(t *testing.T) {
		t.Parallel()
		_, err := New(&stubSource{}, model.RefDaybreakBill)
		assert.Error(t, err)
	})
}
