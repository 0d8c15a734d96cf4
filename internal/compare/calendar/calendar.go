// Package calendar implements the floor calendar comparator. Calendar data
// arrives as alert feeds rather than database mirrors, so the comparator
// reads both sides through a Source. Registration lives in cmd/env.go and
// needs a Source implementation for the deployment's alert feed.
package calendar

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

// Entry is one floor calendar as seen by one side.
type Entry struct {
	CalNo   int
	Year    int
	CalDate time.Time
	// FloorEntries is the ordered list of bill print numbers on the calendar.
	FloorEntries []string
}

// Key returns the content key for the entry.
func (e Entry) Key() model.Key {
	return model.CalendarKey(e.CalNo, e.Year)
}

// Snapshot is one reference-side capture of the calendar feed.
type Snapshot struct {
	RefDateTime time.Time
	Entries     []Entry
}

// Source supplies both sides of a calendar comparison.
type Source interface {
	// Observed returns the calendars currently held in observed data.
	Observed(ctx context.Context) ([]Entry, error)

	// Reference returns the newest reference snapshot inside window, or an
	// error wrapping model.ErrReferenceDataNotFound when none exists.
	Reference(ctx context.Context, window model.TimeRange) (*Snapshot, error)
}

// Comparator checks observed floor calendars against a reference snapshot.
type Comparator struct {
	src     Source
	refType model.ReferenceType
	now     func() time.Time
}

// New builds a calendar comparator for a calendar-bearing reference type.
func New(src Source, refType model.ReferenceType) (*Comparator, error) {
	if refType.ContentType() != model.ContentCalendar {
		return nil, eris.Errorf("calendar: reference type %q does not carry calendars", refType)
	}
	return &Comparator{src: src, refType: refType, now: time.Now}, nil
}

func (c *Comparator) Name() string {
	return strings.ReplaceAll(string(c.refType), "_", "-")
}

func (c *Comparator) RefType() model.ReferenceType {
	return c.refType
}

func (c *Comparator) GenerateReport(ctx context.Context, window model.TimeRange) (*model.Report, error) {
	snap, err := c.src.Reference(ctx, window)
	if err != nil {
		return nil, err
	}
	observed, err := c.src.Observed(ctx)
	if err != nil {
		return nil, err
	}

	refByKey := make(map[model.Key]Entry, len(snap.Entries))
	for _, e := range snap.Entries {
		refByKey[e.Key()] = e
	}
	obsByKey := make(map[model.Key]Entry, len(observed))
	for _, e := range observed {
		obsByKey[e.Key()] = e
	}

	report := model.NewReport(model.ReportID{
		RefType:        c.refType,
		RefDateTime:    snap.RefDateTime,
		ReportDateTime: c.now().UTC(),
	}, "")

	for key, ref := range refByKey {
		obs, ok := obsByKey[key]
		if !ok {
			if err := report.AddObservedMissingObservation(key); err != nil {
				return nil, err
			}
			continue
		}
		o := model.NewObservation(report.ID.ReferenceID(), key)
		if !sameDay(obs.CalDate, ref.CalDate) {
			o.AddMismatch(model.NewMismatch(model.MismatchActiveListCalDate,
				formatDay(obs.CalDate), formatDay(ref.CalDate)))
		}
		if obsList, refList := joinEntries(obs.FloorEntries), joinEntries(ref.FloorEntries); obsList != refList {
			o.AddMismatch(model.NewMismatch(model.MismatchFloorCalEntry, obsList, refList))
		}
		if err := report.AddObservation(o); err != nil {
			return nil, err
		}
	}
	for key := range obsByKey {
		if _, ok := refByKey[key]; !ok {
			if err := report.AddRefMissingObservation(key); err != nil {
				return nil, err
			}
		}
	}
	return report, nil
}

func sameDay(a, b time.Time) bool {
	return a.UTC().Truncate(24*time.Hour).Equal(b.UTC().Truncate(24 * time.Hour))
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func joinEntries(entries []string) string {
	return strings.Join(entries, ", ")
}
