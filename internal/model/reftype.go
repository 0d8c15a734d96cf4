package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// DataSource identifies where a reference dataset originates.
type DataSource string

const (
	SourceLBDC       DataSource = "lbdc"
	SourceSenateSite DataSource = "senate_site"
)

// ReferenceType identifies a kind of external reference dataset. Each type is
// tied to one data source and one content type.
type ReferenceType string

const (
	RefDaybreakBill     ReferenceType = "daybreak_bill"
	RefScrapedBill      ReferenceType = "scraped_bill"
	RefCalendarAlert    ReferenceType = "calendar_alert"
	RefAgendaAlert      ReferenceType = "agenda_alert"
	RefSenateSiteBill   ReferenceType = "senate_site_bill"
	RefSenateSiteCal    ReferenceType = "senate_site_calendar"
	RefSenateSiteAgenda ReferenceType = "senate_site_agenda"
)

var refTypeInfo = map[ReferenceType]struct {
	source  DataSource
	content ContentType
}{
	RefDaybreakBill:     {SourceLBDC, ContentBill},
	RefScrapedBill:      {SourceLBDC, ContentBill},
	RefCalendarAlert:    {SourceLBDC, ContentCalendar},
	RefAgendaAlert:      {SourceLBDC, ContentAgenda},
	RefSenateSiteBill:   {SourceSenateSite, ContentBill},
	RefSenateSiteCal:    {SourceSenateSite, ContentCalendar},
	RefSenateSiteAgenda: {SourceSenateSite, ContentAgenda},
}

// AllReferenceTypes returns the defined reference types in a fixed order.
func AllReferenceTypes() []ReferenceType {
	return []ReferenceType{
		RefDaybreakBill, RefScrapedBill, RefCalendarAlert, RefAgendaAlert,
		RefSenateSiteBill, RefSenateSiteCal, RefSenateSiteAgenda,
	}
}

// ParseReferenceType converts a string into a ReferenceType.
func ParseReferenceType(s string) (ReferenceType, error) {
	rt := ReferenceType(s)
	if _, ok := refTypeInfo[rt]; !ok {
		return "", eris.Errorf("model: unknown reference type %q", s)
	}
	return rt, nil
}

// DataSource returns the data source the reference type belongs to.
func (rt ReferenceType) DataSource() DataSource {
	return refTypeInfo[rt].source
}

// ContentType returns the content category the reference type checks.
func (rt ReferenceType) ContentType() ContentType {
	return refTypeInfo[rt].content
}

// Valid reports whether the reference type is one of the defined values.
func (rt ReferenceType) Valid() bool {
	_, ok := refTypeInfo[rt]
	return ok
}

// ReferenceID identifies one snapshot of an external reference dataset.
type ReferenceID struct {
	RefType     ReferenceType `json:"ref_type"`
	RefDateTime time.Time     `json:"ref_date_time"`
}

// ReportID uniquely identifies one comparison run's output.
type ReportID struct {
	RefType        ReferenceType `json:"ref_type"`
	RefDateTime    time.Time     `json:"ref_date_time"`
	ReportDateTime time.Time     `json:"report_date_time"`
}

// ReferenceID returns the reference snapshot identity of the report.
func (id ReportID) ReferenceID() ReferenceID {
	return ReferenceID{RefType: id.RefType, RefDateTime: id.RefDateTime}
}

// TimeRange is a half-open [Start, End) date-time interval.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AllTime returns a range covering every representable instant.
func AllTime() TimeRange {
	return TimeRange{
		Start: time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC),
	}
}

// Contains reports whether t falls within the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}
