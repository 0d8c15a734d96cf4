package model

import "fmt"

// ContentType identifies the category of legislative content a key refers to.
type ContentType string

const (
	ContentBill     ContentType = "bill"
	ContentCalendar ContentType = "calendar"
	ContentAgenda   ContentType = "agenda"
)

// AllContentTypes returns all defined content types.
func AllContentTypes() []ContentType {
	return []ContentType{ContentBill, ContentCalendar, ContentAgenda}
}

// Key is an opaque, comparable identifier for the content item being checked.
// ID is the canonical string encoding for the content category; engine logic
// depends only on equality and ordering of a Key, never on its internals.
type Key struct {
	Content ContentType `json:"content_type"`
	ID      string      `json:"id"`
}

// BillKey builds the key for a bill. Canonical encoding: "<printNo>-<session>".
func BillKey(printNo string, session int) Key {
	return Key{Content: ContentBill, ID: fmt.Sprintf("%s-%d", printNo, session)}
}

// CalendarKey builds the key for a floor calendar.
// Canonical encoding: "<calNo>-<year>".
func CalendarKey(calNo, year int) Key {
	return Key{Content: ContentCalendar, ID: fmt.Sprintf("%d-%d", calNo, year)}
}

// AgendaKey builds the key for a committee agenda.
// Canonical encoding: "<agendaNo>-<year>-<committee>".
func AgendaKey(agendaNo, year int, committee string) Key {
	return Key{Content: ContentAgenda, ID: fmt.Sprintf("%d-%d-%s", agendaNo, year, committee)}
}

func (k Key) String() string {
	return string(k.Content) + "/" + k.ID
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.Content == "" && k.ID == ""
}

// Less orders keys by content type then id. Used to give per-key locking a
// deterministic acquisition order.
func (k Key) Less(other Key) bool {
	if k.Content != other.Content {
		return k.Content < other.Content
	}
	return k.ID < other.ID
}
