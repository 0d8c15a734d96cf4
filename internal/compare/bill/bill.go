// Package bill implements the bill comparator: observed bill fields checked
// against a mirrored reference snapshot (daybreak dumps or scraped prints).
package bill

import (
	"sort"
	"strings"
	"time"
)

// Data is one bill row, either observed or reference. Cosponsors is the
// canonical comma-separated member list.
type Data struct {
	PrintNo    string
	Session    int
	Title      string
	Sponsor    string
	Cosponsors []string
	ActionDate time.Time
}

// CosponsorString renders the cosponsor list in canonical form: trimmed,
// de-duplicated, sorted, comma-joined.
func (d Data) CosponsorString() string {
	return strings.Join(normalizeMembers(d.Cosponsors), ", ")
}

func normalizeMembers(members []string) []string {
	seen := make(map[string]bool, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Tolerances are the comparison knobs. They widen equality so known-benign
// formatting drift between sources does not page anyone.
type Tolerances struct {
	// CollapseTitleWhitespace folds runs of whitespace in titles to single
	// spaces before comparing.
	CollapseTitleWhitespace bool `yaml:"collapse_title_whitespace"`

	// SponsorCaseInsensitive compares sponsor and cosponsor names without
	// regard to case.
	SponsorCaseInsensitive bool `yaml:"sponsor_case_insensitive"`

	// ActionDateDayOnly truncates action dates to the day before comparing.
	ActionDateDayOnly bool `yaml:"action_date_day_only"`
}

// DefaultTolerances match the long-standing report behavior.
func DefaultTolerances() Tolerances {
	return Tolerances{
		CollapseTitleWhitespace: true,
		SponsorCaseInsensitive:  true,
		ActionDateDayOnly:       true,
	}
}

func (t Tolerances) title(s string) string {
	s = strings.TrimSpace(s)
	if t.CollapseTitleWhitespace {
		s = strings.Join(strings.Fields(s), " ")
	}
	return s
}

func (t Tolerances) member(s string) string {
	s = strings.TrimSpace(s)
	if t.SponsorCaseInsensitive {
		s = strings.ToUpper(s)
	}
	return s
}

func (t Tolerances) memberList(members []string) string {
	normalized := normalizeMembers(members)
	for i, m := range normalized {
		normalized[i] = t.member(m)
	}
	sort.Strings(normalized)
	return strings.Join(normalized, ", ")
}

func (t Tolerances) actionDate(d time.Time) time.Time {
	if d.IsZero() {
		return d
	}
	d = d.UTC()
	if t.ActionDateDayOnly {
		d = d.Truncate(24 * time.Hour)
	}
	return d
}
