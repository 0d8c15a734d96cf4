package store

import (
	"fmt"
	"strings"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

// condSet accumulates WHERE conditions with driver-specific placeholders.
// Postgres supplies $n placeholders, SQLite supplies ?.
type condSet struct {
	conds []string
	args  []any
	ph    func(pos int) string
}

func pgPlaceholder(pos int) string { return fmt.Sprintf("$%d", pos) }

func sqlitePlaceholder(int) string { return "?" }

func (c *condSet) add(expr string, arg any) {
	c.args = append(c.args, arg)
	c.conds = append(c.conds, fmt.Sprintf(expr, c.ph(len(c.args))))
}

func (c *condSet) addIn(column string, values []string) {
	if len(values) == 0 {
		return
	}
	phs := make([]string, len(values))
	for i, v := range values {
		c.args = append(c.args, v)
		phs[i] = c.ph(len(c.args))
	}
	c.conds = append(c.conds, fmt.Sprintf("%s IN (%s)", column, strings.Join(phs, ", ")))
}

// where renders the accumulated conditions, or the empty string.
func (c *condSet) where() string {
	if len(c.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.conds, " AND ")
}

// mismatchConds builds the predicate shared by GetMismatches and every
// summary aggregate, so the two views can never disagree on which rows are
// in scope.
func mismatchConds(q MismatchQuery, ph func(int) string) *condSet {
	c := &condSet{ph: ph}

	if !q.ObservedFrom.IsZero() {
		c.add("last_observed >= %s", q.ObservedFrom)
	}
	if !q.ObservedTo.IsZero() {
		c.add("last_observed < %s", q.ObservedTo)
	}
	if q.Source != "" {
		c.add("data_source = %s", string(q.Source))
	}
	c.addIn("content_type", stringsOf(q.ContentTypes))
	c.addIn("state", stringsOf(q.States))
	c.addIn("ignore_kind", stringsOf(q.IgnoreKinds))
	c.addIn("mismatch_type", stringsOf(q.Types))

	return c
}

func stringsOf[T ~string](vals []T) []string {
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

// statusQuery strips the dimensions a status summary groups over.
func statusQuery(q MismatchQuery) MismatchQuery {
	q.States = nil
	q.Types = nil
	return q
}

// typeQuery keeps the optional state filter but strips the type filter,
// since types are the grouping dimension.
func typeQuery(q MismatchQuery) MismatchQuery {
	q.Types = nil
	return q
}

// FoldStatusSummary computes a status summary as an in-memory fold. The SQL
// aggregates must agree with it; tests cross-check the two.
func FoldStatusSummary(rows []model.DenormMismatch) *StatusSummary {
	s := &StatusSummary{Counts: make(map[model.MismatchState]int)}
	for _, r := range rows {
		s.Counts[r.State]++
		s.Total++
	}
	return s
}

// FoldTypeSummary computes a type summary as an in-memory fold.
func FoldTypeSummary(rows []model.DenormMismatch) *TypeSummary {
	s := &TypeSummary{Counts: make(map[model.MismatchType]int)}
	for _, r := range rows {
		s.Counts[r.Type]++
		s.Total++
	}
	return s
}

// FoldContentTypeSummary computes a content-type summary as an in-memory fold.
func FoldContentTypeSummary(rows []model.DenormMismatch) *ContentTypeSummary {
	s := &ContentTypeSummary{Counts: make(map[model.ContentType]map[model.MismatchState]int)}
	for _, r := range rows {
		if s.Counts[r.Key.Content] == nil {
			s.Counts[r.Key.Content] = make(map[model.MismatchState]int)
		}
		s.Counts[r.Key.Content][r.State]++
		s.Total++
	}
	return s
}
