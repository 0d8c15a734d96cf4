// Package compare defines the comparator contract and the registry that maps
// reference types to the comparators triggered when a reference snapshot
// arrives.
package compare

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/legis-watch/spotcheck-cli/internal/model"
)

// Comparator produces a comparison report for one reference type over a
// snapshot window.
type Comparator interface {
	// Name returns the unique identifier for this comparator
	// (e.g. "daybreak-bill").
	Name() string

	// RefType returns the reference type whose arrival triggers this
	// comparator.
	RefType() model.ReferenceType

	// GenerateReport compares observed data against the newest reference
	// snapshot inside window. It returns an error wrapping
	// model.ErrReferenceDataNotFound when no snapshot exists in the window.
	GenerateReport(ctx context.Context, window model.TimeRange) (*model.Report, error)
}

// Registry maps reference types to their comparators. It is built once at
// startup and immutable afterwards; lookups need no locking.
type Registry struct {
	byName map[string]Comparator
	byRef  map[model.ReferenceType][]Comparator
	order  []string
}

// NewRegistry builds a registry from the given comparators. Duplicate names
// and invalid reference types are construction errors.
func NewRegistry(comparators ...Comparator) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]Comparator),
		byRef:  make(map[model.ReferenceType][]Comparator),
	}
	for _, c := range comparators {
		name := c.Name()
		if _, dup := r.byName[name]; dup {
			return nil, eris.Errorf("compare: duplicate comparator %q", name)
		}
		if !c.RefType().Valid() {
			return nil, eris.Errorf("compare: comparator %q has unknown reference type %q", name, c.RefType())
		}
		r.byName[name] = c
		r.byRef[c.RefType()] = append(r.byRef[c.RefType()], c)
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns a comparator by name.
func (r *Registry) Get(name string) (Comparator, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, eris.Errorf("compare: unknown comparator %q", name)
	}
	return c, nil
}

// ForRefType returns the comparators triggered by a reference type, in
// registration order. Unknown types return an empty slice.
func (r *Registry) ForRefType(rt model.ReferenceType) []Comparator {
	out := make([]Comparator, len(r.byRef[rt]))
	copy(out, r.byRef[rt])
	return out
}

// All returns every registered comparator in registration order.
func (r *Registry) All() []Comparator {
	out := make([]Comparator, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// RefTypes returns the reference types with at least one comparator, in
// first-registration order.
func (r *Registry) RefTypes() []model.ReferenceType {
	var out []model.ReferenceType
	seen := make(map[model.ReferenceType]bool)
	for _, name := range r.order {
		rt := r.byName[name].RefType()
		if !seen[rt] {
			seen[rt] = true
			out = append(out, rt)
		}
	}
	return out
}
