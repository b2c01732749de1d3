// Package reconcile groups a flat, arbitrarily ordered record stream into
// entities, attaching child records to their parents by back-reference.
package reconcile

import (
	"maps"

	"github.com/3leaps/gobulk/pkg/record"
	"github.com/3leaps/gobulk/pkg/resource"
)

// EntitySet is an insertion-ordered collection of entities keyed by id.
type EntitySet struct {
	order []string
	byID  map[string]*record.Entity
}

// NewEntitySet creates an empty set.
func NewEntitySet() *EntitySet {
	return &EntitySet{byID: make(map[string]*record.Entity)}
}

// Len returns the number of entities.
func (s *EntitySet) Len() int {
	return len(s.order)
}

// Get returns the entity with id.
func (s *EntitySet) Get(id string) (*record.Entity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// IDs returns entity ids in first-seen order.
func (s *EntitySet) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Entities returns the entities in first-seen order.
func (s *EntitySet) Entities() []*record.Entity {
	out := make([]*record.Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Children returns the total number of attached children.
func (s *EntitySet) Children() int {
	n := 0
	for _, e := range s.byID {
		n += len(e.Children)
	}
	return n
}

// Placeholders returns the number of entities whose own record never arrived.
func (s *EntitySet) Placeholders() int {
	n := 0
	for _, e := range s.byID {
		if e.Placeholder {
			n++
		}
	}
	return n
}

// ensure returns the entity at id, creating a placeholder if needed.
func (s *EntitySet) ensure(id string) *record.Entity {
	if e, ok := s.byID[id]; ok {
		return e
	}
	e := record.NewPlaceholder(id)
	s.byID[id] = e
	s.order = append(s.order, id)
	return e
}

// fill merges a parent's own record into its entity.
func fill(e *record.Entity, r record.Raw, st resource.Strategy) {
	e.Title = st.Title(r)
	e.CreatedAt = st.CreatedAt(r)
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(r.Fields))
	}
	maps.Copy(e.Fields, r.Fields)
	e.Placeholder = false
}

// Reconcile groups records into entities in a single pass.
//
// Flat kinds turn every record into its own entity; a repeated id merges
// into the first occurrence. Parent/child kinds create or complete an
// entity for each parent record and attach each child, in arrival order,
// to the entity named by its back-reference, creating a placeholder when
// the parent has not arrived yet. Records of a parent/child kind that are
// neither parents nor children are ignored.
func Reconcile(records []record.Raw, st resource.Strategy) *EntitySet {
	set := NewEntitySet()
	for _, r := range records {
		switch {
		case st.Grouping == resource.GroupFlat:
			fill(set.ensure(r.ID), r, st)
		case r.IsChild():
			parent := set.ensure(r.ParentID)
			parent.Children = append(parent.Children, r)
		case st.IsParent(r):
			fill(set.ensure(r.ID), r, st)
		}
	}
	return set
}

// ReconcileKind looks up the strategy for kind and reconciles records.
func ReconcileKind(records []record.Raw, kind resource.Kind) (*EntitySet, error) {
	st, err := resource.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return Reconcile(records, st), nil
}
