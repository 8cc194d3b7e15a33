package element

import (
	"container/list"
	"strings"

	"github.com/google/uuid"

	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/geom"
)

// IDFunc generates candidate identifiers.
type IDFunc func() string

// NewID returns a 32 character lowercase hex identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDFunc overrides the identifier generator.
func WithIDFunc(fn IDFunc) Option {
	return func(r *Registry) { r.newID = fn }
}

type bucket struct {
	items *list.List    // of *Element, placement order
	node  *list.Element // in Registry.positions
}

type entry struct {
	el     *Element
	order  *list.Element // in Registry.order
	bucket *list.Element // in bucket.items
}

// Registry indexes the elements of one experiment three ways: canonical
// insertion order, identifier, and native position. Every insertion, move and
// removal updates all three together.
//
// A Registry is not safe for concurrent use.
type Registry struct {
	order     *list.List // of *Element
	byID      map[string]*entry
	byPos     map[geom.Position]*bucket
	positions *list.List // of geom.Position, first-use order
	newID     IDFunc
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		order:     list.New(),
		byID:      make(map[string]*entry),
		byPos:     make(map[geom.Position]*bucket),
		positions: list.New(),
		newID:     NewID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Len returns the number of elements.
func (r *Registry) Len() int { return r.order.Len() }

// Contains reports whether an element with id exists.
func (r *Registry) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Insert places e at pos and returns its identifier. An empty identifier is
// replaced by a fresh one. Inserting an identifier that already exists, or an
// element that already belongs to a registry, aborts the process.
func (r *Registry) Insert(e *Element, pos geom.Position) string {
	fault.Assert(e != nil, "inserting a nil element")
	if e.reg != nil {
		fault.Abortf("element %s is already registered", e.id)
	}
	if e.id == "" {
		e.id = r.freshID()
	} else if _, dup := r.byID[e.id]; dup {
		fault.Abortf("duplicate element identifier %s", e.id)
	}

	e.pos = pos
	e.reg = r
	ent := &entry{el: e, order: r.order.PushBack(e)}
	ent.bucket = r.bucketFor(pos).items.PushBack(e)
	r.byID[e.id] = ent
	return e.id
}

func (r *Registry) freshID() string {
	for {
		id := r.newID()
		if id == "" {
			continue
		}
		if _, used := r.byID[id]; !used {
			return id
		}
	}
}

// Get returns the element with id.
func (r *Registry) Get(id string) (*Element, error) {
	ent, ok := r.byID[id]
	if !ok {
		return nil, fault.New(fault.KindElementNotFound, "element %q not found", id)
	}
	return ent.el, nil
}

// At returns the elements at pos in placement order. The result is empty,
// never an error, when nothing is there.
func (r *Registry) At(pos geom.Position) []*Element {
	b, ok := r.byPos[pos]
	if !ok {
		return nil
	}
	out := make([]*Element, 0, b.items.Len())
	for n := b.items.Front(); n != nil; n = n.Next() {
		out = append(out, n.Value.(*Element))
	}
	return out
}

// Move relocates the element with id to pos. It joins the end of the
// destination bucket; canonical order is unchanged.
func (r *Registry) Move(id string, pos geom.Position) error {
	ent, ok := r.byID[id]
	if !ok {
		return fault.New(fault.KindElementNotFound, "element %q not found", id)
	}
	if ent.el.pos == pos {
		return nil
	}
	r.detach(ent)
	ent.el.pos = pos
	ent.bucket = r.bucketFor(pos).items.PushBack(ent.el)
	return nil
}

// Remove deletes the element with id from every index and returns it.
func (r *Registry) Remove(id string) (*Element, error) {
	ent, ok := r.byID[id]
	if !ok {
		return nil, fault.New(fault.KindElementNotFound, "element %q not found", id)
	}
	r.detach(ent)
	r.order.Remove(ent.order)
	delete(r.byID, id)
	ent.el.reg = nil
	return ent.el, nil
}

// Elements returns every element in canonical order.
func (r *Registry) Elements() []*Element {
	out := make([]*Element, 0, r.order.Len())
	for n := r.order.Front(); n != nil; n = n.Next() {
		out = append(out, n.Value.(*Element))
	}
	return out
}

// Positions returns the occupied positions in the order they were first used.
func (r *Registry) Positions() []geom.Position {
	out := make([]geom.Position, 0, r.positions.Len())
	for n := r.positions.Front(); n != nil; n = n.Next() {
		out = append(out, n.Value.(geom.Position))
	}
	return out
}

func (r *Registry) bucketFor(pos geom.Position) *bucket {
	b, ok := r.byPos[pos]
	if !ok {
		b = &bucket{items: list.New(), node: r.positions.PushBack(pos)}
		r.byPos[pos] = b
	}
	return b
}

// detach removes ent from its position bucket, dropping the bucket when it
// becomes empty.
func (r *Registry) detach(ent *entry) {
	b, ok := r.byPos[ent.el.pos]
	fault.Assert(ok, "element position has no bucket")
	b.items.Remove(ent.bucket)
	ent.bucket = nil
	if b.items.Len() == 0 {
		r.positions.Remove(b.node)
		delete(r.byPos, ent.el.pos)
	}
}

// Verify aborts when the three indexes disagree.
func (r *Registry) Verify() {
	if msg := r.check(); msg != "" {
		fault.Abortf("element registry inconsistent: %s", msg)
	}
}

// check returns a description of the first inconsistency found, or "".
func (r *Registry) check() string {
	if r.order.Len() != len(r.byID) {
		return "order and identifier index differ in size"
	}
	bucketed := 0
	for pos, b := range r.byPos {
		if b.items.Len() == 0 {
			return "empty position bucket " + pos.String()
		}
		if b.node == nil || b.node.Value.(geom.Position) != pos {
			return "position list out of sync at " + pos.String()
		}
		for n := b.items.Front(); n != nil; n = n.Next() {
			e := n.Value.(*Element)
			if e.pos != pos {
				return "element " + e.id + " filed under the wrong position"
			}
			ent, ok := r.byID[e.id]
			if !ok || ent.bucket != n {
				return "bucketed element " + e.id + " missing from identifier index"
			}
			bucketed++
		}
	}
	if bucketed != len(r.byID) {
		return "bucket total differs from identifier index"
	}
	if r.positions.Len() != len(r.byPos) {
		return "position list differs from position index"
	}
	for n := r.order.Front(); n != nil; n = n.Next() {
		e := n.Value.(*Element)
		ent, ok := r.byID[e.id]
		if !ok || ent.el != e || ent.order != n {
			return "ordered element " + e.id + " missing from identifier index"
		}
		if e.reg != r {
			return "element " + e.id + " not owned by this registry"
		}
	}
	return ""
}
