// Package element defines experiment elements and the registry that indexes
// them by identifier and by position.
package element

import (
	"maps"
	"slices"

	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/geom"
)

// PinRef names one pin of one element.
type PinRef struct {
	Element string `json:"element"`
	Pin     int    `json:"pin"`
}

// Element is a single component placed in an experiment.
//
// The identifier and native position are owned by the Registry the element
// belongs to and can only change through it.
type Element struct {
	id  string
	pos geom.Position
	reg *Registry

	Model    string
	Type     exptype.Type
	Rotation geom.Position
	Big      bool
	Pins     []string
	Locked   bool
	Broken   bool

	// Properties and Statistics are copied into archives without being
	// interpreted.
	Properties map[string]float64
	Statistics map[string]float64
}

// New returns an unplaced element of the given model.
func New(model string, typ exptype.Type, pins ...string) *Element {
	return &Element{
		Model:      model,
		Type:       typ,
		Pins:       pins,
		Properties: map[string]float64{},
		Statistics: map[string]float64{},
	}
}

// ID returns the identifier. It is empty until the element is inserted into a
// registry, unless it was preset with SetID.
func (e *Element) ID() string { return e.id }

// Position returns the native position.
func (e *Element) Position() geom.Position { return e.pos }

// Registered reports whether the element belongs to a registry.
func (e *Element) Registered() bool { return e.reg != nil }

// SetID presets the identifier used on insertion. Archives use it to keep the
// identifiers they were saved with. Changing the identifier of a registered
// element is an invariant violation.
func (e *Element) SetID(id string) {
	fault.Assert(e.reg == nil, "cannot change the identifier of a registered element")
	e.id = id
}

// PinCount returns the number of pins.
func (e *Element) PinCount() int { return len(e.Pins) }

// HasPin reports whether pin is a valid pin index.
func (e *Element) HasPin(pin int) bool { return pin >= 0 && pin < len(e.Pins) }

// PinIndex resolves a pin name to its index.
func (e *Element) PinIndex(name string) (int, bool) {
	i := slices.Index(e.Pins, name)
	return i, i >= 0
}

// Clone returns a detached deep copy that keeps the identifier and position.
func (e *Element) Clone() *Element {
	c := *e
	c.reg = nil
	c.Pins = slices.Clone(e.Pins)
	c.Properties = maps.Clone(e.Properties)
	c.Statistics = maps.Clone(e.Statistics)
	return &c
}
