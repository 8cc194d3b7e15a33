// Package wire holds the connections between element pins.
package wire

import (
	"fmt"

	"github.com/nvandessel/labkit/internal/element"
	"github.com/nvandessel/labkit/internal/fault"
)

// Colors accepted by the consumer application.
const (
	Blue   = "蓝"
	Red    = "红"
	Green  = "绿"
	Yellow = "黄"
	Black  = "黑"
)

// DefaultColor is used when a wire is created without one.
const DefaultColor = Blue

var colorAliases = map[string]string{
	"blue": Blue, "red": Red, "green": Green, "yellow": Yellow, "black": Black,
	Blue: Blue, Red: Red, Green: Green, Yellow: Yellow, Black: Black,
}

// ParseColor resolves an English name or native color label. Empty means
// DefaultColor.
func ParseColor(s string) (string, error) {
	if s == "" {
		return DefaultColor, nil
	}
	if c, ok := colorAliases[s]; ok {
		return c, nil
	}
	return "", fault.New(fault.KindInvalidWire, "unknown wire color %q", s)
}

// Wire is an undirected connection between two pins.
type Wire struct {
	A     element.PinRef `json:"a"`
	B     element.PinRef `json:"b"`
	Color string         `json:"color,omitempty"`
}

// Key identifies a wire regardless of endpoint order.
type Key struct {
	Lo, Hi element.PinRef
}

func less(a, b element.PinRef) bool {
	if a.Element != b.Element {
		return a.Element < b.Element
	}
	return a.Pin < b.Pin
}

// Key returns the normalised endpoint pair.
func (w Wire) Key() Key {
	if less(w.B, w.A) {
		return Key{Lo: w.B, Hi: w.A}
	}
	return Key{Lo: w.A, Hi: w.B}
}

// Touches reports whether either endpoint is on element id.
func (w Wire) Touches(id string) bool {
	return w.A.Element == id || w.B.Element == id
}

func (w Wire) String() string {
	return fmt.Sprintf("%s[%d]-%s[%d]", w.A.Element, w.A.Pin, w.B.Element, w.B.Pin)
}

// Set is an unordered collection of wires that remembers insertion order for
// deterministic export. It is not safe for concurrent use.
type Set struct {
	byKey map[Key]int
	wires []Wire
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{byKey: make(map[Key]int)}
}

// Len returns the number of wires.
func (s *Set) Len() int { return len(s.wires) }

// Has reports whether a wire between the same two pins exists.
func (s *Set) Has(w Wire) bool {
	_, ok := s.byKey[w.Key()]
	return ok
}

// Add inserts w. A wire from a pin to itself and duplicates are rejected
// with InvalidWire; two pins of one element may be joined. Endpoint
// resolution is the caller's concern.
func (s *Set) Add(w Wire) error {
	if w.A == w.B {
		return fault.New(fault.KindInvalidWire, "wire %s connects a pin to itself", w)
	}
	k := w.Key()
	if _, dup := s.byKey[k]; dup {
		return fault.New(fault.KindInvalidWire, "wire %s already exists", w)
	}
	if w.Color == "" {
		w.Color = DefaultColor
	}
	s.byKey[k] = len(s.wires)
	s.wires = append(s.wires, w)
	return nil
}

// Remove deletes the wire between the same two pins as w.
func (s *Set) Remove(w Wire) error {
	i, ok := s.byKey[w.Key()]
	if !ok {
		return fault.New(fault.KindInvalidWire, "wire %s does not exist", w)
	}
	s.removeAt(i)
	return nil
}

// PurgeElement removes every wire touching element id and returns how many
// were removed.
func (s *Set) PurgeElement(id string) int {
	kept := s.wires[:0]
	removed := 0
	for _, w := range s.wires {
		if w.Touches(id) {
			removed++
			continue
		}
		kept = append(kept, w)
	}
	if removed > 0 {
		s.wires = kept
		s.reindex()
	}
	return removed
}

// List returns the wires in insertion order.
func (s *Set) List() []Wire {
	out := make([]Wire, len(s.wires))
	copy(out, s.wires)
	return out
}

func (s *Set) removeAt(i int) {
	s.wires = append(s.wires[:i], s.wires[i+1:]...)
	s.reindex()
}

func (s *Set) reindex() {
	clear(s.byKey)
	for i, w := range s.wires {
		s.byKey[w.Key()] = i
	}
}
