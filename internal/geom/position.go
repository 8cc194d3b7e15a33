// Package geom converts between the grid coordinate system used when laying
// out circuits and the consumer application's native coordinates.
//
// One grid unit on X is the length of a logic gate, one unit on Y its width,
// and one unit on Z is a tenth of a native unit.
package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nvandessel/labkit/internal/fault"
)

// Position is a point in either coordinate system. Equality is exact, so a
// Position can be used directly as a map key.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pos is shorthand for Position{x, y, z}.
func Pos(x, y, z float64) Position {
	return Position{X: x, Y: y, Z: z}
}

// Add returns p + q.
func (p Position) Add(q Position) Position {
	return Position{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}

// Sub returns p - q.
func (p Position) Sub(q Position) Position {
	return Position{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Finite reports whether all components are finite numbers.
func (p Position) Finite() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate returns an InvalidArgument error for non-finite components.
func (p Position) Validate() error {
	if !p.Finite() {
		return fault.New(fault.KindInvalidArgument, "position %s must be finite", p)
	}
	return nil
}

// String formats the position as "x,y,z" using the shortest representation
// that parses back to the same floats.
func (p Position) String() string {
	return formatFloat(p.X) + "," + formatFloat(p.Y) + "," + formatFloat(p.Z)
}

// ParsePosition parses the "x,y,z" form produced by String.
func ParsePosition(s string) (Position, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Position{}, fault.New(fault.KindInvalidArgument, "position %q: want 3 components, got %d", s, len(parts))
	}
	var vals [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Position{}, fault.Wrap(fault.KindInvalidArgument, err, "position %q", s)
		}
		vals[i] = v
	}
	p := Position{X: vals[0], Y: vals[1], Z: vals[2]}
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

func formatFloat(v float64) string {
	// Normalise negative zero so that equal positions print identically.
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// GoString aids debugging output in tests.
func (p Position) GoString() string {
	return fmt.Sprintf("geom.Pos(%v, %v, %v)", p.X, p.Y, p.Z)
}
