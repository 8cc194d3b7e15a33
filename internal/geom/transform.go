package geom

import (
	"github.com/nvandessel/labkit/internal/fault"
)

// Native size of one grid unit on each axis.
const (
	UnitX = 0.16
	UnitY = 0.08
	UnitZ = 0.1
)

// BigElementAmend is the native Y correction applied to elements whose
// footprint spans more than one grid cell.
const BigElementAmend = 0.045

// Axis names a coordinate axis.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
)

// Unit returns the native size of one grid unit along axis.
func Unit(axis Axis) (float64, error) {
	switch axis {
	case AxisX:
		return UnitX, nil
	case AxisY:
		return UnitY, nil
	case AxisZ:
		return UnitZ, nil
	default:
		return 0, fault.New(fault.KindInvalidArgument, "unknown axis %q (want x, y or z)", string(axis))
	}
}

// Units returns the unit scale for each named axis, in order.
func Units(axes ...string) ([]float64, error) {
	out := make([]float64, 0, len(axes))
	for _, a := range axes {
		u, err := Unit(Axis(a))
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Origin is the native position of grid (0, 0, 0).
type Origin = Position

// NewOrigin validates and returns an origin.
func NewOrigin(x, y, z float64) (Origin, error) {
	o := Position{X: x, Y: y, Z: z}
	if !o.Finite() {
		return Origin{}, fault.New(fault.KindInvalidArgument, "origin %s must be finite", o)
	}
	return o, nil
}

// ToNative converts a grid position to native coordinates.
func ToNative(grid Position, origin Origin, big bool) Position {
	native := Position{
		X: grid.X*UnitX + origin.X,
		Y: grid.Y*UnitY + origin.Y,
		Z: grid.Z*UnitZ + origin.Z,
	}
	if big {
		native.Y += BigElementAmend
	}
	return native
}

// ToGrid converts a native position to grid coordinates. It is the exact
// inverse of ToNative: the big-element correction is removed in native units
// before scaling.
func ToGrid(native Position, origin Origin, big bool) Position {
	y := native.Y - origin.Y
	if big {
		y -= BigElementAmend
	}
	return Position{
		X: (native.X - origin.X) / UnitX,
		Y: y / UnitY,
		Z: (native.Z - origin.Z) / UnitZ,
	}
}
