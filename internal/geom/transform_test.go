package geom

import (
	"errors"
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/nvandessel/labkit/internal/fault"
)

const eps = 1e-9

func near(a, b Position) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}

func TestToNative(t *testing.T) {
	tests := []struct {
		name   string
		grid   Position
		origin Position
		big    bool
		want   Position
	}{
		{"zero", Pos(0, 0, 0), Pos(0, 0, 0), false, Pos(0, 0, 0)},
		{"unit steps", Pos(1, 1, 1), Pos(0, 0, 0), false, Pos(0.16, 0.08, 0.1)},
		{"with origin", Pos(2, -1, 0), Pos(1, 1, 1), false, Pos(1.32, 0.92, 1)},
		{"big element", Pos(0, 0, 0), Pos(0, 0, 0), true, Pos(0, 0.045, 0)},
		{"big with origin", Pos(1, 2, 3), Pos(-1, 0.5, 0), true, Pos(-0.84, 0.705, 0.3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToNative(tt.grid, tt.origin, tt.big)
			if !near(got, tt.want) {
				t.Errorf("ToNative() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestToGrid_InvertsToNative(t *testing.T) {
	tests := []struct {
		name   string
		native Position
		origin Position
		big    bool
		want   Position
	}{
		{"zero", Pos(0, 0, 0), Pos(0, 0, 0), false, Pos(0, 0, 0)},
		{"unit steps", Pos(0.16, 0.08, 0.1), Pos(0, 0, 0), false, Pos(1, 1, 1)},
		{"with origin", Pos(1.32, 0.92, 1), Pos(1, 1, 1), false, Pos(2, -1, 0)},
		{"big element", Pos(0, 0.045, 0), Pos(0, 0, 0), true, Pos(0, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToGrid(tt.native, tt.origin, tt.big)
			if !near(got, tt.want) {
				t.Errorf("ToGrid() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRoundTrip_Property(t *testing.T) {
	coord := rapid.Float64Range(-1e4, 1e4)
	rapid.Check(t, func(t *rapid.T) {
		grid := Pos(coord.Draw(t, "gx"), coord.Draw(t, "gy"), coord.Draw(t, "gz"))
		origin := Pos(coord.Draw(t, "ox"), coord.Draw(t, "oy"), coord.Draw(t, "oz"))
		big := rapid.Bool().Draw(t, "big")

		back := ToGrid(ToNative(grid, origin, big), origin, big)
		// Relative tolerance: large magnitudes lose absolute precision.
		scale := 1 + math.Max(math.Abs(origin.X), math.Max(math.Abs(origin.Y), math.Abs(origin.Z)))/UnitY
		for _, d := range []float64{back.X - grid.X, back.Y - grid.Y, back.Z - grid.Z} {
			if math.Abs(d) > eps*scale {
				t.Fatalf("round trip drifted: %#v -> %#v (big=%v)", grid, back, big)
			}
		}
	})
}

func TestUnits(t *testing.T) {
	got, err := Units("x", "z", "y")
	if err != nil {
		t.Fatalf("Units() error = %v", err)
	}
	want := []float64{UnitX, UnitZ, UnitY}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Units()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if _, err := Units("x", "w"); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Errorf("Units(w) error = %v, want InvalidArgument", err)
	}
}

func TestNewOrigin(t *testing.T) {
	if _, err := NewOrigin(1, 2, 3); err != nil {
		t.Errorf("NewOrigin() error = %v", err)
	}
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := NewOrigin(0, bad, 0); !errors.Is(err, fault.ErrInvalidArgument) {
			t.Errorf("NewOrigin(%v) error = %v, want InvalidArgument", bad, err)
		}
	}
}
