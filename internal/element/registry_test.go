package element

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/geom"
)

func gate() *Element {
	return New("And Gate", exptype.Circuit, "i_up", "i_low", "o")
}

func ids(els []*Element) []string {
	out := make([]string, len(els))
	for i, e := range els {
		out[i] = e.ID()
	}
	return out
}

func TestRegistry_InsertAssignsIdentifiers(t *testing.T) {
	r := NewRegistry()
	a, b := gate(), gate()

	idA := r.Insert(a, geom.Pos(0, 0, 0))
	idB := r.Insert(b, geom.Pos(0, 0, 0))

	require.Len(t, idA, 32)
	require.NotEqual(t, idA, idB)
	assert.Equal(t, idA, a.ID())
	assert.True(t, a.Registered())
	assert.Equal(t, []string{idA, idB}, ids(r.At(geom.Pos(0, 0, 0))))
	assert.Equal(t, 2, r.Len())
	assert.Empty(t, r.check())
}

func TestRegistry_InsertRetriesCollidingGenerator(t *testing.T) {
	seq := []string{"x", "x", "", "y"}
	r := NewRegistry(WithIDFunc(func() string {
		id := seq[0]
		seq = seq[1:]
		return id
	}))

	assert.Equal(t, "x", r.Insert(gate(), geom.Pos(0, 0, 0)))
	assert.Equal(t, "y", r.Insert(gate(), geom.Pos(0, 0, 0)))
}

func TestRegistry_PresetIdentifier(t *testing.T) {
	r := NewRegistry()
	e := gate()
	e.SetID("fixed")
	assert.Equal(t, "fixed", r.Insert(e, geom.Pos(1, 2, 3)))

	got, err := r.Get("fixed")
	require.NoError(t, err)
	assert.Same(t, e, got)
	assert.Equal(t, geom.Pos(1, 2, 3), got.Position())
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("nope")
	assert.True(t, errors.Is(err, fault.ErrElementNotFound))
	_, err = r.Remove("nope")
	assert.True(t, errors.Is(err, fault.ErrElementNotFound))
	err = r.Move("nope", geom.Pos(1, 1, 1))
	assert.True(t, errors.Is(err, fault.ErrElementNotFound))
	assert.Empty(t, r.At(geom.Pos(0, 0, 0)))
}

func TestRegistry_MoveKeepsCanonicalOrder(t *testing.T) {
	r := NewRegistry()
	p, q := geom.Pos(0, 0, 0), geom.Pos(1, 0, 0)
	a := r.Insert(gate(), p)
	b := r.Insert(gate(), q)
	c := r.Insert(gate(), p)

	require.NoError(t, r.Move(a, q))

	assert.Equal(t, []string{a, b, c}, ids(r.Elements()))
	assert.Equal(t, []string{c}, ids(r.At(p)))
	assert.Equal(t, []string{b, a}, ids(r.At(q)))
	assert.Equal(t, []geom.Position{p, q}, r.Positions())
	assert.Empty(t, r.check())

	// Moving onto the current position is a no-op.
	require.NoError(t, r.Move(b, q))
	assert.Equal(t, []string{b, a}, ids(r.At(q)))
}

func TestRegistry_RemoveDropsEmptyBuckets(t *testing.T) {
	r := NewRegistry()
	p, q := geom.Pos(0, 0, 0), geom.Pos(0, 1, 0)
	a := r.Insert(gate(), p)
	b := r.Insert(gate(), q)

	removed, err := r.Remove(a)
	require.NoError(t, err)
	assert.False(t, removed.Registered())
	assert.False(t, r.Contains(a))
	assert.Empty(t, r.At(p))
	assert.Equal(t, []geom.Position{q}, r.Positions())
	assert.Equal(t, []string{b}, ids(r.Elements()))
	assert.Empty(t, r.check())

	// A removed element can be inserted again, keeping its identifier.
	assert.Equal(t, a, r.Insert(removed, p))
}

func TestElement_Clone(t *testing.T) {
	r := NewRegistry()
	e := gate()
	e.Properties["lock"] = 1
	r.Insert(e, geom.Pos(1, 1, 1))

	c := e.Clone()
	c.Properties["lock"] = 0
	c.Pins[0] = "changed"

	assert.Equal(t, e.ID(), c.ID())
	assert.Equal(t, e.Position(), c.Position())
	assert.False(t, c.Registered())
	assert.Equal(t, 1.0, e.Properties["lock"])
	assert.Equal(t, "i_up", e.Pins[0])
}

// TestRegistry_StaysConsistent drives random operations against a simple
// slice model and checks all indexes after every step.
func TestRegistry_StaysConsistent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		var model []string
		posOf := map[string]geom.Position{}
		posGen := rapid.Custom(func(t *rapid.T) geom.Position {
			return geom.Pos(float64(rapid.IntRange(0, 3).Draw(t, "x")), float64(rapid.IntRange(0, 2).Draw(t, "y")), 0)
		})

		t.Repeat(map[string]func(*rapid.T){
			"insert": func(t *rapid.T) {
				pos := posGen.Draw(t, "pos")
				id := r.Insert(gate(), pos)
				model = append(model, id)
				posOf[id] = pos
			},
			"remove": func(t *rapid.T) {
				if len(model) == 0 {
					t.Skip("empty")
				}
				i := rapid.IntRange(0, len(model)-1).Draw(t, "i")
				if _, err := r.Remove(model[i]); err != nil {
					t.Fatalf("Remove: %v", err)
				}
				delete(posOf, model[i])
				model = slices.Delete(model, i, i+1)
			},
			"move": func(t *rapid.T) {
				if len(model) == 0 {
					t.Skip("empty")
				}
				id := model[rapid.IntRange(0, len(model)-1).Draw(t, "i")]
				pos := posGen.Draw(t, "pos")
				if err := r.Move(id, pos); err != nil {
					t.Fatalf("Move: %v", err)
				}
				posOf[id] = pos
			},
			"": func(t *rapid.T) {
				if msg := r.check(); msg != "" {
					t.Fatalf("inconsistent: %s", msg)
				}
				if got := ids(r.Elements()); !slices.Equal(got, model) {
					t.Fatalf("order = %v, want %v", got, model)
				}
				for id, pos := range posOf {
					if !slices.Contains(ids(r.At(pos)), id) {
						t.Fatalf("%s missing at %s", id, pos)
					}
				}
			},
		})
	})
}

func TestRegistry_DuplicateIdentifierAborts(t *testing.T) {
	if os.Getenv("LABKIT_REGISTRY_HELPER") == "1" {
		r := NewRegistry()
		a, b := gate(), gate()
		a.SetID("same")
		b.SetID("same")
		r.Insert(a, geom.Pos(0, 0, 0))
		r.Insert(b, geom.Pos(1, 0, 0))
		os.Exit(0)
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestRegistry_DuplicateIdentifierAborts$") // #nosec G204 -- current test binary with fixed args
	cmd.Env = append(os.Environ(), "LABKIT_REGISTRY_HELPER=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "expected abort, got %v", err)
	assert.Equal(t, fault.AbortExitCode, exitErr.ExitCode())
	assert.True(t, strings.Contains(stderr.String(), "duplicate element identifier same"),
		fmt.Sprintf("stderr:\n%s", stderr.String()))
}
