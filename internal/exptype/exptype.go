// Package exptype enumerates the experiment kinds understood by the consumer
// application.
package exptype

import (
	"strings"

	"github.com/nvandessel/labkit/internal/fault"
)

// Type identifies the kind of an experiment. Values match the numeric type
// tag stored in archives.
type Type int

const (
	Circuit          Type = 0
	Celestial        Type = 3
	Electromagnetism Type = 4
)

// All lists every known type in tag order.
var All = []Type{Circuit, Celestial, Electromagnetism}

var names = map[Type]string{
	Circuit:          "circuit",
	Celestial:        "celestial",
	Electromagnetism: "electromagnetism",
}

// String returns the lowercase name of the type.
func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return "unknown"
}

// Code returns the archive tag for t.
func (t Type) Code() int { return int(t) }

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	_, ok := names[t]
	return ok
}

// SupportsGrid reports whether elements of this type can be placed on the
// grid coordinate system.
func (t Type) SupportsGrid() bool { return t == Circuit }

// SupportsWires reports whether the experiment can hold wires.
func (t Type) SupportsWires() bool { return t == Circuit }

// Parse accepts a type name (case-insensitive) or one of the short aliases
// used on the command line.
func Parse(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "circuit", "c":
		return Circuit, nil
	case "celestial", "astrophysics", "a":
		return Celestial, nil
	case "electromagnetism", "em", "e":
		return Electromagnetism, nil
	}
	return 0, fault.New(fault.KindInvalidArgument, "unknown experiment type %q", s)
}

// FromCode converts an archive tag into a Type.
func FromCode(code int) (Type, error) {
	t := Type(code)
	if !t.Valid() {
		return 0, fault.New(fault.KindInvalidArgument, "unknown experiment type code %d", code)
	}
	return t, nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fault.New(fault.KindInvalidArgument, "unknown experiment type code %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
