// Package archive encodes experiment documents as consumer "sav" files and as
// compressed, checksummed bundles.
package archive

import (
	"time"

	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/geom"
)

// Document is the archive-level view of one experiment.
type Document struct {
	Name      string        `json:"name"`
	Type      exptype.Type  `json:"type"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Origin    geom.Position `json:"origin"`
	GridMode  bool          `json:"grid_mode"`
	Camera    Camera        `json:"camera"`
	Elements  []Element     `json:"elements"`
	Wires     []Wire        `json:"wires"`
}

// Camera is the saved viewpoint.
type Camera struct {
	Mode           int           `json:"mode"`
	Distance       float64       `json:"distance"`
	VisionCenter   geom.Position `json:"vision_center"`
	TargetRotation geom.Position `json:"target_rotation"`
}

// DefaultCamera returns the viewpoint the consumer uses for new experiments
// of typ.
func DefaultCamera(typ exptype.Type) Camera {
	switch typ {
	case exptype.Celestial:
		return Camera{Mode: 2, Distance: 2.75, VisionCenter: geom.Pos(0, 0, 1.08), TargetRotation: geom.Pos(90, 0, 0)}
	case exptype.Electromagnetism:
		return Camera{Mode: 0, Distance: 3.25, VisionCenter: geom.Pos(0, 0, 0.88), TargetRotation: geom.Pos(90, 0, 0)}
	default:
		return Camera{Mode: 0, Distance: 2.7, VisionCenter: geom.Pos(0.3986, 0.2, 0.0), TargetRotation: geom.Pos(50, 0, 0)}
	}
}

// Element is one element record. Position is native.
type Element struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Position   geom.Position      `json:"position"`
	Rotation   geom.Position      `json:"rotation"`
	Locked     bool               `json:"locked"`
	Broken     bool               `json:"broken"`
	Properties map[string]float64 `json:"properties,omitempty"`
	Statistics map[string]float64 `json:"statistics,omitempty"`
}

// Wire is one wire record.
type Wire struct {
	Source    string `json:"source"`
	SourcePin int    `json:"source_pin"`
	Target    string `json:"target"`
	TargetPin int    `json:"target_pin"`
	Color     string `json:"color"`
}

// Validate checks the structural rules every decoded document must satisfy:
// a known type, finite positions, unique non-empty identifiers and wires that
// reference present elements. Violations are InvalidArchive errors.
func (d *Document) Validate() error {
	if !d.Type.Valid() {
		return fault.New(fault.KindInvalidArchive, "unknown experiment type %d", int(d.Type))
	}
	if !d.Origin.Finite() {
		return fault.New(fault.KindInvalidArchive, "origin %s is not finite", d.Origin)
	}
	if len(d.Wires) > 0 && !d.Type.SupportsWires() {
		return fault.New(fault.KindInvalidArchive, "%s experiments cannot contain wires", d.Type)
	}

	seen := make(map[string]struct{}, len(d.Elements))
	for i, e := range d.Elements {
		if e.ID == "" {
			return fault.New(fault.KindInvalidArchive, "element %d has no identifier", i)
		}
		if _, dup := seen[e.ID]; dup {
			return fault.New(fault.KindInvalidArchive, "duplicate element identifier %s", e.ID)
		}
		seen[e.ID] = struct{}{}
		if !e.Position.Finite() || !e.Rotation.Finite() {
			return fault.New(fault.KindInvalidArchive, "element %s has a non-finite position or rotation", e.ID)
		}
	}
	for _, w := range d.Wires {
		if _, ok := seen[w.Source]; !ok {
			return fault.New(fault.KindInvalidArchive, "wire source %s is not an element", w.Source)
		}
		if _, ok := seen[w.Target]; !ok {
			return fault.New(fault.KindInvalidArchive, "wire target %s is not an element", w.Target)
		}
		if w.SourcePin < 0 || w.TargetPin < 0 {
			return fault.New(fault.KindInvalidArchive, "wire %s-%s has a negative pin", w.Source, w.Target)
		}
		if w.Source == w.Target && w.SourcePin == w.TargetPin {
			return fault.New(fault.KindInvalidArchive, "wire %s[%d] connects a pin to itself", w.Source, w.SourcePin)
		}
	}
	return nil
}
