package experiment

import (
	"fmt"
	"sync"
	"time"

	"github.com/nvandessel/labkit/internal/archive"
	"github.com/nvandessel/labkit/internal/catalog"
	"github.com/nvandessel/labkit/internal/element"
	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/geom"
	"github.com/nvandessel/labkit/internal/wire"
)

// State is the lifecycle state of a handle.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Experiment is a handle on one open document: its elements, wires, origin
// and camera.
type Experiment struct {
	wb   *Workbench
	name string
	typ  exptype.Type

	mu        sync.Mutex
	state     State
	reg       *element.Registry
	wires     *wire.Set
	origin    geom.Origin
	grid      bool
	camera    archive.Camera
	createdAt time.Time
	updatedAt time.Time
}

func newExperiment(w *Workbench, name string, typ exptype.Type) *Experiment {
	return &Experiment{
		wb:     w,
		name:   name,
		typ:    typ,
		state:  Open,
		reg:    element.NewRegistry(),
		wires:  wire.NewSet(),
		camera: archive.DefaultCamera(typ),
	}
}

// Name returns the experiment name.
func (e *Experiment) Name() string { return e.name }

// Type returns the experiment type.
func (e *Experiment) Type() exptype.Type { return e.typ }

// State returns the lifecycle state.
func (e *Experiment) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Experiment) checkOpen() error {
	if e.state != Open {
		return fault.New(fault.KindExperimentClosed, "experiment %q has been closed", e.name)
	}
	return nil
}

func (e *Experiment) requireGrid(op string) error {
	if !e.typ.SupportsGrid() {
		return fault.New(fault.KindWrongExperimentType, "%s requires a circuit experiment, %q is %s", op, e.name, e.typ)
	}
	return nil
}

// begin locks e and checks that it is open. The returned function unlocks.
func (e *Experiment) begin() (func(), error) {
	e.mu.Lock()
	if err := e.checkOpen(); err != nil {
		e.mu.Unlock()
		return nil, e.wb.fail(err)
	}
	return e.mu.Unlock, nil
}

// GridMode reports whether Place and Move take grid coordinates.
func (e *Experiment) GridMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid
}

// SetGridMode switches Place and Move between grid and native coordinates.
func (e *Experiment) SetGridMode(on bool) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()
	if err := e.requireGrid("grid mode"); err != nil {
		return e.wb.fail(err)
	}
	e.grid = on
	return nil
}

// Origin returns the native position of grid (0, 0, 0).
func (e *Experiment) Origin() (geom.Origin, error) {
	done, err := e.begin()
	if err != nil {
		return geom.Origin{}, err
	}
	defer done()
	return e.origin, nil
}

// SetOrigin moves the grid origin. Elements already placed keep their native
// positions.
func (e *Experiment) SetOrigin(o geom.Origin) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()
	if err := e.requireGrid("setting the origin"); err != nil {
		return e.wb.fail(err)
	}
	if err := o.Validate(); err != nil {
		return e.wb.fail(err)
	}
	e.origin = o
	return nil
}

// ToNative converts a grid position with this experiment's origin.
func (e *Experiment) ToNative(grid geom.Position, big bool) (geom.Position, error) {
	done, err := e.begin()
	if err != nil {
		return geom.Position{}, err
	}
	defer done()
	if err := e.requireGrid("coordinate conversion"); err != nil {
		return geom.Position{}, e.wb.fail(err)
	}
	return geom.ToNative(grid, e.origin, big), nil
}

// ToGrid converts a native position with this experiment's origin.
func (e *Experiment) ToGrid(native geom.Position, big bool) (geom.Position, error) {
	done, err := e.begin()
	if err != nil {
		return geom.Position{}, err
	}
	defer done()
	if err := e.requireGrid("coordinate conversion"); err != nil {
		return geom.Position{}, e.wb.fail(err)
	}
	return geom.ToGrid(native, e.origin, big), nil
}

// Camera returns the saved viewpoint.
func (e *Experiment) Camera() (archive.Camera, error) {
	done, err := e.begin()
	if err != nil {
		return archive.Camera{}, err
	}
	defer done()
	return e.camera, nil
}

// SetCamera replaces the saved viewpoint.
func (e *Experiment) SetCamera(c archive.Camera) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()
	if !c.VisionCenter.Finite() || !c.TargetRotation.Finite() {
		return e.wb.fail(fault.New(fault.KindInvalidArgument, "camera positions must be finite"))
	}
	e.camera = c
	return nil
}

// Place inserts el at pos, read as grid coordinates in grid mode and native
// coordinates otherwise. It returns the element identifier.
func (e *Experiment) Place(el *element.Element, pos geom.Position) (string, error) {
	done, err := e.begin()
	if err != nil {
		return "", err
	}
	defer done()
	return e.place(el, pos, e.grid)
}

// PlaceGrid inserts el at grid position pos regardless of the grid mode.
func (e *Experiment) PlaceGrid(el *element.Element, pos geom.Position) (string, error) {
	done, err := e.begin()
	if err != nil {
		return "", err
	}
	defer done()
	if err := e.requireGrid("grid placement"); err != nil {
		return "", e.wb.fail(err)
	}
	return e.place(el, pos, true)
}

// PlaceModel builds model from the catalog and places it like Place.
// The handle is checked before the catalog, so a closed handle reports
// ExperimentClosed whatever the model. The returned element is a snapshot.
func (e *Experiment) PlaceModel(model string, params catalog.Params, pos geom.Position) (*element.Element, error) {
	done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	el, err := e.wb.catalog.Build(model, params)
	if err != nil {
		return nil, e.wb.fail(err)
	}
	if _, err := e.place(el, pos, e.grid); err != nil {
		return nil, err
	}
	return el.Clone(), nil
}

func (e *Experiment) place(el *element.Element, pos geom.Position, grid bool) (string, error) {
	if el == nil {
		return "", e.wb.fail(fault.New(fault.KindInvalidArgument, "element is nil"))
	}
	if el.Registered() {
		return "", e.wb.fail(fault.New(fault.KindInvalidArgument, "element %s is already placed", el.ID()))
	}
	if el.Type != e.typ {
		return "", e.wb.fail(fault.New(fault.KindWrongExperimentType,
			"%s is a %s element, %q is a %s experiment", el.Model, el.Type, e.name, e.typ))
	}
	if err := pos.Validate(); err != nil {
		return "", e.wb.fail(err)
	}
	if id := el.ID(); id != "" && e.reg.Contains(id) {
		return "", e.wb.fail(fault.New(fault.KindInvalidArgument, "element identifier %s is already used", id))
	}

	native := pos
	if grid {
		native = geom.ToNative(pos, e.origin, el.Big)
	}
	id := e.reg.Insert(el, native)
	e.wb.metrics.Placed(e.typ.String(), grid)
	return id, nil
}

// Element returns a snapshot of the element with id. Later changes to the
// experiment do not show through it.
func (e *Experiment) Element(id string) (*element.Element, error) {
	done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	el, err := e.reg.Get(id)
	if err != nil {
		return nil, e.wb.fail(err)
	}
	return el.Clone(), nil
}

// ElementsAt returns snapshots of the elements at native position pos in
// placement order.
func (e *Experiment) ElementsAt(pos geom.Position) ([]*element.Element, error) {
	done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	return snapshot(e.reg.At(pos)), nil
}

// Elements returns snapshots of every element in export order.
func (e *Experiment) Elements() ([]*element.Element, error) {
	done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	return snapshot(e.reg.Elements()), nil
}

// snapshot clones els so callers can read them outside e.mu.
func snapshot(els []*element.Element) []*element.Element {
	out := make([]*element.Element, len(els))
	for i, el := range els {
		out[i] = el.Clone()
	}
	return out
}

// Move relocates element id. pos follows the grid mode like Place.
func (e *Experiment) Move(id string, pos geom.Position) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()
	el, err := e.reg.Get(id)
	if err != nil {
		return e.wb.fail(err)
	}
	if err := pos.Validate(); err != nil {
		return e.wb.fail(err)
	}
	if e.grid {
		pos = geom.ToNative(pos, e.origin, el.Big)
	}
	return e.reg.Move(id, pos)
}

// Remove deletes element id and every wire attached to it.
func (e *Experiment) Remove(id string) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()
	if _, err := e.reg.Remove(id); err != nil {
		return e.wb.fail(err)
	}
	if n := e.wires.PurgeElement(id); n > 0 {
		e.wb.logger.Debug("removed wires with element", "experiment", e.name, "element", id, "wires", n)
	}
	return nil
}

// resolve checks that ref names a pin of a present element.
func (e *Experiment) resolve(ref element.PinRef) error {
	el, err := e.reg.Get(ref.Element)
	if err != nil {
		return fault.Wrap(fault.KindInvalidWire, err, "wire endpoint %s", ref.Element)
	}
	if !el.HasPin(ref.Pin) {
		return fault.New(fault.KindInvalidWire, "%s %s has no pin %d (has %d)", el.Model, ref.Element, ref.Pin, el.PinCount())
	}
	return nil
}

// Connect wires pin a to pin b. An empty color means the default.
func (e *Experiment) Connect(a, b element.PinRef, color string) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()
	if !e.typ.SupportsWires() {
		return e.wb.fail(fault.New(fault.KindWrongExperimentType, "%s experiments have no wires", e.typ))
	}
	if err := e.resolve(a); err != nil {
		return e.wb.fail(err)
	}
	if err := e.resolve(b); err != nil {
		return e.wb.fail(err)
	}
	if color, err = wire.ParseColor(color); err != nil {
		return e.wb.fail(err)
	}
	if err := e.wires.Add(wire.Wire{A: a, B: b, Color: color}); err != nil {
		return e.wb.fail(err)
	}
	e.wb.metrics.Wire("connect")
	return nil
}

// Disconnect removes the wire between a and b.
func (e *Experiment) Disconnect(a, b element.PinRef) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()
	if err := e.wires.Remove(wire.Wire{A: a, B: b}); err != nil {
		return e.wb.fail(err)
	}
	e.wb.metrics.Wire("disconnect")
	return nil
}

// Wires returns the wires in the order they were connected.
func (e *Experiment) Wires() ([]wire.Wire, error) {
	done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	return e.wires.List(), nil
}

// Document returns a snapshot for the archive codec.
func (e *Experiment) Document() (*archive.Document, error) {
	done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()
	return e.document(), nil
}

// document builds the snapshot. Callers hold e.mu.
func (e *Experiment) document() *archive.Document {
	e.reg.Verify()
	d := &archive.Document{
		Name:      e.name,
		Type:      e.typ,
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
		Origin:    e.origin,
		GridMode:  e.grid,
		Camera:    e.camera,
	}
	for _, el := range e.reg.Elements() {
		c := el.Clone()
		d.Elements = append(d.Elements, archive.Element{
			ID:         c.ID(),
			Model:      c.Model,
			Position:   c.Position(),
			Rotation:   c.Rotation,
			Locked:     c.Locked,
			Broken:     c.Broken,
			Properties: c.Properties,
			Statistics: c.Statistics,
		})
	}
	for _, w := range e.wires.List() {
		d.Wires = append(d.Wires, archive.Wire{
			Source:    w.A.Element,
			SourcePin: w.A.Pin,
			Target:    w.B.Element,
			TargetPin: w.B.Pin,
			Color:     w.Color,
		})
	}
	return d
}

// restore rebuilds an open experiment from a decoded archive. Every problem
// with the document is an InvalidArchive error; identifiers are checked
// before insertion so a bad archive never reaches the registry's abort path.
func (w *Workbench) restore(d *archive.Document) (*Experiment, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	e := newExperiment(w, d.Name, d.Type)
	e.origin = d.Origin
	e.grid = d.GridMode && d.Type.SupportsGrid()
	e.camera = d.Camera
	e.createdAt, e.updatedAt = d.CreatedAt, d.UpdatedAt

	for i, rec := range d.Elements {
		if rec.Model == "" {
			return nil, fault.New(fault.KindInvalidArchive, "element %d (%s) has no model", i, rec.ID)
		}
		var el *element.Element
		if _, known := w.catalog.Lookup(rec.Model); known {
			built, err := w.catalog.Build(rec.Model, nil)
			if err != nil {
				return nil, fault.Wrap(fault.KindInvalidArchive, err, "element %d (%s)", i, rec.ID)
			}
			el = built
		} else {
			// Carried through unchanged. Without a template there are no pins
			// to wire to.
			el = element.New(rec.Model, d.Type)
			w.logger.Warn("importing element of unknown model", "experiment", d.Name, "element", rec.ID, "model", rec.Model)
		}
		if el.Type != d.Type {
			return nil, fault.New(fault.KindInvalidArchive, "element %s is a %s model in a %s experiment", rec.ID, el.Type, d.Type)
		}
		if e.reg.Contains(rec.ID) {
			return nil, fault.New(fault.KindInvalidArchive, "duplicate element identifier %s", rec.ID)
		}
		el.SetID(rec.ID)
		el.Rotation = rec.Rotation
		el.Locked = rec.Locked
		el.Broken = rec.Broken
		if rec.Properties != nil {
			el.Properties = rec.Properties
		}
		if rec.Statistics != nil {
			el.Statistics = rec.Statistics
		}
		e.reg.Insert(el, rec.Position)
	}

	for _, rec := range d.Wires {
		a := element.PinRef{Element: rec.Source, Pin: rec.SourcePin}
		b := element.PinRef{Element: rec.Target, Pin: rec.TargetPin}
		if err := e.resolve(a); err != nil {
			return nil, fault.Wrap(fault.KindInvalidArchive, err, "wire %s-%s", rec.Source, rec.Target)
		}
		if err := e.resolve(b); err != nil {
			return nil, fault.Wrap(fault.KindInvalidArchive, err, "wire %s-%s", rec.Source, rec.Target)
		}
		color := rec.Color
		if parsed, err := wire.ParseColor(color); err == nil {
			color = parsed
		}
		if err := e.wires.Add(wire.Wire{A: a, B: b, Color: color}); err != nil {
			return nil, fault.Wrap(fault.KindInvalidArchive, err, "wire %s-%s", rec.Source, rec.Target)
		}
	}
	e.reg.Verify()
	return e, nil
}

// String identifies the handle in logs.
func (e *Experiment) String() string {
	return fmt.Sprintf("%s(%s)", e.name, e.typ)
}
