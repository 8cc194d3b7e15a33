// Package catalog builds unplaced elements from named templates.
package catalog

import (
	"maps"
	"slices"
	"sort"

	"github.com/nvandessel/labkit/internal/element"
	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
)

// Params carries template-specific build parameters as raw strings, the way
// they arrive from the command line or a tool call.
type Params map[string]string

// Template describes one element model.
type Template struct {
	Model      string
	Type       exptype.Type
	Pins       []string
	Big        bool
	Properties map[string]float64
	Statistics map[string]float64

	// Configure applies Params to a freshly built element. Templates without
	// it reject any parameter.
	Configure func(e *element.Element, p Params) error
}

// Catalog is a set of templates keyed by model ID. The zero value is not
// usable; use New or Default.
type Catalog struct {
	templates map[string]Template
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{templates: make(map[string]Template)}
}

// Register adds t, replacing any template with the same model ID.
func (c *Catalog) Register(t Template) error {
	if t.Model == "" {
		return fault.New(fault.KindInvalidArgument, "template has no model ID")
	}
	if !t.Type.Valid() {
		return fault.New(fault.KindInvalidArgument, "template %q has unknown experiment type %d", t.Model, int(t.Type))
	}
	c.templates[t.Model] = t
	return nil
}

// Lookup returns the template for model.
func (c *Catalog) Lookup(model string) (Template, bool) {
	t, ok := c.templates[model]
	return t, ok
}

// Models lists the model IDs available for typ, sorted.
func (c *Catalog) Models(typ exptype.Type) []string {
	var out []string
	for model, t := range c.templates {
		if t.Type == typ {
			out = append(out, model)
		}
	}
	sort.Strings(out)
	return out
}

// Build returns a new unplaced element of model.
func (c *Catalog) Build(model string, p Params) (*element.Element, error) {
	t, ok := c.templates[model]
	if !ok {
		return nil, fault.New(fault.KindInvalidArgument, "unknown element model %q", model)
	}

	e := element.New(t.Model, t.Type, slices.Clone(t.Pins)...)
	e.Big = t.Big
	e.Properties = maps.Clone(t.Properties)
	e.Statistics = maps.Clone(t.Statistics)
	if e.Properties == nil {
		e.Properties = map[string]float64{}
	}
	if e.Statistics == nil {
		e.Statistics = map[string]float64{}
	}

	if t.Configure != nil {
		if err := t.Configure(e, p); err != nil {
			return nil, err
		}
	} else if len(p) > 0 {
		return nil, fault.New(fault.KindInvalidArgument, "element model %q takes no parameters", model)
	}
	return e, nil
}

// Default returns a catalog holding every built-in template.
func Default() *Catalog {
	c := New()
	for _, t := range builtin() {
		if err := c.Register(t); err != nil {
			fault.Abortf("built-in template %q: %v", t.Model, err)
		}
	}
	return c
}
