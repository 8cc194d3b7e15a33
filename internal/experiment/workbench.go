// Package experiment implements the experiment lifecycle. A Workbench hands
// out Experiment handles; each handle is Open until the Workbench closes it,
// and every editing operation on a closed handle fails with ExperimentClosed.
package experiment

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/labkit/internal/archive"
	"github.com/nvandessel/labkit/internal/catalog"
	"github.com/nvandessel/labkit/internal/exptype"
	"github.com/nvandessel/labkit/internal/fault"
	"github.com/nvandessel/labkit/internal/library"
	"github.com/nvandessel/labkit/internal/logging"
	"github.com/nvandessel/labkit/internal/metrics"
)

// CreateMode controls what Create does when the name is already saved.
type CreateMode int

const (
	// CreateNew fails with ExperimentExists if the library has the name.
	CreateNew CreateMode = iota
	// CreateOverwrite starts an empty experiment that replaces the saved one
	// when it is closed with save.
	CreateOverwrite
)

func (m CreateMode) String() string {
	if m == CreateOverwrite {
		return "overwrite"
	}
	return "new"
}

// Option configures a Workbench.
type Option func(*Workbench)

// WithCatalog sets the element catalog used to rebuild archived elements.
func WithCatalog(c *catalog.Catalog) Option {
	return func(w *Workbench) { w.catalog = c }
}

// WithSingleDocument controls whether only one experiment may be open at a
// time. It defaults to true; when false only names are exclusive.
func WithSingleDocument(single bool) Option {
	return func(w *Workbench) { w.single = single }
}

// WithMetrics records lifecycle and editing metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workbench) { w.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workbench) { w.logger = logging.OrDiscard(l) }
}

// WithEventLog records lifecycle events as JSON lines.
func WithEventLog(l *logging.EventLog) Option {
	return func(w *Workbench) { w.events = l }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Workbench) { w.now = now }
}

// Workbench tracks open experiments and moves them in and out of a library.
// It is safe for concurrent use. Each handle serialises its own operations
// and only hands out element snapshots, so no caller shares registry state.
type Workbench struct {
	lib     *library.Library
	catalog *catalog.Catalog
	single  bool
	metrics *metrics.Metrics
	logger  *slog.Logger
	events  *logging.EventLog
	now     func() time.Time

	mu   sync.Mutex
	open map[string]*Experiment
}

// NewWorkbench returns a workbench persisting to lib.
func NewWorkbench(lib *library.Library, opts ...Option) *Workbench {
	w := &Workbench{
		lib:     lib,
		catalog: catalog.Default(),
		single:  true,
		logger:  logging.Discard(),
		now:     time.Now,
		open:    make(map[string]*Experiment),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Library returns the library experiments are saved to.
func (w *Workbench) Library() *library.Library { return w.lib }

// Catalog returns the element catalog.
func (w *Workbench) Catalog() *catalog.Catalog { return w.catalog }

// OpenNames lists the names of open experiments, sorted.
func (w *Workbench) OpenNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.open))
	for name := range w.open {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Active returns the open handle for name, if any.
func (w *Workbench) Active(name string) (*Experiment, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.open[name]
	return e, ok
}

// claim checks that name may be opened. Callers hold w.mu.
func (w *Workbench) claim(name string) error {
	if _, ok := w.open[name]; ok {
		return fault.New(fault.KindExperimentOpened, "experiment %q is already open", name)
	}
	if w.single {
		for other := range w.open {
			return fault.New(fault.KindExperimentOpened, "experiment %q is open; close it before opening %q", other, name)
		}
	}
	return nil
}

// Create opens a new, empty experiment.
func (w *Workbench) Create(ctx context.Context, name string, typ exptype.Type, mode CreateMode) (*Experiment, error) {
	if err := library.ValidateName(name); err != nil {
		return nil, w.fail(err)
	}
	if !typ.Valid() {
		return nil, w.fail(fault.New(fault.KindInvalidArgument, "unknown experiment type %d", int(typ)))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.claim(name); err != nil {
		return nil, w.fail(err)
	}
	if mode == CreateNew {
		exists, err := w.lib.Exists(ctx, name)
		if err != nil {
			return nil, w.fail(err)
		}
		if exists {
			return nil, w.fail(fault.New(fault.KindExperimentExists, "experiment %q already exists", name))
		}
	}

	now := w.now().UTC()
	e := newExperiment(w, name, typ)
	e.createdAt, e.updatedAt = now, now
	w.register(e, "create", "type", typ.String(), "mode", mode.String())
	return e, nil
}

// Open loads the latest saved version of name.
func (w *Workbench) Open(ctx context.Context, name string) (*Experiment, error) {
	if err := library.ValidateName(name); err != nil {
		return nil, w.fail(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.claim(name); err != nil {
		return nil, w.fail(err)
	}
	doc, entry, err := w.lib.Load(ctx, name)
	if err != nil {
		return nil, w.fail(err)
	}
	e, err := w.restore(doc)
	if err != nil {
		return nil, w.fail(err)
	}
	w.register(e, "open", "key", entry.Key)
	return e, nil
}

// Import opens an experiment from archive bytes in either format. The
// library is not touched until the experiment is closed with save.
func (w *Workbench) Import(ctx context.Context, r io.Reader) (*Experiment, error) {
	doc, format, err := archive.Decode(r)
	if err != nil {
		return nil, w.fail(err)
	}
	if err := library.ValidateName(doc.Name); err != nil {
		return nil, w.fail(fault.Wrap(fault.KindInvalidArchive, err, "archive name"))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.claim(doc.Name); err != nil {
		return nil, w.fail(err)
	}
	e, err := w.restore(doc)
	if err != nil {
		return nil, w.fail(err)
	}
	w.register(e, "import", "format", string(format))
	return e, nil
}

// register marks e open. Callers hold w.mu.
func (w *Workbench) register(e *Experiment, op string, fields ...any) {
	w.open[e.name] = e
	w.metrics.Transition(op, 1)
	w.logger.Debug("experiment opened", append([]any{"op", op, "name", e.name}, fields...)...)
	w.events.Emit("experiment."+op, append([]any{"name", e.name, "type", e.typ.String()}, fields...)...)
}

// Save persists e without closing it.
func (w *Workbench) Save(ctx context.Context, e *Experiment) (*library.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return nil, w.fail(err)
	}
	return w.save(ctx, e)
}

// save stamps and stores e. Callers hold e.mu.
func (w *Workbench) save(ctx context.Context, e *Experiment) (*library.Entry, error) {
	prev := e.updatedAt
	e.updatedAt = w.now().UTC()
	entry, err := w.lib.Save(ctx, e.document())
	if err != nil {
		e.updatedAt = prev
		return nil, w.fail(err)
	}
	w.events.Emit("experiment.save", "name", e.name, "key", entry.Key, "elements", entry.Elements, "wires", entry.Wires)
	return entry, nil
}

// Close finishes e. With save it is written to the library first; if that
// fails e stays open.
func (w *Workbench) Close(ctx context.Context, e *Experiment, save bool) error {
	e.mu.Lock()
	if err := e.checkOpen(); err != nil {
		e.mu.Unlock()
		return w.fail(err)
	}
	if save {
		if _, err := w.save(ctx, e); err != nil {
			e.mu.Unlock()
			return err
		}
	} else {
		e.updatedAt = w.now().UTC()
	}
	e.state = Closed
	e.mu.Unlock()

	w.mu.Lock()
	if w.open[e.name] == e {
		delete(w.open, e.name)
	}
	w.mu.Unlock()

	w.metrics.Transition("close", -1)
	w.logger.Debug("experiment closed", "name", e.name, "saved", save)
	w.events.Emit("experiment.close", "name", e.name, "saved", save)
	return nil
}

// Delete removes every saved version of name. An open experiment cannot be
// deleted.
func (w *Workbench) Delete(ctx context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.open[name]; ok {
		return w.fail(fault.New(fault.KindExperimentOpened, "experiment %q is open; close it before deleting", name))
	}
	if err := w.lib.Delete(ctx, name); err != nil {
		return w.fail(err)
	}
	w.metrics.Transition("delete", 0)
	w.events.Emit("experiment.delete", "name", name)
	return nil
}

// fail counts err by kind and returns it unchanged.
func (w *Workbench) fail(err error) error {
	w.metrics.Error(err)
	return err
}
