package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/alecycle/internal/cycle"
	"github.com/roach88/alecycle/internal/ir"
	"github.com/roach88/alecycle/internal/report"
	"github.com/roach88/alecycle/internal/store"
	"github.com/roach88/alecycle/internal/subscriber"
)

// Depot persists definitions and subscriptions. Implemented by *store.Store.
type Depot interface {
	SaveDefinition(ctx context.Context, kind, name string, spec any) error
	DeleteDefinition(ctx context.Context, kind, name string) error
	Definitions(ctx context.Context, kind string) ([]store.Definition, error)
	SaveSubscription(ctx context.Context, kind, name, uri string) error
	DeleteSubscription(ctx context.Context, kind, name, uri string) error
	Subscriptions(ctx context.Context, kind, name string) ([]string, error)
}

// family adapts one definition type to the cycle engine.
type family[S any] struct {
	kind      cycle.Kind
	depotKind string
	config    func(name string, spec S) (cycle.Config, error)
}

// entry is one named definition. cycle is nil while Define is still
// constructing it.
type entry[S any] struct {
	spec  S
	cycle *cycle.Cycle
	subs  map[string]subscriber.Subscriber
}

// Cycles maps definition names of one family to running cycles.
//
// One mutex guards the name maps. It is never held across a cycle call
// that can block (construction, disposal, waiting for a report).
type Cycles[S any] struct {
	deps   cycle.Deps
	family family[S]
	depot  Depot

	mu       sync.Mutex
	entries  map[string]*entry[S]
	volatile map[*cycle.Cycle]struct{}
	closed   bool
}

// Option configures a Cycles manager.
type Option func(*options)

type options struct {
	depot Depot
}

// WithDepot enables persistence. Define, Undefine, Subscribe and
// Unsubscribe write through to d when asked to persist; Restore reads d.
func WithDepot(d Depot) Option {
	return func(o *options) {
		o.depot = d
	}
}

// NewEventCycles creates the event-cycle manager.
func NewEventCycles(deps cycle.Deps, opts ...Option) *Cycles[ir.ECSpec] {
	return newCycles(deps, family[ir.ECSpec]{
		kind:      cycle.KindEvent,
		depotKind: store.KindEventCycle,
		config:    eventConfig,
	}, opts)
}

// NewPortCycles creates the port-cycle manager.
func NewPortCycles(deps cycle.Deps, opts ...Option) *Cycles[ir.PCSpec] {
	return newCycles(deps, family[ir.PCSpec]{
		kind:      cycle.KindPort,
		depotKind: store.KindPortCycle,
		config:    portConfig,
	}, opts)
}

func newCycles[S any](deps cycle.Deps, f family[S], opts []Option) *Cycles[S] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Cycles[S]{
		deps:     deps,
		family:   f,
		depot:    o.depot,
		entries:  make(map[string]*entry[S]),
		volatile: make(map[*cycle.Cycle]struct{}),
	}
}

func eventConfig(name string, spec ir.ECSpec) (cycle.Config, error) {
	if len(spec.Reports) == 0 {
		return cycle.Config{}, &ir.Error{Code: ir.ErrCodeValidation, Message: "no reports", Name: name}
	}
	for _, r := range spec.Reports {
		if !ir.ValidReportSets[r.Set] {
			return cycle.Config{}, &ir.Error{
				Code:    ir.ErrCodeValidation,
				Message: fmt.Sprintf("report %q: invalid set %q", r.Name, r.Set),
				Name:    name,
			}
		}
	}
	return cycle.Config{
		Name:             name,
		Kind:             cycle.KindEvent,
		Readers:          spec.LogicalReaders,
		Boundary:         spec.Boundary,
		PrimaryKeyFields: spec.PrimaryKeyFields,
		Builder:          report.NewEventBuilder(spec),
	}, nil
}

func portConfig(name string, spec ir.PCSpec) (cycle.Config, error) {
	if len(spec.Reports) == 0 {
		return cycle.Config{}, &ir.Error{Code: ir.ErrCodeValidation, Message: "no reports", Name: name}
	}
	return cycle.Config{
		Name:     name,
		Kind:     cycle.KindPort,
		Readers:  spec.LogicalReaders,
		Boundary: spec.Boundary,
		Pins:     report.PinsOf(spec),
		Builder:  report.NewPortBuilder(spec),
	}, nil
}

// Kind returns the cycle kind this manager defines.
func (m *Cycles[S]) Kind() cycle.Kind { return m.family.kind }

func errClosed() error {
	return ir.Errorf(ir.ErrCodeImplementation, "manager closed")
}

func noSuchName(name string) error {
	return &ir.Error{Code: ir.ErrCodeNoSuchName, Message: "no such definition", Name: name}
}

// Define creates and starts the cycle for name. With persist the
// definition is also written to the depot; a depot failure undoes the
// definition.
func (m *Cycles[S]) Define(ctx context.Context, name string, spec S, persist bool) error {
	if err := ir.ValidName(name); err != nil {
		return err
	}
	cfg, err := m.family.config(name, spec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errClosed()
	}
	if _, ok := m.entries[name]; ok {
		m.mu.Unlock()
		return &ir.Error{Code: ir.ErrCodeDuplicateName, Message: "already defined", Name: name}
	}
	e := &entry[S]{spec: spec, subs: make(map[string]subscriber.Subscriber)}
	m.entries[name] = e
	m.mu.Unlock()

	c, err := cycle.New(m.deps, cfg)
	if err != nil {
		m.remove(name, e)
		return err
	}

	if persist && m.depot != nil {
		if err := m.depot.SaveDefinition(ctx, m.family.depotKind, name, spec); err != nil {
			m.remove(name, e)
			c.Dispose()
			return ir.WrapError(ir.ErrCodeImplementation, "persist definition", err)
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		c.Dispose()
		return errClosed()
	}
	e.cycle = c
	m.mu.Unlock()
	return nil
}

func (m *Cycles[S]) remove(name string, e *entry[S]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[name] == e {
		delete(m.entries, name)
	}
}

// lookupLocked returns the entry of a fully defined name. Callers hold m.mu.
func (m *Cycles[S]) lookupLocked(name string) (*entry[S], error) {
	e, ok := m.entries[name]
	if !ok || e.cycle == nil {
		return nil, noSuchName(name)
	}
	return e, nil
}

// Undefine disposes the cycle of name. Subscribers receive the UNDEFINE
// report before Undefine returns.
func (m *Cycles[S]) Undefine(ctx context.Context, name string, persist bool) error {
	m.mu.Lock()
	e, err := m.lookupLocked(name)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.entries, name)
	m.mu.Unlock()

	e.cycle.Dispose()

	if persist && m.depot != nil {
		if err := m.depot.DeleteDefinition(ctx, m.family.depotKind, name); err != nil {
			return ir.WrapError(ir.ErrCodeImplementation, "delete definition", err)
		}
	}
	return nil
}

// Spec returns the definition of name.
func (m *Cycles[S]) Spec(name string) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookupLocked(name)
	if err != nil {
		var zero S
		return zero, err
	}
	return e.spec, nil
}

// Names returns the defined names in order.
func (m *Cycles[S]) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.entries))
	for name, e := range m.entries {
		if e.cycle != nil {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Subscribe adds a subscriber for uri (http, https or file).
func (m *Cycles[S]) Subscribe(ctx context.Context, name, uri string, persist bool) error {
	ctrl, err := subscriber.New(uri)
	if err != nil {
		return err
	}
	if err := m.SubscribeController(name, ctrl); err != nil {
		ctrl.Dispose()
		return err
	}
	if persist && m.depot != nil {
		if err := m.depot.SaveSubscription(ctx, m.family.depotKind, name, uri); err != nil {
			_ = m.unsubscribe(name, uri)
			return ir.WrapError(ir.ErrCodeImplementation, "persist subscription", err)
		}
	}
	return nil
}

// SubscribeController adds an already constructed subscriber, keyed by
// its URI.
func (m *Cycles[S]) SubscribeController(name string, ctrl subscriber.Subscriber) error {
	uri := ctrl.URI()

	m.mu.Lock()
	e, err := m.lookupLocked(name)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := e.subs[uri]; ok {
		m.mu.Unlock()
		return &ir.Error{Code: ir.ErrCodeDuplicateName, Message: "already subscribed", Name: name, URI: uri}
	}
	e.subs[uri] = ctrl
	m.mu.Unlock()

	if err := e.cycle.Subscribe(ctrl); err != nil {
		m.mu.Lock()
		if e.subs[uri] == ctrl {
			delete(e.subs, uri)
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe removes the subscriber for uri. Reports already captured
// for it are still delivered.
func (m *Cycles[S]) Unsubscribe(ctx context.Context, name, uri string, persist bool) error {
	if err := m.unsubscribe(name, uri); err != nil {
		return err
	}
	if persist && m.depot != nil {
		if err := m.depot.DeleteSubscription(ctx, m.family.depotKind, name, uri); err != nil {
			return ir.WrapError(ir.ErrCodeImplementation, "delete subscription", err)
		}
	}
	return nil
}

func (m *Cycles[S]) unsubscribe(name, uri string) error {
	m.mu.Lock()
	e, err := m.lookupLocked(name)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	ctrl, ok := e.subs[uri]
	if !ok {
		m.mu.Unlock()
		return &ir.Error{Code: ir.ErrCodeNoSuchName, Message: "no such subscriber", Name: name, URI: uri}
	}
	delete(e.subs, uri)
	m.mu.Unlock()

	return e.cycle.Unsubscribe(ctrl)
}

// Subscribers returns the subscriber URIs of name in order.
func (m *Cycles[S]) Subscribers(name string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookupLocked(name)
	if err != nil {
		return nil, err
	}
	uris := make([]string, 0, len(e.subs))
	for uri := range e.subs {
		uris = append(uris, uri)
	}
	slices.Sort(uris)
	return uris, nil
}

// Poll waits for the next boundary of name and returns its report. A nil
// report without error means the boundary produced nothing to deliver.
func (m *Cycles[S]) Poll(ctx context.Context, name string) (*ir.Reports, error) {
	m.mu.Lock()
	e, err := m.lookupLocked(name)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ch := subscriber.NewChannel("poll:"+name, 1)
	if err := e.cycle.Listen(ch); err != nil {
		return nil, err
	}
	return ch.Wait(ctx)
}

// Immediate runs spec once on an anonymous cycle and returns its single
// report. The cycle disposes itself after that boundary.
func (m *Cycles[S]) Immediate(ctx context.Context, spec S) (*ir.Reports, error) {
	cfg, err := m.family.config("", spec)
	if err != nil {
		return nil, err
	}
	cfg.Volatile = true
	cfg.OnDispose = m.forget

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errClosed()
	}
	m.mu.Unlock()

	c, err := cycle.New(m.deps, cfg)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.volatile[c] = struct{}{}
	m.mu.Unlock()

	ch := subscriber.NewChannel("immediate:"+c.ID(), 1)
	if err := c.Listen(ch); err != nil {
		go c.Dispose()
		return nil, err
	}
	r, err := ch.Wait(ctx)
	if err != nil {
		go c.Dispose()
		return nil, err
	}
	return r, nil
}

// forget drops a disposed volatile cycle.
func (m *Cycles[S]) forget(c *cycle.Cycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.volatile, c)
}

// Volatile returns the number of immediate cycles still running.
func (m *Cycles[S]) Volatile() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.volatile)
}

// Restore re-defines every persisted definition and its subscriptions.
// Failures are logged and collected; restoring continues past them.
func (m *Cycles[S]) Restore(ctx context.Context) error {
	if m.depot == nil {
		return nil
	}
	defs, err := m.depot.Definitions(ctx, m.family.depotKind)
	if err != nil {
		return fmt.Errorf("restore %s: %w", m.family.depotKind, err)
	}

	var errs []error
	for _, d := range defs {
		var spec S
		if err := d.Decode(&spec); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := m.Define(ctx, d.Name, spec, false); err != nil {
			slog.Error("restore definition failed",
				"kind", d.Kind,
				"name", d.Name,
				"error", err,
				"event", "restore_failed",
			)
			errs = append(errs, fmt.Errorf("restore %s %q: %w", d.Kind, d.Name, err))
			continue
		}

		uris, err := m.depot.Subscriptions(ctx, m.family.depotKind, d.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, uri := range uris {
			if err := m.Subscribe(ctx, d.Name, uri, false); err != nil {
				slog.Error("restore subscription failed",
					"kind", d.Kind,
					"name", d.Name,
					"uri", uri,
					"error", err,
					"event", "restore_failed",
				)
				errs = append(errs, fmt.Errorf("restore subscription %q of %q: %w", uri, d.Name, err))
			}
		}
		slog.Info("definition restored", "kind", d.Kind, "name", d.Name, "subscribers", len(uris), "event", "restore")
	}
	return errors.Join(errs...)
}

// Close disposes every cycle, named and volatile. Disposal continues past
// individual failures.
func (m *Cycles[S]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cycles := make([]*cycle.Cycle, 0, len(m.entries)+len(m.volatile))
	for _, e := range m.entries {
		if e.cycle != nil {
			cycles = append(cycles, e.cycle)
		}
	}
	for c := range m.volatile {
		cycles = append(cycles, c)
	}
	m.entries = make(map[string]*entry[S])
	m.mu.Unlock()

	for _, c := range cycles {
		dispose(c)
	}
}

func dispose(c *cycle.Cycle) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cycle dispose panicked", "cycle", c.Name(), "id", c.ID(), "panic", r, "event", "dispose_failed")
		}
	}()
	c.Dispose()
}
