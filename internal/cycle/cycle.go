package cycle

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/alecycle/internal/ir"
	"github.com/roach88/alecycle/internal/reader"
	"github.com/roach88/alecycle/internal/trigger"
)

const (
	// DefaultReaderCycle is the data-available window when none is configured.
	DefaultReaderCycle = 100 * time.Millisecond
	// DefaultCompletionTimeout bounds the wait for port operation results.
	DefaultCompletionTimeout = 2 * time.Second
)

// TriggerFactory creates registered triggers. Implemented by
// *trigger.Services.
type TriggerFactory interface {
	New(creatorID, uri string, cb trigger.Callback) (trigger.Trigger, error)
}

// Deps are the collaborators shared by every cycle of a process.
type Deps struct {
	Readers  reader.Manager
	Triggers TriggerFactory
	IDs      IDGenerator

	// ReaderCycle is the data-available window.
	ReaderCycle time.Duration
	// CompletionTimeout bounds the wait for port operation results.
	CompletionTimeout time.Duration
}

// Config describes one cycle.
type Config struct {
	// Name is empty for anonymous (immediate) cycles.
	Name string
	Kind Kind

	Readers  []string
	Boundary ir.BoundarySpec

	// PrimaryKeyFields groups tag sightings; nil means the EPC.
	PrimaryKeyFields []string

	// Pins restricts port observation; empty means every pin.
	Pins []ir.Pin
	// Results is the number of port operation results expected per event.
	Results int

	Builder Builder

	// Volatile cycles dispose themselves after their first boundary.
	Volatile bool
	// OnDispose is called once the cycle has released everything.
	OnDispose func(c *Cycle)
}

// attachment is one reader operation of the cycle.
type attachment struct {
	handle reader.Handle
	op     *reader.Operation
}

// Cycle is one running event or port cycle.
//
// Thread-safety: all exported methods are safe for concurrent use.
// Notify may be called from any reader goroutine.
type Cycle struct {
	id       string
	cfg      Config
	owner    string
	boundary *boundary
	keys     []string
	worker   *worker

	triggers    []trigger.Trigger
	attachments []attachment
	release     rollback

	wake       chan struct{}
	done       chan struct{}
	runnerDone chan struct{}

	mu           sync.Mutex
	subscribers  []Controller
	listeners    []Controller
	active       bool
	busy         bool
	disposed     bool
	undefineSent bool
	pendingStart string
	pendingStop  string
	present      *Data
	past         *Data
	win          window

	disposeOnce sync.Once
}

// New validates cfg, registers the boundary triggers, locks the readers
// and defines the cycle's operation on each, then starts the runner and
// delivery worker. Any failure releases everything acquired so far.
func New(deps Deps, cfg Config) (c *Cycle, err error) {
	if cfg.Kind != KindEvent && cfg.Kind != KindPort {
		return nil, ir.NewValidationError("unknown cycle kind %d", cfg.Kind)
	}
	if cfg.Name != "" {
		if err := ir.ValidName(cfg.Name); err != nil {
			return nil, err
		}
	}
	if len(cfg.Readers) == 0 {
		return nil, &ir.Error{Code: ir.ErrCodeValidation, Message: "no logical readers", Name: cfg.Name}
	}
	keys := cfg.PrimaryKeyFields
	if len(keys) == 0 {
		keys = ir.DefaultPrimaryKeyFields
	}
	if err := ir.ValidatePrimaryKeyFields(keys); err != nil {
		return nil, err
	}
	if deps.ReaderCycle <= 0 {
		deps.ReaderCycle = DefaultReaderCycle
	}
	if deps.CompletionTimeout <= 0 {
		deps.CompletionTimeout = DefaultCompletionTimeout
	}
	if deps.IDs == nil {
		deps.IDs = UUIDv7Generator{}
	}
	b, err := parseBoundary(cfg.Kind, cfg.Boundary, deps.ReaderCycle)
	if err != nil {
		return nil, err
	}
	if (len(b.start) > 0 || len(b.stop) > 0) && deps.Triggers == nil {
		return nil, &ir.Error{Code: ir.ErrCodeImplementation, Message: "no trigger factory", Name: cfg.Name}
	}
	if deps.Readers == nil {
		return nil, &ir.Error{Code: ir.ErrCodeImplementation, Message: "no reader manager", Name: cfg.Name}
	}

	id := deps.IDs.Generate()
	c = &Cycle{
		id:         id,
		cfg:        cfg,
		owner:      "cycle:" + id,
		boundary:   b,
		keys:       keys,
		worker:     newWorker(id, cfg.Name, cfg.Builder, deps.CompletionTimeout),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		runnerDone: make(chan struct{}),
		present:    NewData(),
	}

	var undo rollback
	defer func() {
		if err != nil {
			undo.run()
			c = nil
		}
	}()

	for _, uri := range b.start {
		t, err := deps.Triggers.New(id, uri, c.onStart)
		if err != nil {
			return nil, err
		}
		undo.add(t.Dispose)
		c.triggers = append(c.triggers, t)
	}
	for _, uri := range b.stop {
		t, err := deps.Triggers.New(id, uri, c.onStop)
		if err != nil {
			return nil, err
		}
		undo.add(t.Dispose)
		c.triggers = append(c.triggers, t)
	}

	for _, name := range cfg.Readers {
		a, release, err := c.attach(deps.Readers, name)
		if err != nil {
			return nil, err
		}
		undo.add(release)
		c.release.add(release)
		c.attachments = append(c.attachments, a)
	}

	go c.worker.run()
	go c.run()

	slog.Info("cycle defined",
		"cycle", cfg.Name,
		"id", id,
		"kind", cfg.Kind.String(),
		"readers", cfg.Readers,
		"event", "cycle_defined",
	)
	return c, nil
}

// attach locks a reader and defines the cycle's operation on it. The
// returned release undoes both.
func (c *Cycle) attach(m reader.Manager, name string) (attachment, func(), error) {
	h, err := m.Lock(name, c.owner)
	if err != nil {
		return attachment{}, nil, ir.WrapError(ir.ErrCodeResource, fmt.Sprintf("lock reader %q", name), err)
	}
	op := &reader.Operation{ID: c.id, Kind: reader.OperationTags}
	if c.cfg.Kind == KindPort {
		op.Kind = reader.OperationPort
		op.Pins = c.cfg.Pins
		op.Results = c.cfg.Results
	}
	if err := h.Define(op, reader.ObserverFunc(c.Notify), c.owner); err != nil {
		h.Unlock()
		return attachment{}, nil, ir.WrapError(ir.ErrCodeResource, fmt.Sprintf("define operation on %q", name), err)
	}
	release := func() {
		if err := h.Undefine(op, c.owner); err != nil {
			slog.Warn("undefine reader operation", "reader", name, "error", err, "event", "cycle_release")
		}
		h.Unlock()
	}
	return attachment{handle: h, op: op}, release, nil
}

// ID returns the unique cycle id.
func (c *Cycle) ID() string { return c.id }

// Name returns the definition name; empty for anonymous cycles.
func (c *Cycle) Name() string { return c.cfg.Name }

// Kind returns what the cycle collects.
func (c *Cycle) Kind() Kind { return c.cfg.Kind }

// Requested reports whether the cycle has subscribers or listeners.
func (c *Cycle) Requested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestedLocked()
}

// Active reports whether the cycle is collecting.
func (c *Cycle) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Busy reports whether the runner is inside a boundary or waiting out a
// repeat period.
func (c *Cycle) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Subscribers returns the full subscribers.
func (c *Cycle) Subscribers() []Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.subscribers)
}

// Subscribe adds a full subscriber, requesting the cycle.
func (c *Cycle) Subscribe(ctrl Controller) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return &ir.Error{Code: ir.ErrCodeNoSuchName, Message: "cycle undefined", Name: c.cfg.Name}
	}
	if slices.Contains(c.subscribers, ctrl) {
		c.mu.Unlock()
		return &ir.Error{Code: ir.ErrCodeDuplicateName, Message: "already subscribed", Name: c.cfg.Name}
	}
	c.subscribers = append(c.subscribers, ctrl)
	c.mu.Unlock()

	ctrl.SetActive(true)
	c.signal()
	return nil
}

// Unsubscribe removes a full subscriber. Snapshots already captured for
// it are still delivered.
func (c *Cycle) Unsubscribe(ctrl Controller) error {
	c.mu.Lock()
	i := slices.Index(c.subscribers, ctrl)
	if i < 0 {
		c.mu.Unlock()
		return &ir.Error{Code: ir.ErrCodeNoSuchName, Message: "not subscribed", Name: c.cfg.Name}
	}
	c.subscribers = slices.Delete(c.subscribers, i, i+1)
	c.mu.Unlock()

	ctrl.SetActive(false)
	c.signal()
	return nil
}

// Listen adds a one-shot listener: it is captured by the next boundary
// snapshot and then removed.
func (c *Cycle) Listen(ctrl Controller) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return &ir.Error{Code: ir.ErrCodeNoSuchName, Message: "cycle undefined", Name: c.cfg.Name}
	}
	c.listeners = append(c.listeners, ctrl)
	c.mu.Unlock()

	ctrl.SetActive(true)
	c.signal()
	return nil
}

// Notify merges a reader notification into the present collection. It is
// dropped while the cycle is not collecting.
func (c *Cycle) Notify(n reader.Notification) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	isNew := false
	switch {
	case c.cfg.Kind == KindEvent && n.Tag != nil:
		isNew = c.present.AddTag(ir.PrimaryKeyOf(*n.Tag, c.keys), n.Reader, *n.Tag, now)
	case c.cfg.Kind == KindPort && (n.Event != nil || n.Port != nil):
		ev := n.Event
		if ev == nil {
			ev = ir.NewPortEvent(reader.EventURI(n.Reader, *n.Port), n.Reader, *n.Port, 0)
		}
		isNew = c.present.AddEvent(ev, now)
	}
	if isNew {
		c.win.lastNew = now
		if c.win.firstData.IsZero() {
			c.win.firstData = now
		}
	}
	pulse := isNew && len(c.boundary.quiescence) > 0
	c.mu.Unlock()

	if pulse {
		c.signal()
	}
}

// onStart is the start trigger callback.
func (c *Cycle) onStart(t trigger.Trigger) bool {
	c.mu.Lock()
	if c.disposed || !c.requestedLocked() || c.active || c.pendingStart != "" {
		c.mu.Unlock()
		return false
	}
	c.pendingStart = t.URI()
	c.mu.Unlock()

	c.signal()
	return true
}

// onStop is the stop trigger callback.
func (c *Cycle) onStop(t trigger.Trigger) bool {
	c.mu.Lock()
	if c.disposed || !c.active || c.pendingStop != "" {
		c.mu.Unlock()
		return false
	}
	c.pendingStop = t.URI()
	c.mu.Unlock()

	c.signal()
	return true
}

// Dispose undefines the cycle: an active boundary ends with UNDEFINE,
// subscribers receive a metadata-only UNDEFINE report, queued snapshots
// are delivered, and only then are the triggers deregistered and the
// reader operations and locks released. Triggers firing in between have
// no effect. Safe to call more than once.
func (c *Cycle) Dispose() {
	c.disposeOnce.Do(c.dispose)
}

func (c *Cycle) dispose() {
	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()
	close(c.done)
	<-c.runnerDone

	c.mu.Lock()
	sent := c.undefineSent
	// Listeners still waiting get the UNDEFINE report too.
	subs := append(slices.Clone(c.subscribers), c.listeners...)
	c.subscribers, c.listeners = nil, nil
	c.mu.Unlock()

	if !sent && len(subs) > 0 {
		now := time.Now()
		c.worker.enqueue(&ReportsInfo{
			CycleID:     c.id,
			Name:        c.cfg.Name,
			Kind:        c.cfg.Kind,
			Subscribers: subs,
			Present:     NewData(),
			Start:       now,
			Initiation:  ir.InitiationUndefine,
			Termination: ir.TerminationUndefine,
		})
	}
	c.worker.close()

	for _, t := range c.triggers {
		safely("dispose trigger", c.cfg.Name, t.Dispose)
	}
	c.release.run()
	for _, s := range subs {
		safely("dispose subscriber", c.cfg.Name, func() {
			s.SetActive(false)
			s.Dispose()
		})
	}

	slog.Info("cycle undefined", "cycle", c.cfg.Name, "id", c.id, "event", "cycle_undefined")
	if c.cfg.OnDispose != nil {
		c.cfg.OnDispose(c)
	}
}

// Done is closed when the cycle starts disposing.
func (c *Cycle) Done() <-chan struct{} { return c.done }

func (c *Cycle) requestedLocked() bool {
	return len(c.subscribers) > 0 || len(c.listeners) > 0
}

func (c *Cycle) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// safely runs f, logging a panic instead of propagating it.
func safely(what, name string, f func()) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error(what+" failed", "cycle", name, "panic", fmt.Sprint(p), "event", "dispose_failed")
		}
	}()
	f()
}

// rollback is a LIFO list of undo functions.
type rollback []func()

func (r *rollback) add(f func()) { *r = append(*r, f) }

func (r rollback) run() {
	for i := len(r) - 1; i >= 0; i-- {
		r[i]()
	}
}
