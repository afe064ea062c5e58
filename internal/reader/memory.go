package reader

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/alecycle/internal/ir"
)

// Memory is an in-process reader registry.
//
// Base readers are driven by Emit/EmitPort (or Simulate). Composite readers
// forward everything their components emit under the composite's name and
// hold a use-lock on each component for their lifetime.
//
// Thread-safety: all methods are safe for concurrent use. Observers are
// invoked without the registry lock held.
type Memory struct {
	mu      sync.Mutex
	readers map[string]*memReader

	// ResultDelay is how long simulated port operations take to report
	// their results.
	ResultDelay time.Duration
}

type memReader struct {
	name       string
	components []string
	compLocks  []Handle
	locks      map[string]int
	ops        map[*Operation]*opState
	enables    int
	disables   int
}

type opState struct {
	obs     Observer
	owner   string
	enabled bool
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{readers: make(map[string]*memReader)}
}

// Define adds a base reader.
func (m *Memory) Define(name string) error {
	if err := ir.ValidName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readers[name]; ok {
		return &ir.Error{Code: ir.ErrCodeDuplicateName, Message: "reader already defined", Name: name}
	}
	m.readers[name] = newMemReader(name)
	return nil
}

// DefineComposite adds a composite reader over existing readers. Each
// component is locked for the composite's lifetime; if any component
// fails to lock, the ones already locked are released.
func (m *Memory) DefineComposite(name string, components []string) error {
	if err := ir.ValidName(name); err != nil {
		return err
	}
	if len(components) == 0 {
		return ir.NewValidationError("composite reader %q has no components", name)
	}
	m.mu.Lock()
	_, exists := m.readers[name]
	m.mu.Unlock()
	if exists {
		return &ir.Error{Code: ir.ErrCodeDuplicateName, Message: "reader already defined", Name: name}
	}

	owner := "composite:" + name
	var locked []Handle
	for _, c := range components {
		h, err := m.Lock(c, owner)
		if err != nil {
			for _, l := range locked {
				l.Unlock()
			}
			return ir.WrapError(ir.ErrCodeResource, fmt.Sprintf("composite reader %q", name), err)
		}
		locked = append(locked, h)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readers[name]; ok {
		for _, l := range locked {
			l.Unlock()
		}
		return &ir.Error{Code: ir.ErrCodeDuplicateName, Message: "reader already defined", Name: name}
	}
	r := newMemReader(name)
	r.components = slices.Clone(components)
	r.compLocks = locked
	m.readers[name] = r
	return nil
}

// Undefine removes a reader. Fails with IN_USE while the reader is locked.
func (m *Memory) Undefine(name string) error {
	m.mu.Lock()
	r, ok := m.readers[name]
	if !ok {
		m.mu.Unlock()
		return &ir.Error{Code: ir.ErrCodeNoSuchName, Message: "no such reader", Name: name}
	}
	if n := r.lockCount(); n > 0 {
		m.mu.Unlock()
		return &ir.Error{Code: ir.ErrCodeInUse, Message: fmt.Sprintf("reader locked %d time(s)", n), Name: name}
	}
	delete(m.readers, name)
	compLocks := r.compLocks
	m.mu.Unlock()

	for _, h := range compLocks {
		h.Unlock()
	}
	return nil
}

// Names returns the defined reader names, sorted.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.readers))
	for n := range m.readers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Lock implements Manager.
func (m *Memory) Lock(name, owner string) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.readers[name]
	if !ok {
		return nil, &ir.Error{Code: ir.ErrCodeResource, Message: "no such logical reader", Name: name}
	}
	r.locks[owner]++
	return &memHandle{m: m, name: name, owner: owner}, nil
}

// LockCount returns the number of outstanding locks on a reader.
func (m *Memory) LockCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.readers[name]; ok {
		return r.lockCount()
	}
	return 0
}

// Toggles returns how many times operations were enabled and disabled
// on a reader.
func (m *Memory) Toggles(name string) (enables, disables int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.readers[name]; ok {
		return r.enables, r.disables
	}
	return 0, 0
}

// Operations returns the number of operations defined on a reader.
func (m *Memory) Operations(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.readers[name]; ok {
		return len(r.ops)
	}
	return 0
}

// Emit delivers a tag sighting from a base reader to every enabled tag
// operation on it and on the composites containing it.
func (m *Memory) Emit(name string, tag ir.Tag) {
	for _, t := range m.targets(name, OperationTags) {
		tg := tag
		t.obs.Notify(Notification{Reader: t.reader, Tag: &tg, Handle: t.handle})
	}
}

// EmitPort delivers a pin observation from a base reader. Each enabled
// port operation observing the pin receives the observation and its own
// event; events expecting results are completed after ResultDelay.
func (m *Memory) EmitPort(name string, obs ir.PortObservation) {
	for _, t := range m.targets(name, OperationPort) {
		if !t.op.WantsPin(obs.Pin) {
			continue
		}
		o := obs
		ev := ir.NewPortEvent(EventURI(t.reader, obs), t.reader, obs, t.op.Results)
		if t.op.Results > 0 {
			go m.completeLater(ev, t.op.Results, obs.State)
		}
		t.obs.Notify(Notification{Reader: t.reader, Port: &o, Event: ev, Handle: t.handle})
	}
}

// EventURI is the identity of a port event: repeated edges to the same
// state on the same pin are the same event.
func EventURI(reader string, obs ir.PortObservation) string {
	dir := "in"
	if obs.Pin.Type == ir.PinOutput {
		dir = "out"
	}
	return fmt.Sprintf("urn:havis:ale:event:port:%s.%s.%d.%d", reader, dir, obs.Pin.ID, obs.State)
}

func (m *Memory) completeLater(ev *ir.PortEvent, n int, state byte) {
	if m.ResultDelay > 0 {
		time.Sleep(m.ResultDelay)
	}
	for i := range n {
		s := state
		ev.Complete(ir.PortResult{Operation: fmt.Sprintf("op%d", i+1), State: &s})
	}
}

// Simulate emits the given tags from a base reader every interval until
// ctx is done.
func (m *Memory) Simulate(ctx context.Context, name string, tags []ir.Tag, interval time.Duration) error {
	if interval <= 0 {
		return ir.NewValidationError("simulate %q: interval must be positive", name)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Debug("reader simulation started", "reader", name, "tags", len(tags), "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("reader simulation stopped", "reader", name)
			return nil
		case <-ticker.C:
			for _, t := range tags {
				m.Emit(name, t)
			}
		}
	}
}

type target struct {
	reader string
	op     *Operation
	obs    Observer
	handle Handle
}

// targets collects the enabled operations that should see an emission
// from the named reader: its own and those of every composite containing
// it, transitively.
func (m *Memory) targets(name string, kind OperationKind) []target {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []target
	visited := map[string]bool{}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		r, ok := m.readers[cur]
		if !ok {
			continue
		}
		for op, st := range r.ops {
			if st.enabled && op.Kind == kind {
				out = append(out, target{
					reader: cur,
					op:     op,
					obs:    st.obs,
					handle: &memHandle{m: m, name: cur, owner: st.owner, borrowed: true},
				})
			}
		}
		for _, other := range m.readers {
			if slices.Contains(other.components, cur) {
				queue = append(queue, other.name)
			}
		}
	}
	return out
}

func newMemReader(name string) *memReader {
	return &memReader{
		name:  name,
		locks: make(map[string]int),
		ops:   make(map[*Operation]*opState),
	}
}

func (r *memReader) lockCount() int {
	n := 0
	for _, c := range r.locks {
		n += c
	}
	return n
}

// memHandle is a use-lock on a Memory reader.
type memHandle struct {
	m        *Memory
	name     string
	owner    string
	mu       sync.Mutex
	unlocked bool

	// borrowed handles are passed to observers; they do not own a lock.
	borrowed bool
}

func (h *memHandle) Name() string { return h.name }

func (h *memHandle) reader() (*memReader, error) {
	r, ok := h.m.readers[h.name]
	if !ok {
		return nil, &ir.Error{Code: ir.ErrCodeResource, Message: "reader no longer defined", Name: h.name}
	}
	return r, nil
}

func (h *memHandle) Define(op *Operation, obs Observer, owner string) error {
	if op == nil || obs == nil {
		return &ir.Error{Code: ir.ErrCodeImplementation, Message: "define: nil operation or observer", Name: h.name}
	}
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	r, err := h.reader()
	if err != nil {
		return err
	}
	if _, ok := r.ops[op]; ok {
		return &ir.Error{Code: ir.ErrCodeDuplicateName, Message: fmt.Sprintf("operation %q already defined", op.ID), Name: h.name}
	}
	r.ops[op] = &opState{obs: obs, owner: owner}
	return nil
}

func (h *memHandle) Enable(op *Operation) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	r, err := h.reader()
	if err != nil {
		return err
	}
	st, ok := r.ops[op]
	if !ok {
		return &ir.Error{Code: ir.ErrCodeResource, Message: fmt.Sprintf("operation %q not defined", op.ID), Name: h.name}
	}
	if !st.enabled {
		st.enabled = true
		r.enables++
	}
	return nil
}

func (h *memHandle) Disable(op *Operation) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	r, err := h.reader()
	if err != nil {
		return err
	}
	if st, ok := r.ops[op]; ok && st.enabled {
		st.enabled = false
		r.disables++
	}
	return nil
}

func (h *memHandle) Undefine(op *Operation, owner string) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	r, err := h.reader()
	if err != nil {
		return err
	}
	st, ok := r.ops[op]
	if !ok {
		return nil
	}
	if st.owner != owner {
		return &ir.Error{Code: ir.ErrCodeInUse, Message: fmt.Sprintf("operation %q owned by %q", op.ID, st.owner), Name: h.name}
	}
	if st.enabled {
		r.disables++
	}
	delete(r.ops, op)
	return nil
}

// Unlock releases the use-lock. Repeated calls are no-ops.
func (h *memHandle) Unlock() {
	if h.borrowed {
		return
	}
	h.mu.Lock()
	if h.unlocked {
		h.mu.Unlock()
		return
	}
	h.unlocked = true
	h.mu.Unlock()

	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	r, ok := h.m.readers[h.name]
	if !ok {
		return
	}
	r.locks[h.owner]--
	if r.locks[h.owner] <= 0 {
		delete(r.locks, h.owner)
	}
}

func (h *memHandle) String() string {
	return h.name + "@" + h.owner
}
