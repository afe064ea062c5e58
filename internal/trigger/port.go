package trigger

import (
	"log/slog"
	"sync"

	"github.com/roach88/alecycle/internal/ir"
	"github.com/roach88/alecycle/internal/reader"
)

// portOwner is the reader lock and operation owner used by PortService.
const portOwner = "trigger:port"

// PortTrigger fires on a pin state change of a logical reader.
type PortTrigger struct {
	base
	svc    *PortService
	reader string
	pin    ir.Pin
	state  *byte
}

// Reader returns the observed reader.
func (t *PortTrigger) Reader() string { return t.reader }

// Invoke implements Trigger.
func (t *PortTrigger) Invoke() bool { return t.invoke(t) }

// Dispose implements Trigger.
func (t *PortTrigger) Dispose() {
	t.once.Do(func() { t.svc.Remove(t) })
}

// matches reports whether an observation satisfies the trigger.
func (t *PortTrigger) matches(obs ir.PortObservation) bool {
	if !t.pin.Matches(obs.Pin) {
		return false
	}
	return t.state == nil || *t.state == obs.State
}

type portEntry struct {
	handle   reader.Handle
	op       *reader.Operation
	triggers []*PortTrigger
}

// PortService maintains one observing operation per reader with port
// triggers. The operation is defined for the first trigger on a reader and
// removed with the last.
type PortService struct {
	readers reader.Manager

	mu      sync.Mutex
	entries map[string]*portEntry
}

// NewPortService creates a registry resolving readers through m.
func NewPortService(m reader.Manager) *PortService {
	return &PortService{readers: m, entries: make(map[string]*portEntry)}
}

// Add registers t, setting up the reader observation if needed. On failure
// nothing remains registered.
func (s *PortService) Add(t *PortTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[t.reader]; ok {
		e.triggers = append(e.triggers, t)
		return nil
	}

	if s.readers == nil {
		return ir.Errorf(ir.ErrCodeResource, "no reader manager for port trigger %q", t.uri)
	}
	h, err := s.readers.Lock(t.reader, portOwner)
	if err != nil {
		return ir.WrapError(ir.ErrCodeResource, "port trigger "+t.uri, err)
	}
	op := &reader.Operation{ID: portOwner + ":" + t.reader, Kind: reader.OperationPort}
	obs := reader.ObserverFunc(func(n reader.Notification) {
		if n.Port != nil {
			s.dispatch(t.reader, *n.Port)
		}
	})
	if err := h.Define(op, obs, portOwner); err != nil {
		h.Unlock()
		return ir.WrapError(ir.ErrCodeResource, "port trigger "+t.uri, err)
	}
	if err := h.Enable(op); err != nil {
		_ = h.Undefine(op, portOwner)
		h.Unlock()
		return ir.WrapError(ir.ErrCodeResource, "port trigger "+t.uri, err)
	}

	s.entries[t.reader] = &portEntry{handle: h, op: op, triggers: []*PortTrigger{t}}
	slog.Debug("port observation started", "reader", t.reader, "event", "port_observe")
	return nil
}

// Remove deregisters t and tears down the observation with the last
// trigger on its reader.
func (s *PortService) Remove(t *PortTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[t.reader]
	if !ok {
		return
	}
	list, removed := removeInstance(e.triggers, t)
	if !removed {
		return
	}
	e.triggers = list
	if len(list) > 0 {
		return
	}

	delete(s.entries, t.reader)
	if err := e.handle.Disable(e.op); err != nil {
		slog.Warn("disable port observation", "reader", t.reader, "error", err, "event", "port_teardown")
	}
	if err := e.handle.Undefine(e.op, portOwner); err != nil {
		slog.Warn("undefine port observation", "reader", t.reader, "error", err, "event", "port_teardown")
	}
	e.handle.Unlock()
	slog.Debug("port observation stopped", "reader", t.reader, "event", "port_unobserve")
}

// Len returns the number of readers under observation.
func (s *PortService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close tears down every observation.
func (s *PortService) Close() {
	s.mu.Lock()
	var all []*PortTrigger
	for _, e := range s.entries {
		all = append(all, e.triggers...)
	}
	s.mu.Unlock()
	for _, t := range all {
		s.Remove(t)
	}
}

// dispatch fires every trigger on readerName matching obs.
func (s *PortService) dispatch(readerName string, obs ir.PortObservation) {
	s.mu.Lock()
	var fire []*PortTrigger
	if e, ok := s.entries[readerName]; ok {
		for _, t := range e.triggers {
			if t.matches(obs) {
				fire = append(fire, t)
			}
		}
	}
	s.mu.Unlock()
	invokeAll(fire)
}
