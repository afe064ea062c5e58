package trigger

import (
	"slices"
	"sync"
)

// HTTPTrigger fires when its name is requested over HTTP.
type HTTPTrigger struct {
	base
	svc  *HTTPService
	name string
}

// Name returns the symbolic name.
func (t *HTTPTrigger) Name() string { return t.name }

// Invoke implements Trigger.
func (t *HTTPTrigger) Invoke() bool { return t.invoke(t) }

// Dispose implements Trigger.
func (t *HTTPTrigger) Dispose() {
	t.once.Do(func() { t.svc.Remove(t) })
}

// HTTPService maps symbolic names to triggers.
type HTTPService struct {
	mu     sync.Mutex
	byName map[string][]*HTTPTrigger
}

// NewHTTPService creates an empty registry.
func NewHTTPService() *HTTPService {
	return &HTTPService{byName: make(map[string][]*HTTPTrigger)}
}

// Add registers t.
func (s *HTTPService) Add(t *HTTPTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[t.name] = append(s.byName[t.name], t)
}

// Remove deregisters t.
func (s *HTTPService) Remove(t *HTTPTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := removeInstance(s.byName[t.name], t)
	if !ok {
		return
	}
	if len(list) == 0 {
		delete(s.byName, t.name)
		return
	}
	s.byName[t.name] = list
}

// Handle fires every trigger registered under name, once per Key.
// Returns false when nothing is registered under the name.
func (s *HTTPService) Handle(name string) bool {
	s.mu.Lock()
	list := s.byName[name]
	s.mu.Unlock()
	if len(list) == 0 {
		return false
	}
	invokeAll(list)
	return true
}

// Names returns the registered names, sorted.
func (s *HTTPService) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
