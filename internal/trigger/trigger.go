package trigger

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Callback is invoked when a trigger fires. It returns whether the
// invocation had an effect.
type Callback func(t Trigger) bool

// Key is the value identity of a trigger.
type Key struct {
	CreatorID string
	URI       string
}

// Trigger is a wake source registered on behalf of a creator (a cycle).
type Trigger interface {
	// URI is the trigger's reporting label.
	URI() string
	// CreatorID is the unique id of the owning cycle.
	CreatorID() string
	// Key returns the value identity used for invocation de-duplication.
	Key() Key
	// Invoke fires the trigger's callback.
	Invoke() bool
	// Dispose deregisters the trigger. Safe to call more than once.
	Dispose()
}

// base holds the fields shared by all variants.
type base struct {
	uri       string
	creatorID string
	callback  Callback

	once sync.Once
}

func (b *base) URI() string       { return b.uri }
func (b *base) CreatorID() string { return b.creatorID }
func (b *base) Key() Key          { return Key{CreatorID: b.creatorID, URI: b.uri} }

// invoke calls the callback with self as argument. A panicking callback
// is logged and treated as a failed invocation so registries keep running.
func (b *base) invoke(self Trigger) (ok bool) {
	if b.callback == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("trigger callback panicked",
				"uri", b.uri,
				"creator", b.creatorID,
				"panic", fmt.Sprint(r),
				"event", "trigger_panic",
			)
			ok = false
		}
	}()
	return b.callback(self)
}

// invokeAll fires each trigger once per Key, in order.
// Returns the number of invocations that had an effect.
func invokeAll[T Trigger](triggers []T) int {
	seen := make(map[Key]bool, len(triggers))
	n := 0
	for _, t := range triggers {
		k := t.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		if t.Invoke() {
			n++
		}
		slog.Debug("trigger fired", "uri", k.URI, "creator", k.CreatorID, "event", "trigger_fired")
	}
	return n
}

// removeInstance returns a copy of list without the entry that is exactly
// t (by reference). The input is not modified, so snapshots taken for
// dispatch stay intact.
func removeInstance[T comparable](list []T, t T) ([]T, bool) {
	i := slices.Index(list, t)
	if i < 0 {
		return list, false
	}
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), true
}
