// Package reader defines the logical-reader collaborator contract consumed
// by cycles and port triggers, and Memory, an in-process implementation
// with simulated and composite readers.
package reader

import "github.com/roach88/alecycle/internal/ir"

// OperationKind distinguishes tag inventory from port observation.
type OperationKind int

const (
	// OperationTags delivers tag sightings.
	OperationTags OperationKind = iota + 1
	// OperationPort delivers pin observations and port events.
	OperationPort
)

func (k OperationKind) String() string {
	switch k {
	case OperationTags:
		return "tags"
	case OperationPort:
		return "port"
	default:
		return "unknown"
	}
}

// Operation is a reader operation defined by a cycle or trigger registry.
// Operations are identified by reference: enabling or disabling the same
// *Operation twice is harmless.
type Operation struct {
	ID   string
	Kind OperationKind

	// Pins restricts a port operation to the given pin descriptors.
	// Empty means every pin.
	Pins []ir.Pin

	// Results is the number of port results each event of this operation
	// expects before it is completed.
	Results int
}

// WantsPin reports whether a port operation observes pin p.
func (op *Operation) WantsPin(p ir.Pin) bool {
	if len(op.Pins) == 0 {
		return true
	}
	for _, d := range op.Pins {
		if d.Matches(p) {
			return true
		}
	}
	return false
}

// Notification is one message from a reader to an operation's observer.
// Tag operations receive Tag; port operations receive Port together with
// the Event created for the observing operation.
type Notification struct {
	Reader string
	Tag    *ir.Tag
	Port   *ir.PortObservation
	Event  *ir.PortEvent

	// Handle is the handle of the emitting reader, for observers that
	// need to act on the reader in response.
	Handle Handle
}

// Observer consumes notifications. Notify is called on reader-driven
// goroutines and must not block.
type Observer interface {
	Notify(n Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(n Notification)

// Notify calls f(n).
func (f ObserverFunc) Notify(n Notification) { f(n) }

// Manager resolves logical reader names.
type Manager interface {
	// Lock acquires a use-lock on the named reader for owner. The reader
	// cannot be undefined while locked. Locking is re-entrant per owner:
	// each Lock must be paired with one Handle.Unlock.
	Lock(name, owner string) (Handle, error)
}

// Handle is a locked logical reader.
type Handle interface {
	Name() string
	Define(op *Operation, obs Observer, owner string) error
	Enable(op *Operation) error
	Disable(op *Operation) error
	Undefine(op *Operation, owner string) error
	Unlock()
}
