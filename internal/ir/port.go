package ir

import (
	"fmt"
	"sync"
	"time"
)

// PinType is the direction of an I/O pin.
type PinType string

const (
	PinInput  PinType = "INPUT"
	PinOutput PinType = "OUTPUT"
)

// AnyPin matches every pin id.
const AnyPin = -1

// Pin identifies an I/O pin of a reader. ID AnyPin means unspecified.
type Pin struct {
	Type PinType `json:"type"`
	ID   int     `json:"id"`
}

// Matches reports whether the observed pin p satisfies the descriptor d.
func (d Pin) Matches(p Pin) bool {
	if d.Type != p.Type {
		return false
	}
	return d.ID == AnyPin || d.ID == p.ID
}

func (d Pin) String() string {
	return fmt.Sprintf("%s:%d", d.Type, d.ID)
}

// PortObservation is a pin state change observed on a reader.
type PortObservation struct {
	Pin   Pin  `json:"pin"`
	State byte `json:"state"`
}

// PortResult is the outcome of one port operation run for an event.
type PortResult struct {
	Operation string `json:"operation"`
	State     *byte  `json:"state,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PortEvent is one event of a port cycle. Events are identified by URI;
// a repeated notification with the same URI updates the same entry.
//
// Results arrive asynchronously from the reader; an event is completed
// once Expected results have been recorded. Safe for concurrent use.
type PortEvent struct {
	URI      string
	Reader   string
	Pin      Pin
	State    byte
	Time     time.Time
	Expected int

	mu      sync.Mutex
	results []PortResult
}

// NewPortEvent creates an event expecting the given number of results.
func NewPortEvent(uri, reader string, obs PortObservation, expected int) *PortEvent {
	return &PortEvent{
		URI:      uri,
		Reader:   reader,
		Pin:      obs.Pin,
		State:    obs.State,
		Time:     time.Now(),
		Expected: expected,
	}
}

// Complete records one operation result.
func (e *PortEvent) Complete(r PortResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, r)
}

// Completed reports whether every expected result has been recorded.
func (e *PortEvent) Completed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.results) >= e.Expected
}

// Results returns a copy of the recorded results.
func (e *PortEvent) Results() []PortResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PortResult, len(e.results))
	copy(out, e.results)
	return out
}
