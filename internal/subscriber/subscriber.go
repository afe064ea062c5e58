// Package subscriber provides the controllers cycles deliver reports to:
// in-process channels (poll and immediate requests), HTTP POST endpoints
// and append-only files.
//
// Every controller counts the snapshots it is owed. Once it is inactive
// (unsubscribed) and nothing is owed, it disposes itself.
package subscriber

import (
	"net/url"
	"sync"
	"time"

	"github.com/roach88/alecycle/internal/cycle"
	"github.com/roach88/alecycle/internal/ir"
)

// Subscriber is a controller addressed by URI.
type Subscriber interface {
	cycle.Controller
	URI() string
}

// DefaultHTTPTimeout bounds one HTTP delivery.
const DefaultHTTPTimeout = 5 * time.Second

// New creates the controller for a subscription URI. Supported schemes
// are http, https and file.
func New(uri string) (Subscriber, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, ir.NewValidationError("invalid subscriber uri %q: %v", uri, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, ir.NewValidationError("invalid subscriber uri %q: missing host", uri)
		}
		return NewHTTP(uri, DefaultHTTPTimeout), nil
	case "file":
		if u.Path == "" {
			return nil, ir.NewValidationError("invalid subscriber uri %q: missing path", uri)
		}
		return NewFile(uri, u.Path), nil
	default:
		return nil, ir.NewValidationError("invalid subscriber uri %q: unsupported scheme %q", uri, u.Scheme)
	}
}

// base implements the counting half of cycle.Controller.
type base struct {
	mu       sync.Mutex
	inFlight int
	active   bool

	idle     func()
	idleOnce sync.Once
}

// Inc counts one snapshot owed to the controller.
func (b *base) Inc() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight++
}

// Dec settles one snapshot.
func (b *base) Dec() {
	b.mu.Lock()
	b.inFlight--
	idle := b.idleLocked()
	b.mu.Unlock()
	if idle {
		b.fireIdle()
	}
}

// Active reports whether the controller is subscribed.
func (b *base) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// SetActive marks the controller subscribed or not.
func (b *base) SetActive(active bool) {
	b.mu.Lock()
	b.active = active
	idle := b.idleLocked()
	b.mu.Unlock()
	if idle {
		b.fireIdle()
	}
}

// InFlight returns the number of snapshots still owed.
func (b *base) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

func (b *base) idleLocked() bool {
	return !b.active && b.inFlight <= 0
}

func (b *base) fireIdle() {
	if b.idle != nil {
		b.idleOnce.Do(b.idle)
	}
}
