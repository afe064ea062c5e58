package subscriber

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/alecycle/internal/ir"
)

// Channel delivers reports to an in-process receiver.
type Channel struct {
	base
	uri  string
	ch   chan *ir.Reports
	done chan struct{}
	once sync.Once
}

// NewChannel creates a channel controller buffering up to size reports.
func NewChannel(uri string, size int) *Channel {
	if size < 1 {
		size = 1
	}
	c := &Channel{uri: uri, ch: make(chan *ir.Reports, size), done: make(chan struct{})}
	c.idle = c.Dispose
	return c
}

// URI returns the controller's label.
func (c *Channel) URI() string { return c.uri }

// Enqueue buffers r; a full buffer drops it.
func (c *Channel) Enqueue(r *ir.Reports) {
	select {
	case c.ch <- r:
	default:
		slog.Warn("subscriber buffer full, report dropped", "subscriber", c.uri, "event", "delivery_dropped")
	}
	c.Dec()
}

// Reports returns the receive side.
func (c *Channel) Reports() <-chan *ir.Reports { return c.ch }

// Done is closed once the controller is disposed.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Dispose closes Done. Safe to call more than once.
func (c *Channel) Dispose() {
	c.once.Do(func() { close(c.done) })
}

// Wait returns the next report. It returns nil without error when the
// controller was disposed with nothing delivered, e.g. an empty report was
// suppressed.
func (c *Channel) Wait(ctx context.Context) (*ir.Reports, error) {
	select {
	case r := <-c.ch:
		return r, nil
	case <-c.done:
		select {
		case r := <-c.ch:
			return r, nil
		default:
			return nil, nil
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
