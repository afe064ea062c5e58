package subscriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/alecycle/internal/ir"
)

// httpBacklog is how many reports may wait for a slow endpoint.
const httpBacklog = 64

// HTTP POSTs reports as JSON. Deliveries run on the controller's own
// goroutine so a slow endpoint never holds up a cycle's other subscribers.
type HTTP struct {
	base
	uri    string
	client *http.Client

	queue chan *ir.Reports
	stop  chan struct{}
	wg    sync.WaitGroup

	stateMu  sync.Mutex
	disposed bool
	once     sync.Once
}

// NewHTTP creates a controller posting to uri.
func NewHTTP(uri string, timeout time.Duration) *HTTP {
	h := &HTTP{
		uri:    uri,
		client: &http.Client{Timeout: timeout},
		queue:  make(chan *ir.Reports, httpBacklog),
		stop:   make(chan struct{}),
	}
	h.idle = h.Dispose
	h.wg.Add(1)
	go h.run()
	return h
}

// URI returns the endpoint.
func (h *HTTP) URI() string { return h.uri }

// Enqueue schedules r for delivery. Reports that cannot be queued are
// settled at once.
func (h *HTTP) Enqueue(r *ir.Reports) {
	if !h.offer(r) {
		h.Dec()
	}
}

// offer queues r unless the sender is stopping or the backlog is full.
// The disposed check and the send share stateMu with Dispose, so nothing
// lands in the queue after the sender's final drain.
func (h *HTTP) offer(r *ir.Reports) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if h.disposed {
		return false
	}
	select {
	case h.queue <- r:
		return true
	default:
		slog.Warn("subscriber backlog full, report dropped", "subscriber", h.uri, "event", "delivery_dropped")
		return false
	}
}

// Dispose stops the sender after it has flushed the backlog.
func (h *HTTP) Dispose() {
	h.once.Do(func() {
		h.stateMu.Lock()
		defer h.stateMu.Unlock()
		h.disposed = true
		close(h.stop)
	})
}

// Wait blocks until the sender has exited.
func (h *HTTP) Wait() { h.wg.Wait() }

func (h *HTTP) run() {
	defer h.wg.Done()
	for {
		select {
		case r := <-h.queue:
			h.send(r)
		case <-h.stop:
			for {
				select {
				case r := <-h.queue:
					h.send(r)
				default:
					return
				}
			}
		}
	}
}

func (h *HTTP) send(r *ir.Reports) {
	defer h.Dec()
	if err := h.post(context.Background(), r); err != nil {
		slog.Warn("report delivery failed",
			"subscriber", h.uri,
			"spec", r.SpecName,
			"error", err,
			"event", "delivery_failed",
		)
	}
}

func (h *HTTP) post(ctx context.Context, r *ir.Reports) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post: unexpected status %s", resp.Status)
	}
	return nil
}
