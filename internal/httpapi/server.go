// Package httpapi exposes named HTTP triggers and cycle polling over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/alecycle/internal/ir"
)

// TriggerHandler invokes the HTTP triggers registered under a name.
// Implemented by *trigger.HTTPService.
type TriggerHandler interface {
	Handle(name string) bool
}

// Cycles is the part of a cycle manager the HTTP surface reads.
// Implemented by *manager.Cycles.
type Cycles interface {
	Names() []string
	Poll(ctx context.Context, name string) (*ir.Reports, error)
	Subscribe(ctx context.Context, name, uri string, persist bool) error
	Unsubscribe(ctx context.Context, name, uri string, persist bool) error
	Subscribers(name string) ([]string, error)
}

// Options tune the server.
type Options struct {
	// TriggerRate limits trigger pokes per second; zero disables limiting.
	TriggerRate  float64
	TriggerBurst int
	// PollTimeout bounds a poll request when the client sets no timeout.
	PollTimeout time.Duration
}

// Server routes requests to the trigger service and cycle managers.
type Server struct {
	triggers TriggerHandler
	events   Cycles
	ports    Cycles
	limiter  *rate.Limiter
	timeout  time.Duration
}

// DefaultPollTimeout bounds a poll request.
const DefaultPollTimeout = 30 * time.Second

// New creates a server. events or ports may be nil to leave that family
// unexposed.
func New(triggers TriggerHandler, events, ports Cycles, opts Options) *Server {
	s := &Server{
		triggers: triggers,
		events:   events,
		ports:    ports,
		timeout:  opts.PollTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultPollTimeout
	}
	if opts.TriggerRate > 0 {
		burst := max(opts.TriggerBurst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(opts.TriggerRate), burst)
	}
	return s
}

// Handler returns the routes:
//
//	POST|GET /triggers/{name}            invoke named triggers
//	GET      /event-cycles               event-cycle names
//	GET      /event-cycles/{name}/poll   next event-cycle report
//	GET      /port-cycles                port-cycle names
//	GET      /port-cycles/{name}/poll    next port-cycle report
//
// and under both /event-cycles/{name} and /port-cycles/{name}:
//
//	GET    /subscribers          subscriber URIs
//	POST   /subscribers          subscribe {"uri": ...}
//	DELETE /subscribers?uri=...  unsubscribe
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /triggers/{name}", s.handleTrigger)
	mux.HandleFunc("GET /triggers/{name}", s.handleTrigger)
	if s.events != nil {
		s.route(mux, "/event-cycles", s.events)
	}
	if s.ports != nil {
		s.route(mux, "/port-cycles", s.ports)
	}
	return mux
}

func (s *Server) route(mux *http.ServeMux, prefix string, c Cycles) {
	mux.HandleFunc("GET "+prefix, s.handleNames(c))
	mux.HandleFunc("GET "+prefix+"/{name}/poll", s.handlePoll(c))
	mux.HandleFunc("GET "+prefix+"/{name}/subscribers", s.handleSubscribers(c))
	mux.HandleFunc("POST "+prefix+"/{name}/subscribers", s.handleSubscribe(c))
	mux.HandleFunc("DELETE "+prefix+"/{name}/subscribers", s.handleUnsubscribe(c))
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", addr, "event", "http_start")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("http server stopping", "addr", addr, "event", "http_stop")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if s.limiter != nil && !s.limiter.Allow() {
		slog.Warn("trigger rate limited", "name", name, "event", "trigger_limited")
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many trigger requests")
		return
	}
	if err := ir.ValidName(name); err != nil {
		writeIRError(w, err)
		return
	}
	if !s.triggers.Handle(name) {
		writeError(w, http.StatusNotFound, string(ir.ErrCodeNoSuchName), "no trigger named "+name)
		return
	}
	slog.Debug("http trigger invoked", "name", name, "event", "trigger_fired")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNames(c Cycles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Names())
	}
}

func (s *Server) handlePoll(c Cycles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timeout := s.timeout
		if q := r.URL.Query().Get("timeout"); q != "" {
			d, err := time.ParseDuration(q)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, string(ir.ErrCodeValidation), "invalid timeout "+q)
				return
			}
			timeout = d
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		rep, err := c.Poll(ctx, r.PathValue("name"))
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "no boundary within "+timeout.String())
		case err != nil:
			writeIRError(w, err)
		case rep == nil:
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusOK, rep)
		}
	}
}

type subscribeRequest struct {
	URI string `json:"uri"`
}

func (s *Server) handleSubscribers(c Cycles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uris, err := c.Subscribers(r.PathValue("name"))
		if err != nil {
			writeIRError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, uris)
	}
}

func (s *Server) handleSubscribe(c Cycles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req subscribeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil || req.URI == "" {
			writeError(w, http.StatusBadRequest, string(ir.ErrCodeValidation), `body must be {"uri": "<subscriber uri>"}`)
			return
		}
		name := r.PathValue("name")
		if err := c.Subscribe(r.Context(), name, req.URI, true); err != nil {
			writeIRError(w, err)
			return
		}
		slog.Info("subscriber added", "name", name, "uri", req.URI, "event", "subscribe")
		w.WriteHeader(http.StatusCreated)
	}
}

func (s *Server) handleUnsubscribe(c Cycles) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri := r.URL.Query().Get("uri")
		if uri == "" {
			writeError(w, http.StatusBadRequest, string(ir.ErrCodeValidation), "uri query parameter is required")
			return
		}
		name := r.PathValue("name")
		if err := c.Unsubscribe(r.Context(), name, uri, true); err != nil {
			writeIRError(w, err)
			return
		}
		slog.Info("subscriber removed", "name", name, "uri", uri, "event", "unsubscribe")
		w.WriteHeader(http.StatusNoContent)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeIRError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch ir.CodeOf(err) {
	case ir.ErrCodeValidation:
		status = http.StatusBadRequest
	case ir.ErrCodeNoSuchName:
		status = http.StatusNotFound
	case ir.ErrCodeDuplicateName, ir.ErrCodeInUse:
		status = http.StatusConflict
	}
	code := string(ir.CodeOf(err))
	if code == "" {
		code = string(ir.ErrCodeImplementation)
	}
	writeError(w, status, code, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}
