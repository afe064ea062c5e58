package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/alecycle/internal/compiler"
	"github.com/roach88/alecycle/internal/cycle"
	"github.com/roach88/alecycle/internal/ir"
	"github.com/roach88/alecycle/internal/manager"
	"github.com/roach88/alecycle/internal/reader"
	"github.com/roach88/alecycle/internal/subscriber"
	"github.com/roach88/alecycle/internal/trigger"
)

// subscriberBuffer bounds the reports held per cycle between collector
// reads.
const subscriberBuffer = 64

// Harness runs one scenario against real cycles on in-memory readers.
type Harness struct {
	readers  *reader.Memory
	services *trigger.Services
	events   *manager.Cycles[ir.ECSpec]
	ports    *manager.Cycles[ir.PCSpec]
	logger   *slog.Logger

	mu      sync.Mutex
	trace   []TraceEvent
	counts  map[string]int
	changed chan struct{} // closed and replaced on every delivery
}

// definitions holds the compiled contents of a scenario's spec files.
type definitions struct {
	events []compiler.EventCycle
	ports  []compiler.PortCycle
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the scenario's CUE files
//  2. Declare the readers and define every cycle, no depot
//  3. Subscribe a channel collector to each cycle
//  4. Execute steps in order, stopping at the first failing step
//  5. Evaluate assertions against the collected trace
//
// Errors in steps 1-3 are returned; step and assertion failures are
// recorded in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	defs, err := loadDefinitions(scenario.Specs)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		readers: reader.NewMemory(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		counts:  make(map[string]int),
		changed: make(chan struct{}),
	}
	for _, r := range scenario.Readers {
		if len(r.Composite) > 0 {
			err = h.readers.DefineComposite(r.Name, r.Composite)
		} else {
			err = h.readers.Define(r.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("reader %q: %w", r.Name, err)
		}
	}

	h.services = trigger.NewServices(h.readers, nil)
	defer h.services.Close()

	deps := cycle.Deps{Readers: h.readers, Triggers: h.services}
	h.events = manager.NewEventCycles(deps)
	h.ports = manager.NewPortCycles(deps)
	defer h.events.Close()
	defer h.ports.Close()

	collectCtx, stopCollectors := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer stopCollectors()

	for _, def := range defs.events {
		ch, err := defineAndSubscribe(ctx, h.events, def.Name, def.Spec)
		if err != nil {
			return nil, err
		}
		wg.Go(func() { h.collect(collectCtx, def.Name, ch) })
	}
	for _, def := range defs.ports {
		ch, err := defineAndSubscribe(ctx, h.ports, def.Name, def.Spec)
		if err != nil {
			return nil, err
		}
		wg.Go(func() { h.collect(collectCtx, def.Name, ch) })
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
			break
		}
	}

	result.Trace = h.snapshotTrace()
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func defineAndSubscribe[S any](ctx context.Context, m *manager.Cycles[S], name string, spec S) (*subscriber.Channel, error) {
	if err := m.Define(ctx, name, spec, false); err != nil {
		return nil, fmt.Errorf("define %q: %w", name, err)
	}
	ch := subscriber.NewChannel("harness:"+name, subscriberBuffer)
	if err := m.SubscribeController(name, ch); err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", name, err)
	}
	return ch, nil
}

// loadDefinitions compiles every event_cycle and port_cycle in the files.
func loadDefinitions(paths []string) (*definitions, error) {
	cueCtx := cuecontext.New()
	defs := &definitions{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read spec file: %w", err)
		}
		v := cueCtx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		events, err := compileFamily(v, "event_cycle", compiler.CompileEventCycle)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		ports, err := compileFamily(v, "port_cycle", compiler.CompilePortCycle)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defs.events = append(defs.events, events...)
		defs.ports = append(defs.ports, ports...)
	}
	if len(defs.events) == 0 && len(defs.ports) == 0 {
		return nil, fmt.Errorf("no event_cycle or port_cycle definitions in specs")
	}
	return defs, nil
}

func compileFamily[T any](v cue.Value, path string, compile func(cue.Value) (*T, error)) ([]T, error) {
	family := v.LookupPath(cue.ParsePath(path))
	if !family.Exists() {
		return nil, nil
	}
	iter, err := family.Fields()
	if err != nil {
		return nil, err
	}
	var out []T
	for iter.Next() {
		def, err := compile(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", path, iter.Label(), err)
		}
		out = append(out, *def)
	}
	return out, nil
}

// collect records every report delivered to ch until ctx is done.
func (h *Harness) collect(ctx context.Context, name string, ch *subscriber.Channel) {
	for {
		select {
		case reps := <-ch.Reports():
			h.record(name, reps)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Harness) record(name string, reps *ir.Reports) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trace = append(h.trace, snapshot(len(h.trace)+1, name, reps))
	h.counts[name]++
	close(h.changed)
	h.changed = make(chan struct{})
	h.logger.Debug("report collected", "cycle", name, "seq", len(h.trace), "event", "report_collected")
}

func (h *Harness) snapshotTrace() []TraceEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TraceEvent{}, h.trace...)
}

// executeStep runs a single stimulus.
func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch {
	case step.Emit != nil:
		h.readers.Emit(step.Emit.Reader, ir.Tag{EPC: step.Emit.EPC, Antenna: step.Emit.Antenna})
	case step.Port != nil:
		h.readers.EmitPort(step.Port.Reader, ir.PortObservation{
			Pin:   ir.Pin{Type: step.Port.Type, ID: step.Port.ID},
			State: step.Port.State,
		})
	case step.Trigger != "":
		if !h.services.HTTP.Handle(step.Trigger) {
			return fmt.Errorf("no http trigger registered for %q", step.Trigger)
		}
	case step.Wait > 0:
		select {
		case <-time.After(step.Wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	case step.Await != nil:
		return h.await(ctx, step.Await)
	}
	return nil
}

// await blocks until the cycle has delivered the requested number of
// reports in total.
func (h *Harness) await(ctx context.Context, a *AwaitStep) error {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		h.mu.Lock()
		n, changed := h.counts[a.Cycle], h.changed
		h.mu.Unlock()
		if n >= a.Count {
			return nil
		}

		select {
		case <-changed:
		case <-deadline.C:
			return fmt.Errorf("await %s: got %d report(s), want %d within %s", a.Cycle, n, a.Count, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
