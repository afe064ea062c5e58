package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/alecycle/internal/compiler"
	"github.com/roach88/alecycle/internal/config"
	"github.com/roach88/alecycle/internal/cycle"
	"github.com/roach88/alecycle/internal/httpapi"
	"github.com/roach88/alecycle/internal/ir"
	"github.com/roach88/alecycle/internal/manager"
	"github.com/roach88/alecycle/internal/reader"
	"github.com/roach88/alecycle/internal/store"
	"github.com/roach88/alecycle/internal/trigger"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string

	// Flag overrides for the configuration file.
	Database string
	Specs    string
	Listen   string

	// IDs allows overriding the cycle id generator (for testing).
	// If nil, cycles use UUIDv7 ids.
	IDs cycle.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cycle engine",
		Long: `Run the ALE cycle engine.

Declares the configured logical readers, restores definitions and
subscriptions from the SQLite depot, defines the cycles found in the
specs directory and serves HTTP triggers, polling and subscriber
management until interrupted.

Example:
  alecycle run --config ./alecycle.yaml
  alecycle run --db ./depot.db --specs ./specs --listen :8080 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite depot (overrides config)")
	cmd.Flags().StringVar(&opts.Specs, "specs", "", "directory of CUE cycle definitions (overrides config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "HTTP listen address (overrides config)")

	return cmd
}

// loadRunConfig applies the flag overrides on top of the config file.
func loadRunConfig(opts *RunOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("db") {
		cfg.Database = opts.Database
	}
	if cmd.Flags().Changed("specs") {
		cfg.Specs = opts.Specs
	}
	if cmd.Flags().Changed("listen") {
		cfg.HTTP.Listen = opts.Listen
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	cfg, err := loadRunConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s: invalid configuration", ErrCodeConfig), err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s: invalid timezone", ErrCodeConfig), err)
	}

	// Load definitions before touching any state so a bad spec fails fast.
	var specs *LoadResult
	if cfg.Specs != "" {
		slog.Info("loading specs", "dir", cfg.Specs)
		if specs, err = loadValidSpecs(cfg.Specs); err != nil {
			return WrapExitError(ExitCommandError, "failed to load specs", err)
		}
		slog.Info("specs loaded", "event_cycles", len(specs.EventCycles), "port_cycles", len(specs.PortCycles))
	}

	readers := reader.NewMemory()
	if err := declareReaders(readers, cfg.Readers); err != nil {
		return WrapExitError(ExitCommandError, "failed to declare readers", err)
	}

	services := trigger.NewServices(readers, trigger.ZoneClock{Location: loc})
	defer services.Close()

	deps := cycle.Deps{
		Readers:           readers,
		Triggers:          services,
		IDs:               opts.IDs,
		ReaderCycle:       cfg.ReaderCycleDuration,
		CompletionTimeout: cfg.CompletionTimeout,
	}

	var mopts []manager.Option
	if cfg.Database != "" {
		slog.Info("opening depot", "path", cfg.Database)
		st, err := store.Open(cfg.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open depot", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing depot", "error", closeErr)
			}
		}()
		mopts = append(mopts, manager.WithDepot(st))
	}

	events := manager.NewEventCycles(deps, mopts...)
	defer events.Close()
	ports := manager.NewPortCycles(deps, mopts...)
	defer ports.Close()

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	// Restore failures are logged per definition and do not stop startup.
	if err := events.Restore(ctx); err != nil {
		slog.Warn("event cycles partially restored", "error", err)
	}
	if err := ports.Restore(ctx); err != nil {
		slog.Warn("port cycles partially restored", "error", err)
	}

	if specs != nil {
		for _, ec := range specs.EventCycles {
			if err := reconcile(ctx, events, ec.Name, ec.Spec); err != nil {
				return WrapExitError(ExitFailure, "failed to define event cycle "+ec.Name, err)
			}
		}
		for _, pc := range specs.PortCycles {
			if err := reconcile(ctx, ports, pc.Name, pc.Spec); err != nil {
				return WrapExitError(ExitFailure, "failed to define port cycle "+pc.Name, err)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range cfg.Readers {
		if r.Simulate == nil {
			continue
		}
		tags := simulatedTags(r.Simulate)
		g.Go(func() error {
			return readers.Simulate(gctx, r.Name, tags, r.Simulate.Interval)
		})
	}
	if cfg.HTTP.Listen != "" {
		api := httpapi.New(services.HTTP, events, ports, httpapi.Options{
			TriggerRate:  cfg.HTTP.TriggerRate,
			TriggerBurst: cfg.HTTP.TriggerBurst,
		})
		g.Go(func() error {
			return api.ListenAndServe(gctx, cfg.HTTP.Listen)
		})
	}

	slog.Info("engine started",
		"event_cycles", len(events.Names()),
		"port_cycles", len(ports.Names()),
		"listen", cfg.HTTP.Listen,
		"event", "engine_start")
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Press Ctrl-C to stop.")

	<-gctx.Done()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully", "event", "engine_stop")
	return nil
}

// reconcile makes the named definition match spec. A definition restored
// from the depot with the same spec is kept along with its subscribers;
// a differing one is replaced.
func reconcile[S any](ctx context.Context, m *manager.Cycles[S], name string, spec S) error {
	current, err := m.Spec(name)
	switch {
	case ir.IsNoSuchName(err):
		return m.Define(ctx, name, spec, true)
	case err != nil:
		return err
	}

	want, err := ir.SpecHash(spec)
	if err != nil {
		return err
	}
	have, err := ir.SpecHash(current)
	if err != nil {
		return err
	}
	if want == have {
		slog.Debug("definition unchanged", "name", name, "event", "define_skip")
		return nil
	}

	slog.Info("definition changed, replacing", "name", name, "event", "define_replace")
	if err := m.Undefine(ctx, name, true); err != nil {
		return err
	}
	return m.Define(ctx, name, spec, true)
}

// loadValidSpecs loads specs and rejects any definition that fails
// validation.
func loadValidSpecs(dir string) (*LoadResult, error) {
	result, loadErrors := LoadSpecs(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	for _, ec := range result.EventCycles {
		if errs := compiler.Validate(ec); len(errs) > 0 {
			return nil, errs[0]
		}
	}
	for _, pc := range result.PortCycles {
		if errs := compiler.Validate(pc); len(errs) > 0 {
			return nil, errs[0]
		}
	}
	return result, nil
}

// declareReaders defines the configured logical readers in order.
func declareReaders(m *reader.Memory, readers []config.ReaderConfig) error {
	for _, r := range readers {
		var err error
		if len(r.Composite) > 0 {
			err = m.DefineComposite(r.Name, r.Composite)
		} else {
			err = m.Define(r.Name)
		}
		if err != nil {
			return err
		}
		slog.Debug("reader declared", "reader", r.Name, "components", r.Composite)
	}
	return nil
}

func simulatedTags(s *config.SimulateConfig) []ir.Tag {
	tags := make([]ir.Tag, len(s.Tags))
	for i, epc := range s.Tags {
		tags[i] = ir.Tag{EPC: epc, Antenna: s.Antenna}
	}
	return tags
}
