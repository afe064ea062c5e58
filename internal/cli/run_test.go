package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alecycle/internal/config"
	"github.com/roach88/alecycle/internal/cycle"
	"github.com/roach88/alecycle/internal/ir"
	"github.com/roach88/alecycle/internal/manager"
	"github.com/roach88/alecycle/internal/reader"
	"github.com/roach88/alecycle/internal/store"
	"github.com/roach88/alecycle/internal/trigger"
)

const readersConfig = `
readers:
  - name: dock-1
  - name: dock-2
`

// runFor executes the run command until timeout and returns its
// combined output and error.
func runFor(t *testing.T, timeout time.Duration, args ...string) (string, error) {
	t.Helper()
	buf := &syncBuffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- cmd.ExecuteContext(ctx)
	}()

	select {
	case err := <-errChan:
		return buf.String(), err
	case <-time.After(timeout + 5*time.Second):
		t.Fatal("command did not respect context timeout")
		return "", nil
	}
}

func TestRunMissingConfigFile(t *testing.T) {
	_, err := runFor(t, time.Second, "--config", "/nonexistent/alecycle.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRunInvalidSpecs(t *testing.T) {
	specsDir := writeSpecs(t, map[string]string{"bad.cue": `
package specs

event_cycle: bad: {
	boundary: duration: 100
	reports: [{name: "r"}]
}
`})

	_, err := runFor(t, time.Second, "--specs", specsDir, "--listen", "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load specs")
	assert.Contains(t, err.Error(), "logical_readers")
}

func TestRunSpecsFailingValidation(t *testing.T) {
	specsDir := writeSpecs(t, map[string]string{"bad.cue": `
package specs

event_cycle: bad: {
	logical_readers: ["dock-1"]
	boundary: repeat_period: 100
	reports: [{name: "r"}]
}
`})

	_, err := runFor(t, time.Second, "--specs", specsDir, "--listen", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E111")
}

func TestRunNonExistentSpecsDir(t *testing.T) {
	_, err := runFor(t, time.Second, "--specs", "/nonexistent/directory", "--listen", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "specs directory not found")
}

func TestRunUnknownReader(t *testing.T) {
	specsDir := writeSpecs(t, map[string]string{"dock.cue": dockSpec})

	// No readers configured, so the cycle cannot lock dock-1.
	_, err := runFor(t, time.Second, "--specs", specsDir, "--listen", "")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "dock_door")
}

func TestRunDefinesAndPersists(t *testing.T) {
	specsDir := writeSpecs(t, map[string]string{"dock.cue": dockSpec, "gate.cue": gateSpec})
	dbPath := filepath.Join(t.TempDir(), "depot.db")
	cfgPath := writeFile(t, "alecycle.yaml", readersConfig)

	output, err := runFor(t, 2*time.Second,
		"--config", cfgPath, "--specs", specsDir, "--db", dbPath, "--listen", "")
	require.NoError(t, err)
	assert.Contains(t, output, "Engine started")
	assert.Contains(t, output, "engine stopped gracefully")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	defs, err := st.Definitions(context.Background(), store.KindEventCycle)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "dock_door", defs[0].Name)

	defs, err = st.Definitions(context.Background(), store.KindPortCycle)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "gate", defs[0].Name)

	// A restart restores the same definitions without conflicting with
	// the specs directory.
	_, err = runFor(t, 2*time.Second,
		"--config", cfgPath, "--specs", specsDir, "--db", dbPath, "--listen", "")
	require.NoError(t, err)
}

func TestRunHelpText(t *testing.T) {
	buf := &syncBuffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Run the ALE cycle engine")
	assert.Contains(t, output, "--config")
	assert.Contains(t, output, "--db")
	assert.Contains(t, output, "--listen")
}

func TestReconcile(t *testing.T) {
	mem := reader.NewMemory()
	require.NoError(t, mem.Define("r1"))
	svc := trigger.NewServices(mem, nil)
	t.Cleanup(svc.Close)
	m := manager.NewEventCycles(cycle.Deps{
		Readers:           mem,
		Triggers:          svc,
		ReaderCycle:       20 * time.Millisecond,
		CompletionTimeout: time.Second,
	})
	t.Cleanup(m.Close)
	ctx := context.Background()

	spec := func(ms int64) ir.ECSpec {
		return ir.ECSpec{
			LogicalReaders: []string{"r1"},
			Boundary:       ir.BoundarySpec{Duration: ir.MS(ms)},
			Reports:        []ir.ECReportSpec{{Name: "current", Set: ir.ReportSetCurrent}},
		}
	}

	require.NoError(t, reconcile(ctx, m, "dock", spec(100)))
	require.NoError(t, m.Subscribe(ctx, "dock", "file://"+filepath.Join(t.TempDir(), "out.log"), false))

	// Same spec keeps the running cycle and its subscribers.
	require.NoError(t, reconcile(ctx, m, "dock", spec(100)))
	subs, err := m.Subscribers("dock")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	// A changed spec replaces the definition.
	require.NoError(t, reconcile(ctx, m, "dock", spec(200)))
	got, err := m.Spec("dock")
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.Boundary.Duration.Value)
	subs, err = m.Subscribers("dock")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSimulatedTags(t *testing.T) {
	tags := simulatedTags(&config.SimulateConfig{Tags: []string{"3034", "3035"}, Antenna: 2})
	assert.Equal(t, []ir.Tag{{EPC: "3034", Antenna: 2}, {EPC: "3035", Antenna: 2}}, tags)
}
