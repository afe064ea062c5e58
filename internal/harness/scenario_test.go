package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alecycle/internal/ir"
)

// writeScenario writes a spec file next to a scenario file and returns
// the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	spec := "package specs\n\nevent_cycle: x: {logical_readers: [\"r1\"], boundary: duration: 10, reports: [{name: \"r\"}]}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.cue"), []byte(spec), 0o644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalScenario = `
name: minimal
description: "Minimal scenario"
specs: [x.cue]
readers:
  - name: r1
steps:
  - emit: { reader: r1, epc: "AA" }
  - wait: 20ms
  - port: { reader: r1, type: OUTPUT, id: 3, state: 0 }
  - await: { cycle: x, count: 2, timeout: 1s }
assertions:
  - type: report_count
    cycle: x
    count: 2
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, minimalScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, []string{filepath.Join(filepath.Dir(path), "x.cue")}, scenario.Specs)
	require.Len(t, scenario.Steps, 4)
	assert.Equal(t, "AA", scenario.Steps[0].Emit.EPC)
	assert.Equal(t, 20*time.Millisecond, scenario.Steps[1].Wait)
	assert.Equal(t, ir.PinOutput, scenario.Steps[2].Port.Type)
	assert.Equal(t, 3, scenario.Steps[2].Port.ID)
	assert.Equal(t, time.Second, scenario.Steps[3].Await.Timeout)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, minimalScenario+"\nassertion: []\n")

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nspecs: [x.cue]\nreaders: [{name: r1}]\nsteps: [{wait: 1ms}]\nassertions: [{type: report_count, cycle: x}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing spec file",
			content: "name: n\ndescription: d\nspecs: [y.cue]\nreaders: [{name: r1}]\nsteps: [{wait: 1ms}]\nassertions: [{type: report_count, cycle: x}]\n",
			wantErr: "spec file not found",
		},
		{
			name:    "unknown component",
			content: "name: n\ndescription: d\nspecs: [x.cue]\nreaders: [{name: c, composite: [r1]}]\nsteps: [{wait: 1ms}]\nassertions: [{type: report_count, cycle: x}]\n",
			wantErr: "unknown component",
		},
		{
			name:    "two stimuli in one step",
			content: "name: n\ndescription: d\nspecs: [x.cue]\nreaders: [{name: r1}]\nsteps: [{wait: 1ms, trigger: go}]\nassertions: [{type: report_count, cycle: x}]\n",
			wantErr: "exactly one of",
		},
		{
			name:    "bad pin type",
			content: "name: n\ndescription: d\nspecs: [x.cue]\nreaders: [{name: r1}]\nsteps: [{port: {reader: r1, type: SIDEWAYS, id: 1}}]\nassertions: [{type: report_count, cycle: x}]\n",
			wantErr: "type must be INPUT or OUTPUT",
		},
		{
			name:    "await without count",
			content: "name: n\ndescription: d\nspecs: [x.cue]\nreaders: [{name: r1}]\nsteps: [{await: {cycle: x}}]\nassertions: [{type: report_count, cycle: x}]\n",
			wantErr: "positive count",
		},
		{
			name:    "contains needs one target",
			content: "name: n\ndescription: d\nspecs: [x.cue]\nreaders: [{name: r1}]\nsteps: [{wait: 1ms}]\nassertions: [{type: report_contains, cycle: x, report: r}]\n",
			wantErr: "exactly one of epc or event",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nspecs: [x.cue]\nreaders: [{name: r1}]\nsteps: [{wait: 1ms}]\nassertions: [{type: trace_order, cycle: x}]\n",
			wantErr: `unknown assertion type "trace_order"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
