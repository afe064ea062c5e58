package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const dockSpec = `
package specs

event_cycle: dock_door: {
	logical_readers: ["dock-1", "dock-2"]
	boundary: {
		start_triggers: ["urn:havis:ale:trigger:http:door-open"]
		duration: 500
	}
	reports: [
		{name: "present", set: "CURRENT", report_if_empty: true},
	]
}
`

const gateSpec = `
package specs

port_cycle: gate: {
	logical_readers: ["dock-1"]
	boundary: {
		repeat_period: 1000
		duration: 200
	}
	reports: [{
		name: "inputs"
		pins: [{type: "INPUT", id: 1}]
	}]
}
`

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a
// running engine's logger.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeSpecs writes files (name -> content) into a new specs directory.
func writeSpecs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "specs")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
