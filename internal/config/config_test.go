package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alecycle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.ReaderCycleDuration)
	assert.Equal(t, 2*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Listen)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database: /var/lib/alecycle/depot.db
specs: ./specs
reader_cycle_duration: 250ms
http:
  listen: ":9090"
  trigger_rate: 5
  trigger_burst: 2
timezone: UTC
readers:
  - name: dock-1
    simulate:
      tags: ["3034257bf7194e4000000001", "3034257bf7194e4000000002"]
      interval: 50ms
      antenna: 2
  - name: dock-2
  - name: dock
    composite: [dock-1, dock-2]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/alecycle/depot.db", cfg.Database)
	assert.Equal(t, "./specs", cfg.Specs)
	assert.Equal(t, 250*time.Millisecond, cfg.ReaderCycleDuration)
	assert.Equal(t, 2*time.Second, cfg.CompletionTimeout, "default kept")
	assert.Equal(t, ":9090", cfg.HTTP.Listen)
	assert.Equal(t, 5.0, cfg.HTTP.TriggerRate)
	require.Len(t, cfg.Readers, 3)
	require.NotNil(t, cfg.Readers[0].Simulate)
	assert.Equal(t, 50*time.Millisecond, cfg.Readers[0].Simulate.Interval)
	assert.Equal(t, 2, cfg.Readers[0].Simulate.Antenna)
	assert.Equal(t, []string{"dock-1", "dock-2"}, cfg.Readers[2].Composite)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", "databse: x\n", "failed to parse config"},
		{"bad duration", "reader_cycle_duration: soon\n", "failed to parse config"},
		{"zero reader cycle", "reader_cycle_duration: 0s\n", "reader_cycle_duration"},
		{"bad timezone", "timezone: Mars/Olympus\n", "timezone"},
		{"burst", "http: {trigger_rate: 1, trigger_burst: 0}\n", "trigger_burst"},
		{"reader name", "readers: [{name: \"a/b\"}]\n", "readers[0]"},
		{"duplicate reader", "readers: [{name: a}, {name: a}]\n", "duplicate reader"},
		{"forward component", "readers: [{name: c, composite: [a]}, {name: a}]\n", "unknown component"},
		{"simulate interval", "readers: [{name: a, simulate: {tags: [\"01\"]}}]\n", "simulate.interval"},
		{"simulate tags", "readers: [{name: a, simulate: {interval: 1s}}]\n", "simulate.tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
