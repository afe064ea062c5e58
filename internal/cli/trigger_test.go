package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alecycle/internal/httpapi"
	"github.com/roach88/alecycle/internal/reader"
	"github.com/roach88/alecycle/internal/trigger"
)

func startTriggerServer(t *testing.T, fired *atomic.Int32) string {
	t.Helper()
	svc := trigger.NewServices(reader.NewMemory(), nil)
	t.Cleanup(svc.Close)

	tr, err := svc.New("cycle-1", "urn:havis:ale:trigger:http:door-open", func(trigger.Trigger) bool {
		fired.Add(1)
		return true
	})
	require.NoError(t, err)
	t.Cleanup(tr.Dispose)

	srv := httptest.NewServer(httpapi.New(svc.HTTP, nil, nil, httpapi.Options{}).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func executeTrigger(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTriggerCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTriggerFires(t *testing.T) {
	var fired atomic.Int32
	addr := startTriggerServer(t, &fired)

	out, err := executeTrigger(t, "text", "door-open", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Triggered door-open")
	assert.Equal(t, int32(1), fired.Load())

	out, err = executeTrigger(t, "json", "door-open", "--addr", addr+"/")
	require.NoError(t, err)
	var resp Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int32(2), fired.Load())
}

func TestTriggerUnknownName(t *testing.T) {
	var fired atomic.Int32
	addr := startTriggerServer(t, &fired)

	out, err := executeTrigger(t, "text", "door-closed", "--addr", addr)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NO_SUCH_NAME]")
	assert.Zero(t, fired.Load())
}

func TestTriggerInvalidName(t *testing.T) {
	_, err := executeTrigger(t, "text", "a|b", "--addr", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTriggerUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	addr := srv.URL
	srv.Close()

	_, err := executeTrigger(t, "text", "door-open", "--addr", addr)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "engine unreachable")
}
