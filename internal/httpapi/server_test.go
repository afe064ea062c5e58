package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/alecycle/internal/ir"
)

type fakeTriggers struct {
	mu    sync.Mutex
	known map[string]bool
	calls []string
}

func (f *fakeTriggers) Handle(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.known[name]
}

type fakeCycles struct {
	names []string
	poll  func(ctx context.Context, name string) (*ir.Reports, error)

	mu      sync.Mutex
	subs    map[string][]string
	persist []bool
}

func (f *fakeCycles) Names() []string { return f.names }

func (f *fakeCycles) Poll(ctx context.Context, name string) (*ir.Reports, error) {
	return f.poll(ctx, name)
}

func (f *fakeCycles) Subscribe(_ context.Context, name, uri string, persist bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "dock" {
		return ir.Errorf(ir.ErrCodeNoSuchName, "no cycle named %s", name)
	}
	if slices.Contains(f.subs[name], uri) {
		return ir.Errorf(ir.ErrCodeDuplicateName, "already subscribed")
	}
	f.subs[name] = append(f.subs[name], uri)
	f.persist = append(f.persist, persist)
	return nil
}

func (f *fakeCycles) Unsubscribe(_ context.Context, name, uri string, persist bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.Index(f.subs[name], uri)
	if i < 0 {
		return ir.Errorf(ir.ErrCodeNoSuchName, "no such subscriber")
	}
	f.subs[name] = slices.Delete(f.subs[name], i, i+1)
	f.persist = append(f.persist, persist)
	return nil
}

func (f *fakeCycles) Subscribers(name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "dock" {
		return nil, ir.Errorf(ir.ErrCodeNoSuchName, "no cycle named %s", name)
	}
	return slices.Clone(f.subs[name]), nil
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *fakeTriggers, *fakeCycles) {
	t.Helper()
	triggers := &fakeTriggers{known: map[string]bool{"door-open": true}}
	events := &fakeCycles{
		names: []string{"dock", "gate"},
		subs:  make(map[string][]string),
		poll: func(ctx context.Context, name string) (*ir.Reports, error) {
			switch name {
			case "dock":
				return &ir.Reports{SpecName: "dock", TotalMilliseconds: 1000}, nil
			case "quiet":
				return nil, nil
			case "slow":
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return nil, ir.Errorf(ir.ErrCodeNoSuchName, "no cycle named %s", name)
		},
	}
	srv := httptest.NewServer(New(triggers, events, nil, opts).Handler())
	t.Cleanup(srv.Close)
	return srv, triggers, events
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestTrigger(t *testing.T) {
	srv, triggers, _ := newTestServer(t, Options{})

	resp, err := http.Post(srv.URL+"/triggers/door-open", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/triggers/door-open")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/triggers/unknown", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NO_SUCH_NAME", decodeError(t, resp).Code)

	assert.Equal(t, []string{"door-open", "door-open", "unknown"}, triggers.calls)
}

func TestTriggerInvalidName(t *testing.T) {
	srv, triggers, _ := newTestServer(t, Options{})

	resp, err := http.Post(srv.URL+"/triggers/a%7Cb", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", decodeError(t, resp).Code)
	assert.Empty(t, triggers.calls)
}

func TestTriggerRateLimited(t *testing.T) {
	srv, triggers, _ := newTestServer(t, Options{TriggerRate: 0.001, TriggerBurst: 2})

	var codes []int
	for range 3 {
		resp, err := http.Post(srv.URL+"/triggers/door-open", "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Len(t, triggers.calls, 2)
}

func TestNames(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/event-cycles")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	assert.Equal(t, []string{"dock", "gate"}, names)
}

func TestPortCyclesNotExposed(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/port-cycles")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPoll(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{PollTimeout: time.Second})

	t.Run("report", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/event-cycles/dock/poll")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var rep ir.Reports
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
		assert.Equal(t, "dock", rep.SpecName)
		assert.EqualValues(t, 1000, rep.TotalMilliseconds)
	})

	t.Run("suppressed", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/event-cycles/quiet/poll")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("unknown", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/event-cycles/nope/poll")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NO_SUCH_NAME", decodeError(t, resp).Code)
	})

	t.Run("timeout", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/event-cycles/slow/poll?timeout=20ms")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
		assert.Equal(t, "TIMEOUT", decodeError(t, resp).Code)
	})

	t.Run("bad timeout", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/event-cycles/dock/poll?timeout=soon")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSubscribers(t *testing.T) {
	srv, _, events := newTestServer(t, Options{})
	base := srv.URL + "/event-cycles/dock/subscribers"
	uri := "file:///tmp/dock.log"

	resp, err := http.Post(base, "application/json", strings.NewReader(`{"uri":"`+uri+`"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Post(base, "application/json", strings.NewReader(`{"uri":"`+uri+`"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Get(base)
	require.NoError(t, err)
	var uris []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uris))
	resp.Body.Close()
	assert.Equal(t, []string{uri}, uris)

	req, err := http.NewRequest(http.MethodDelete, base+"?uri="+url.QueryEscape(uri), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Empty(t, events.subs["dock"])
	assert.Equal(t, []bool{true, true}, events.persist)
}

func TestSubscribeBadRequest(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})

	resp, err := http.Post(srv.URL+"/event-cycles/dock/subscribers", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/event-cycles/gate/subscribers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/event-cycles/dock/subscribers", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListenAndServeShutsDown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s := New(&fakeTriggers{known: map[string]bool{"x": true}}, nil, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Post("http://"+addr+"/triggers/x", "", nil)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
