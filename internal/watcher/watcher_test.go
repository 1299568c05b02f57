package watcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	gets      atomic.Int32
	mutations atomic.Int32
	// status returns what GET reports for the n-th poll (1-based).
	status func(n int) string
	// push, when set, is sent over the events socket in order.
	push []Update
	// hold keeps the socket open without sending anything.
	hold bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		f.mutations.Add(1)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("X-Guest-Id") != "g1" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case strings.HasSuffix(r.URL.Path, "/events"):
		f.serveEvents(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/analyses/a1"):
		n := int(f.gets.Add(1))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "a1", "status": f.status(n)})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) serveEvents(w http.ResponseWriter, r *http.Request) {
	if f.push == nil && !f.hold {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for _, u := range f.push {
		if err := conn.WriteJSON(u); err != nil {
			return
		}
	}
	_, _, _ = conn.ReadMessage()
}

func newWatcher(srv *httptest.Server, onUpdate func(Update)) *Watcher {
	return New(Options{
		BaseURL:      srv.URL,
		GuestID:      "g1",
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  5,
		OnUpdate:     onUpdate,
	})
}

func TestWaitReturnsTerminalFromPolling(t *testing.T) {
	api := &fakeAPI{status: func(n int) string {
		if n >= 3 {
			return "completed"
		}
		return "processing"
	}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	var mu sync.Mutex
	var seen []string
	w := newWatcher(srv, func(u Update) {
		mu.Lock()
		seen = append(seen, u.Status)
		mu.Unlock()
	})
	u, err := w.Wait(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "completed", u.Status)
	assert.Equal(t, SourcePoll, u.Source)
	assert.EqualValues(t, 3, api.gets.Load())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"processing", "completed"}, seen)
}

func TestWaitTimesOutWithoutMutatingServer(t *testing.T) {
	api := &fakeAPI{status: func(int) string { return "processing" }}
	srv := httptest.NewServer(api)
	defer srv.Close()

	_, err := newWatcher(srv, nil).Wait(context.Background(), "a1")
	require.ErrorIs(t, err, ErrClientTimeout)
	assert.EqualValues(t, 5, api.gets.Load())
	assert.EqualValues(t, 0, api.mutations.Load())
}

func TestWaitPushWinsOverPolling(t *testing.T) {
	score := 90
	api := &fakeAPI{
		status: func(int) string { return "processing" },
		push: []Update{
			{AnalysisID: "a1", Status: "processing"},
			{AnalysisID: "a1", Status: "completed", Score: &score},
		},
	}
	srv := httptest.NewServer(api)
	defer srv.Close()

	w := New(Options{
		BaseURL:      srv.URL,
		GuestID:      "g1",
		PollInterval: time.Hour,
		MaxAttempts:  60,
	})
	u, err := w.Wait(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "completed", u.Status)
	assert.Equal(t, SourcePush, u.Source)
	require.NotNil(t, u.Score)
	assert.Equal(t, 90, *u.Score)
}

func TestWaitStopsOnNotFound(t *testing.T) {
	api := &fakeAPI{status: func(int) string { return "processing" }}
	srv := httptest.NewServer(api)
	defer srv.Close()

	_, err := newWatcher(srv, nil).Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWaitHonorsContext(t *testing.T) {
	api := &fakeAPI{status: func(int) string { return "processing" }, hold: true}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w := New(Options{BaseURL: srv.URL, GuestID: "g1", PollInterval: time.Hour})
	_, err := w.Wait(ctx, "a1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventsURL(t *testing.T) {
	w := New(Options{BaseURL: "https://api.example/"})
	got, err := w.eventsURL("a 1")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example/api/v1/analyses/a%201/events", got)
}
