// Package watcher follows one analysis from a client until it reaches a terminal state.
// It polls the status endpoint and listens on the push channel at the same time;
// whichever reports a terminal state first wins. It never changes server state.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"plancheck-backend/internal/shared/telemetry"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 60

	SourcePoll = "poll"
	SourcePush = "push"
)

var (
	ErrClientTimeout = errors.New("analysis did not finish before the client timeout")
	ErrNotFound      = errors.New("analysis not found")
	ErrUnauthorized  = errors.New("not authorized to watch analysis")
)

// Update is one observed state of the analysis.
type Update struct {
	AnalysisID string `json:"analysisId"`
	Status     string `json:"status"`
	Score      *int   `json:"score,omitempty"`
	Violations *int   `json:"violations,omitempty"`
	Message    string `json:"message,omitempty"`
	Source     string `json:"-"`
}

// Terminal reports whether the update ends the watch.
func (u Update) Terminal() bool {
	return u.Status == "completed" || u.Status == "failed"
}

// Options configures a Watcher. BaseURL is the API origin, e.g. http://localhost:8080.
type Options struct {
	BaseURL      string
	Token        string
	GuestID      string
	HTTPClient   *http.Client
	Dialer       *websocket.Dialer
	PollInterval time.Duration
	MaxAttempts  int
	// DisablePush skips the websocket channel.
	DisablePush bool
	// OnUpdate is called whenever the observed status changes.
	OnUpdate func(Update)
}

type Watcher struct {
	opts Options

	mu         sync.Mutex
	lastStatus string
}

func New(opts Options) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	return &Watcher{opts: opts}
}

// Wait blocks until the analysis is terminal, the poll budget is spent (ErrClientTimeout)
// or ctx is done.
func (w *Watcher) Wait(ctx context.Context, analysisID string) (Update, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	terminal := make(chan Update, 2)
	pollDone := make(chan error, 1)
	go func() { pollDone <- w.poll(ctx, analysisID, terminal) }()
	if !w.opts.DisablePush {
		go w.stream(ctx, analysisID, terminal)
	}

	select {
	case u := <-terminal:
		return u, nil
	case err := <-pollDone:
		select {
		case u := <-terminal:
			return u, nil
		default:
		}
		return Update{}, err
	case <-ctx.Done():
		return Update{}, ctx.Err()
	}
}

func (w *Watcher) observe(u Update) {
	w.mu.Lock()
	changed := u.Status != w.lastStatus
	w.lastStatus = u.Status
	w.mu.Unlock()
	if changed && w.opts.OnUpdate != nil {
		w.opts.OnUpdate(u)
	}
}

func (w *Watcher) poll(ctx context.Context, analysisID string, terminal chan<- Update) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		u, err := w.fetch(ctx, analysisID)
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized):
			return err
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			telemetry.Warn("watcher.poll_failed", map[string]any{
				"analysis_id": analysisID,
				"attempt":     attempt,
				"error":       err,
			})
		default:
			w.observe(u)
			if u.Terminal() {
				terminal <- u
				return nil
			}
		}
		timer.Reset(w.opts.PollInterval)
	}
	return ErrClientTimeout
}

func (w *Watcher) authorize(h http.Header) {
	if w.opts.Token != "" {
		h.Set("Authorization", "Bearer "+w.opts.Token)
	} else if w.opts.GuestID != "" {
		h.Set("X-Guest-Id", w.opts.GuestID)
	}
}

func (w *Watcher) fetch(ctx context.Context, analysisID string) (Update, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.opts.BaseURL+"/api/v1/analyses/"+url.PathEscape(analysisID), nil)
	if err != nil {
		return Update{}, err
	}
	w.authorize(req.Header)
	resp, err := w.opts.HTTPClient.Do(req)
	if err != nil {
		return Update{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Update{}, ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return Update{}, ErrUnauthorized
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Update{}, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var body struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		Score      *int   `json:"score"`
		Violations *int   `json:"violations"`
		Error      string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Update{}, fmt.Errorf("decode analysis: %w", err)
	}
	return Update{
		AnalysisID: analysisID,
		Status:     body.Status,
		Score:      body.Score,
		Violations: body.Violations,
		Message:    body.Error,
		Source:     SourcePoll,
	}, nil
}

func (w *Watcher) eventsURL(analysisID string) (string, error) {
	u, err := url.Parse(w.opts.BaseURL + "/api/v1/analyses/" + url.PathEscape(analysisID) + "/events")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// stream listens on the push channel. Failures are logged; polling still covers the watch.
func (w *Watcher) stream(ctx context.Context, analysisID string, terminal chan<- Update) {
	target, err := w.eventsURL(analysisID)
	if err != nil {
		return
	}
	header := http.Header{}
	w.authorize(header)
	conn, _, err := w.opts.Dialer.DialContext(ctx, target, header)
	if err != nil {
		if ctx.Err() == nil {
			telemetry.Warn("watcher.push_unavailable", map[string]any{
				"analysis_id": analysisID,
				"error":       err,
			})
		}
		return
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var u Update
		if err := conn.ReadJSON(&u); err != nil {
			return
		}
		if u.AnalysisID == "" {
			u.AnalysisID = analysisID
		}
		u.Source = SourcePush
		w.observe(u)
		if u.Terminal() {
			terminal <- u
			return
		}
	}
}
