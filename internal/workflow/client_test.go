package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticEndpoints map[string]string

func (s staticEndpoints) WorkflowURL(_ context.Context, userID string) (string, error) {
	return s[userID], nil
}

func TestDispatchPostsEnvelope(t *testing.T) {
	var got map[string]any
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Analysis-Id")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "https://api.example/", "s3cr3t", time.Second, nil)
	err := c.Dispatch(context.Background(), Job{
		AnalysisID:    "a1",
		PDFURL:        "https://files.example/plan.pdf",
		SelectedCodes: []string{"NCC-2022"},
		PageNumbers:   "1-3",
	})
	require.NoError(t, err)
	assert.Equal(t, "a1", gotHeader)
	assert.Equal(t, "a1", got["analysisId"])
	assert.Equal(t, "https://files.example/plan.pdf", got["pdfUrl"])
	assert.Equal(t, "1-3", got["pageNumbers"])
	assert.Equal(t, "https://api.example/api/v1/webhooks/analysis-update?token=s3cr3t", got["callbackUrl"])
	_, hasDescription := got["description"]
	assert.False(t, hasDescription)
}

func TestDispatchPrefersUserEndpoint(t *testing.T) {
	hits := map[string]int{}
	mk := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits[name]++
		}))
	}
	def, own := mk("default"), mk("own")
	defer def.Close()
	defer own.Close()

	c := NewClient(def.URL, "http://localhost:8080", "", time.Second, staticEndpoints{"u1": own.URL})
	require.NoError(t, c.Dispatch(context.Background(), Job{AnalysisID: "a1", UserID: "u1"}))
	require.NoError(t, c.Dispatch(context.Background(), Job{AnalysisID: "a2", UserID: "u2"}))
	assert.Equal(t, 1, hits["own"])
	assert.Equal(t, 1, hits["default"])
}

func TestDispatchNon2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "http://localhost:8080", "", time.Second, nil)
	err := c.Dispatch(context.Background(), Job{AnalysisID: "a1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDispatchFailed))
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "workflow exploded")
}

func TestDispatchWithoutEndpoint(t *testing.T) {
	c := NewClient("", "http://localhost:8080", "", time.Second, nil)
	err := c.Dispatch(context.Background(), Job{AnalysisID: "a1"})
	assert.ErrorIs(t, err, ErrDispatchFailed)
}

func TestDispatchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, "http://localhost:8080", "", 50*time.Millisecond, nil)
	err := c.Dispatch(context.Background(), Job{AnalysisID: "a1"})
	assert.ErrorIs(t, err, ErrDispatchFailed)
}

func TestCallbackURLWithoutSecret(t *testing.T) {
	c := NewClient("", "http://localhost:8080/", "", 0, nil)
	assert.Equal(t, "http://localhost:8080/api/v1/webhooks/analysis-update", c.CallbackURL())
}
