package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/analyses"
	"plancheck-backend/internal/credits"
	"plancheck-backend/internal/feedback"
	"plancheck-backend/internal/notify"
	"plancheck-backend/internal/projects"
	"plancheck-backend/internal/services/health"
	"plancheck-backend/internal/settings"
	"plancheck-backend/internal/shared/config"
	"plancheck-backend/internal/workflow"
)

func testRouter(t *testing.T, checks map[string]health.Check) *gin.Engine {
	t.Helper()
	cfg := config.Config{Env: "dev", CORSAllowOrigin: []string{"http://localhost:3000"}, WebhookSecret: "s3cret"}
	ledger := credits.NewService()
	projectSvc := projects.NewService(projects.NewMemoryRepo())
	settingsSvc := settings.NewService(settings.NewMemoryRepo())
	bus := notify.NewMemoryBus()
	svc := &analyses.Service{
		Repo:       analyses.NewMemoryRepo(),
		Projects:   projectSvc,
		Credits:    ledger,
		Dispatcher: workflow.NewClient("", "http://localhost:8080", cfg.WebhookSecret, time.Second, settingsSvc),
		Events:     bus,
		Cost:       25,
	}
	hs := health.NewService()
	for name, check := range checks {
		hs.Register(name, check)
	}
	return NewRouter(RouterDeps{
		Config:   cfg,
		Health:   hs,
		Credits:  ledger,
		Ledger:   credits.NewHandler(ledger, 25),
		Projects: projects.NewHandler(projectSvc),
		Settings: settings.NewHandler(settingsSvc),
		Feedback: feedback.NewHandler(feedback.NewService(feedback.NewMemoryRepo(), nil)),
		Analyses: analyses.NewHandler(svc, analyses.NewReaper(svc, time.Minute, 1), bus, cfg.WebhookSecret, cfg.CORSAllowOrigin),
	})
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	r := testRouter(t, nil)
	resp := serve(r, http.MethodGet, "/api/v1/health", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestHealthReportsFailingDependency(t *testing.T) {
	r := testRouter(t, map[string]health.Check{
		"database": func(ctx context.Context) error { return errors.New("down") },
	})
	resp := serve(r, http.MethodGet, "/api/v1/health", nil)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestAuthedRoutesRequireIdentity(t *testing.T) {
	r := testRouter(t, nil)
	for _, path := range []string{"/api/v1/projects", "/api/v1/credits", "/api/v1/settings", "/api/v1/me", "/api/v1/feedback"} {
		if resp := serve(r, http.MethodGet, path, nil); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.Code)
		}
	}
}

func TestMeReportsGuestAndBalance(t *testing.T) {
	r := testRouter(t, nil)
	resp := serve(r, http.MethodGet, "/api/v1/me", map[string]string{"X-Guest-Id": "g1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["userId"] != "guest:g1" || body["isGuest"] != true {
		t.Fatalf("unexpected identity: %v", body)
	}
	if body["credits"] != float64(0) {
		t.Fatalf("expected zero credits, got %v", body["credits"])
	}
}

func TestWebhookBypassesUserAuth(t *testing.T) {
	r := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/analysis-update", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected secret check to reject with 401, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/analysis-update?token=s3cret", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected validation error past the secret check, got %d", resp.Code)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	r := testRouter(t, nil)
	resp := serve(r, http.MethodOptions, "/api/v1/projects", map[string]string{"Origin": "http://localhost:3000"})
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("missing allow-origin header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := testRouter(t, nil)
	resp := serve(r, http.MethodGet, "/metrics", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
