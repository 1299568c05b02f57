package credits

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/shared/server/middleware"
)

func setupCreditsRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1", middleware.Auth("dev"))
	h := NewHandler(svc, 25)
	h.RegisterRoutes(api)
	h.RegisterDevRoutes(api.Group("/dev"))
	return r
}

func TestGetCreditsReturnsZeroForNewUser(t *testing.T) {
	r := setupCreditsRouter(t, NewService())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set("X-Guest-Id", "g1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Credits      int `json:"credits"`
		AnalysisCost int `json:"analysisCost"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Credits != 0 || body.AnalysisCost != 25 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestDevGrantThenEntries(t *testing.T) {
	svc := NewService()
	r := setupCreditsRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dev/credits/grant", bytes.NewBufferString(`{"amount":50}`))
	req.Header.Set("X-Guest-Id", "g1")
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("grant: expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}

	if got, _ := svc.Balance(context.Background(), "guest:g1"); got != 50 {
		t.Fatalf("expected balance 50, got %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/credits/entries", nil)
	req.Header.Set("X-Guest-Id", "g1")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	var body struct {
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Type != EntryGrant {
		t.Fatalf("unexpected entries %+v", body.Entries)
	}
}

func TestDevGrantRejectsNonPositive(t *testing.T) {
	r := setupCreditsRouter(t, NewService())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dev/credits/grant", bytes.NewBufferString(`{"amount":0}`))
	req.Header.Set("X-Guest-Id", "g1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
