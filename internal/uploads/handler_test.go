package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/shared/server/middleware"
	"plancheck-backend/internal/shared/storage/object"
	"plancheck-backend/internal/shared/storage/object/local"
)

type fakePresigner struct {
	gotUser        string
	gotContentType string
	err            error
}

func (p *fakePresigner) PresignPut(ctx context.Context, userID, fileName, contentType string, expires time.Duration) (object.PresignedUpload, error) {
	p.gotUser = userID
	p.gotContentType = contentType
	if p.err != nil {
		return object.PresignedUpload{}, p.err
	}
	return object.PresignedUpload{
		UploadURL: "https://bucket.example/put?sig=1",
		Key:       "u/abc_" + fileName,
		FileURL:   "https://bucket.example/u/abc_" + fileName,
		ExpiresIn: expires,
	}, nil
}

func setupRouter(t *testing.T, presigner object.Presigner) (*gin.Engine, *local.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := local.New(t.TempDir(), "http://localhost:8080/files")
	h := NewHandler(store, presigner)
	r := gin.New()
	api := r.Group("/api/v1", middleware.Auth("dev"))
	h.RegisterRoutes(api)
	return r, store
}

func multipartBody(t *testing.T, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(formFileField, fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestUploadStoresPlanAndCountsPages(t *testing.T) {
	r, store := setupRouter(t, nil)
	data, err := os.ReadFile(filepath.Join("testdata", "blank_3_pages.pdf"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	body, contentType := multipartBody(t, "site plan.pdf", data)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Guest-Id", "g1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var out uploadResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.PageCount != 3 {
		t.Fatalf("expected 3 pages, got %d", out.PageCount)
	}
	if out.SizeBytes != int64(len(data)) {
		t.Fatalf("expected size %d, got %d", len(data), out.SizeBytes)
	}
	if out.FileURL != store.URL(out.StorageKey) {
		t.Fatalf("fileUrl %q does not match store url", out.FileURL)
	}
	rc, err := store.Open(context.Background(), out.StorageKey)
	if err != nil {
		t.Fatalf("open stored plan: %v", err)
	}
	rc.Close()
}

func TestUploadRejectsNonPDF(t *testing.T) {
	r, _ := setupRouter(t, nil)
	body, contentType := multipartBody(t, "notes.pdf", []byte("not really a pdf"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Guest-Id", "g1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte(`"invalid_pdf"`)) {
		t.Fatalf("expected invalid_pdf code, got %s", resp.Body.String())
	}
}

func TestUploadRequiresFile(t *testing.T) {
	r, _ := setupRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", nil)
	req.Header.Set("X-Guest-Id", "g1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func doPresign(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/presign", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Guest-Id", "g1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestPresignReturnsUploadTarget(t *testing.T) {
	p := &fakePresigner{}
	r, _ := setupRouter(t, p)

	resp := doPresign(r, `{"fileName":"plans.pdf","contentType":"application/pdf","sizeBytes":1024}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out presignResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UploadURL == "" || out.StorageKey != "u/abc_plans.pdf" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if out.ExpiresInSeconds != int64(presignExpires.Seconds()) {
		t.Fatalf("unexpected expiry %d", out.ExpiresInSeconds)
	}
	if p.gotUser != "guest:g1" {
		t.Fatalf("expected guest principal, got %q", p.gotUser)
	}
}

func TestPresignAcceptsMimeTypeAlias(t *testing.T) {
	p := &fakePresigner{}
	r, _ := setupRouter(t, p)

	resp := doPresign(r, `{"fileName":"plans.pdf","mimeType":"application/pdf","sizeBytes":10}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if p.gotContentType != "application/pdf" {
		t.Fatalf("expected content type to fall back to mimeType, got %q", p.gotContentType)
	}
}

func TestPresignValidation(t *testing.T) {
	r, _ := setupRouter(t, &fakePresigner{})
	cases := map[string]string{
		"missing name": `{"contentType":"application/pdf","sizeBytes":10}`,
		"docx":         `{"fileName":"a.docx","contentType":"application/vnd.openxmlformats-officedocument.wordprocessingml.document","sizeBytes":10}`,
		"zero size":    `{"fileName":"a.pdf","contentType":"application/pdf","sizeBytes":0}`,
		"too large":    `{"fileName":"a.pdf","contentType":"application/pdf","sizeBytes":524288000}`,
		"bad json":     `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if resp := doPresign(r, body); resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.Code)
			}
		})
	}
}

func TestPresignFailureIsInternal(t *testing.T) {
	r, _ := setupRouter(t, &fakePresigner{err: errors.New("signer down")})
	resp := doPresign(r, `{"fileName":"plans.pdf","contentType":"application/pdf","sizeBytes":10}`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestPresignWithoutPresignerIsNotImplemented(t *testing.T) {
	r, _ := setupRouter(t, nil)
	resp := doPresign(r, `{"fileName":"plans.pdf","contentType":"application/pdf","sizeBytes":10}`)
	if resp.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.Code)
	}
}
