package uploads

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/extract"
	"plancheck-backend/internal/shared/server/middleware"
	"plancheck-backend/internal/shared/server/respond"
	"plancheck-backend/internal/shared/storage/object"
	"plancheck-backend/internal/shared/telemetry"
	"plancheck-backend/internal/shared/util"
)

const (
	DefaultMaxUploadBytes = 50 << 20
	DefaultMaxPages       = 500
	presignExpires        = 15 * time.Minute
	formFileField         = "file"
)

var allowedContentTypes = map[string]struct{}{
	extract.MimePDF: {},
}

// Handler accepts plan PDFs either through the API or by presigned direct upload.
type Handler struct {
	Store          object.ObjectStore
	Presigner      object.Presigner
	MaxUploadBytes int64
	MaxPages       int
}

// NewHandler wires uploads to store. presigner may be nil when the store
// cannot issue direct upload URLs.
func NewHandler(store object.ObjectStore, presigner object.Presigner) *Handler {
	return &Handler{
		Store:          store,
		Presigner:      presigner,
		MaxUploadBytes: DefaultMaxUploadBytes,
		MaxPages:       DefaultMaxPages,
	}
}

type uploadResponse struct {
	StorageKey string `json:"storageKey"`
	FileURL    string `json:"fileUrl"`
	PageCount  int    `json:"pageCount"`
	HasText    bool   `json:"hasText"`
	SizeBytes  int64  `json:"sizeBytes"`
}

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	MimeType    string `json:"mimeType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	UploadURL        string `json:"uploadUrl"`
	StorageKey       string `json:"storageKey"`
	FileURL          string `json:"fileUrl"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads", h.upload)
	rg.POST("/uploads/presign", h.presign)
}

func (h *Handler) upload(c *gin.Context) {
	fh, err := c.FormFile(formFileField)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	if fh.Size > h.MaxUploadBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds upload limit", gin.H{"maxBytes": h.MaxUploadBytes})
		return
	}
	fileName, err := util.SanitizeFileName(fh.Filename)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid file name", nil)
		return
	}

	f, err := fh.Open()
	if err != nil {
		respond.ErrorWithCause(c, http.StatusBadRequest, "validation_error", "unreadable upload", nil, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.MaxUploadBytes+1))
	if err != nil {
		respond.ErrorWithCause(c, http.StatusBadRequest, "validation_error", "unreadable upload", nil, err)
		return
	}
	if int64(len(data)) > h.MaxUploadBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds upload limit", gin.H{"maxBytes": h.MaxUploadBytes})
		return
	}

	info, err := extract.InspectPDF(c.Request.Context(), data, h.MaxPages)
	switch {
	case errors.Is(err, extract.ErrTooLarge):
		respond.Error(c, http.StatusBadRequest, "too_many_pages", "plan set exceeds page limit", gin.H{"maxPages": h.MaxPages})
		return
	case err != nil:
		respond.ErrorWithCause(c, http.StatusBadRequest, "invalid_pdf", "file must be a readable PDF", nil, err)
		return
	}

	userID := middleware.UserIDFromContext(c)
	obj, err := h.Store.Save(c.Request.Context(), userID, fileName, bytes.NewReader(data))
	if err != nil {
		telemetry.Error("uploads.save_failed", map[string]any{
			"err":        err.Error(),
			"user_id":    userID,
			"size_bytes": len(data),
			"request_id": middleware.RequestIDFromContext(c),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store upload", nil)
		return
	}

	telemetry.Info("uploads.saved", map[string]any{
		"user_id":     userID,
		"storage_key": obj.Key,
		"pages":       info.Pages,
		"has_text":    info.HasText,
		"size_bytes":  obj.SizeBytes,
	})
	respond.JSON(c, http.StatusCreated, uploadResponse{
		StorageKey: obj.Key,
		FileURL:    h.Store.URL(obj.Key),
		PageCount:  info.Pages,
		HasText:    info.HasText,
		SizeBytes:  obj.SizeBytes,
	})
}

func (h *Handler) presign(c *gin.Context) {
	if h.Presigner == nil {
		respond.Error(c, http.StatusNotImplemented, "not_supported", "direct uploads are not configured", nil)
		return
	}

	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	req.FileName = strings.TrimSpace(req.FileName)
	req.ContentType = strings.TrimSpace(req.ContentType)
	if req.ContentType == "" {
		req.ContentType = strings.TrimSpace(req.MimeType)
	}

	if req.FileName == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileName is required", nil)
		return
	}
	if _, ok := allowedContentTypes[req.ContentType]; !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "contentType is not allowed", nil)
		return
	}
	if req.SizeBytes <= 0 || req.SizeBytes > h.MaxUploadBytes {
		respond.Error(c, http.StatusBadRequest, "validation_error", "sizeBytes exceeds limit", nil)
		return
	}

	userID := middleware.UserIDFromContext(c)
	out, err := h.Presigner.PresignPut(c.Request.Context(), userID, req.FileName, req.ContentType, presignExpires)
	if err != nil {
		if errors.Is(err, util.ErrInvalidFileName) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid fileName", nil)
			return
		}
		telemetry.Error("uploads.presign_failed", map[string]any{
			"err":         err.Error(),
			"contentType": req.ContentType,
			"sizeBytes":   req.SizeBytes,
			"request_id":  middleware.RequestIDFromContext(c),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate upload url", nil)
		return
	}

	respond.OK(c, presignResponse{
		UploadURL:        out.UploadURL,
		StorageKey:       out.Key,
		FileURL:          out.FileURL,
		ExpiresInSeconds: int64(out.ExpiresIn.Seconds()),
	})
}
