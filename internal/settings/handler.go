package settings

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/shared/server/middleware"
	"plancheck-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/settings", h.get)
	rg.PUT("/settings", h.put)
}

func (h *Handler) get(c *gin.Context) {
	st, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respond.ErrorWithCause(c, http.StatusInternalServerError, "internal_error", "failed to load settings", nil, err)
		return
	}
	respond.OK(c, st)
}

type putRequest struct {
	WorkflowURL string `json:"workflowUrl"`
}

func (h *Handler) put(c *gin.Context) {
	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	st, err := h.Svc.Update(c.Request.Context(), middleware.UserIDFromContext(c), req.WorkflowURL)
	if err != nil {
		if errors.Is(err, ErrInvalidWorkflowURL) {
			respond.Error(c, http.StatusBadRequest, "validation_error", ErrInvalidWorkflowURL.Error(), nil)
			return
		}
		respond.ErrorWithCause(c, http.StatusInternalServerError, "internal_error", "failed to save settings", nil, err)
		return
	}
	respond.OK(c, st)
}
