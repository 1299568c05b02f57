package feedback

import (
	"errors"
	"net/http"
	"strings"

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
	rg.POST("/feedback", h.submit)
	rg.GET("/feedback", h.list)
}

func (h *Handler) submit(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	f, err := h.Svc.Submit(c.Request.Context(), middleware.UserIDFromContext(c), middleware.UserEmailFromContext(c), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(c, http.StatusBadRequest, "validation_error", strings.TrimPrefix(err.Error(), ErrValidation.Error()+": "), nil)
		case errors.Is(err, ErrAnalysisNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.ErrorWithCause(c, http.StatusInternalServerError, "internal_error", "Failed to submit feedback", nil, err)
		}
		return
	}
	respond.JSON(c, http.StatusCreated, f)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respond.ErrorWithCause(c, http.StatusInternalServerError, "internal_error", "failed to list feedback", nil, err)
		return
	}
	if items == nil {
		items = []Feedback{}
	}
	respond.OK(c, gin.H{"feedback": items})
}
