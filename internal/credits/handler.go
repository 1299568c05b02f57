package credits

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/shared/server/middleware"
	"plancheck-backend/internal/shared/server/respond"
)

// Handler exposes credit endpoints.
type Handler struct {
	Svc          *Service
	AnalysisCost int
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, analysisCost int) *Handler {
	return &Handler{Svc: svc, AnalysisCost: analysisCost}
}

// RegisterRoutes attaches credit routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/credits", h.getBalance)
	rg.GET("/credits/entries", h.listEntries)
}

// RegisterDevRoutes attaches dev-only credit routes.
func (h *Handler) RegisterDevRoutes(rg *gin.RouterGroup) {
	rg.POST("/credits/grant", h.grant)
}

func (h *Handler) getBalance(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	credits, err := h.Svc.Balance(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		h.fail(c, err, "failed to fetch credits")
		return
	}
	respond.OK(c, gin.H{
		"credits":      credits,
		"analysisCost": h.AnalysisCost,
	})
}

func (h *Handler) listEntries(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.Svc.Entries(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, err, "failed to fetch credit history")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	respond.OK(c, gin.H{"entries": entries})
}

type grantRequest struct {
	Amount int `json:"amount"`
}

func (h *Handler) grant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	userID := middleware.UserIDFromContext(c)
	acct, err := h.Svc.Grant(c.Request.Context(), userID, req.Amount)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "amount must be positive", nil)
			return
		}
		h.fail(c, err, "failed to grant credits")
		return
	}
	respond.OK(c, gin.H{"credits": acct.Credits})
}

func (h *Handler) fail(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.ErrorWithCause(c, http.StatusRequestTimeout, "timeout", "request canceled", nil, err)
	default:
		respond.ErrorWithCause(c, http.StatusInternalServerError, "internal_error", message, nil, err)
	}
}
