package analyses

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"plancheck-backend/internal/notify"
	"plancheck-backend/internal/shared/server/middleware"
	"plancheck-backend/internal/shared/server/respond"
	"plancheck-backend/internal/shared/telemetry"
	"plancheck-backend/internal/workflow"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc            *Service
	Reaper         *Reaper
	Bus            notify.Bus
	WebhookSecret  string
	AllowedOrigins []string
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, reaper *Reaper, bus notify.Bus, webhookSecret string, allowedOrigins []string) *Handler {
	return &Handler{
		Svc:            svc,
		Reaper:         reaper,
		Bus:            bus,
		WebhookSecret:  webhookSecret,
		AllowedOrigins: allowedOrigins,
	}
}

// RegisterRoutes attaches authenticated analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analysis/create", h.createAnalysis)
	rg.POST("/analysis/cleanup", h.cleanup)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.DELETE("/analyses/:id", h.deleteAnalysis)
	rg.GET("/analyses/:id/events", h.streamEvents)
	rg.GET("/projects/:id/analyses", h.listByProject)
}

// RegisterPublicRoutes attaches the workflow callback, which is authenticated by shared secret.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/analysis-update", h.webhook)
}

func (h *Handler) createAnalysis(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	c.Set("projectId", in.ProjectID)
	res, err := h.Svc.Create(c.Request.Context(), middleware.UserIDFromContext(c), in)
	if err != nil {
		var insufficient *InsufficientCreditsError
		switch {
		case errors.As(err, &insufficient):
			respond.Error(c, http.StatusPaymentRequired, "insufficient_credits", "Not enough credits to run an analysis", gin.H{
				"required": insufficient.Required,
			})
		case errors.Is(err, ErrValidation):
			respond.Error(c, http.StatusBadRequest, "validation_error", validationMessage(err), nil)
		case errors.Is(err, ErrUnauthorized):
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		case errors.Is(err, ErrProjectNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "project not found", nil)
		case errors.Is(err, ErrCreditDeductionFailed):
			respond.ErrorWithCause(c, http.StatusInternalServerError, "credit_deduction_failed", "Failed to deduct credits", nil, err)
		case errors.Is(err, workflow.ErrDispatchFailed):
			respond.ErrorWithCause(c, http.StatusInternalServerError, "dispatch_failed", "Failed to start analysis. Credits have been refunded.", gin.H{
				"cause": strings.TrimPrefix(err.Error(), ErrAnalysisCreationFailed.Error()+": "),
			}, err)
		default:
			respond.ErrorWithCause(c, http.StatusInternalServerError, "analysis_creation_failed", "Failed to start analysis. Credits have been refunded.", nil, err)
		}
		return
	}
	c.Set("analysisId", res.AnalysisID)
	c.Set("statusTransition", "->"+StatusProcessing)
	respond.OK(c, res)
}

func (h *Handler) getAnalysis(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("analysisId", id)
	d, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.fail(c, err, "failed to fetch analysis")
		return
	}
	respond.OK(c, d)
}

func (h *Handler) deleteAnalysis(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("analysisId", id)
	if err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), id); err != nil {
		h.fail(c, err, "failed to delete analysis")
		return
	}
	respond.Success(c)
}

func (h *Handler) listByProject(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	c.Set("projectId", projectID)
	items, err := h.Svc.ListByProject(c.Request.Context(), middleware.UserIDFromContext(c), projectID)
	if err != nil {
		h.fail(c, err, "failed to list analyses")
		return
	}
	if items == nil {
		items = []Analysis{}
	}
	respond.OK(c, gin.H{"analyses": items})
}

func (h *Handler) cleanup(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	res, err := h.Reaper.Sweep(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "failed to clean up analyses")
		return
	}
	respond.OK(c, res)
}

func (h *Handler) webhook(c *gin.Context) {
	if !h.webhookAuthorized(c) {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid webhook secret", nil)
		return
	}
	var p CompletionPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	c.Set("analysisId", p.AnalysisID)
	out, err := h.Svc.HandleCompletion(c.Request.Context(), p)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(c, http.StatusBadRequest, "validation_error", validationMessage(err), nil)
		default:
			telemetry.Error("webhook.status_update_failed", map[string]any{
				"analysis_id": p.AnalysisID,
				"request_id":  middleware.RequestIDFromContext(c),
				"error":       err,
			})
			respond.JSON(c, http.StatusInternalServerError, gin.H{"error": "Failed to update analysis"})
		}
		return
	}
	if out.Applied {
		c.Set("statusTransition", StatusProcessing+"->"+out.Status)
	}
	respond.Success(c)
}

func (h *Handler) webhookAuthorized(c *gin.Context) bool {
	if h.WebhookSecret == "" {
		return true
	}
	got := c.GetHeader("X-Webhook-Secret")
	if got == "" {
		got = c.Query("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.WebhookSecret)) == 1
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range h.AllowedOrigins {
				o = strings.TrimRight(strings.TrimSpace(o), "/")
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// streamEvents sends the current state, then every status change, until the analysis is terminal.
func (h *Handler) streamEvents(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("analysisId", id)
	userID := middleware.UserIDFromContext(c)
	if _, err := h.Svc.Get(c.Request.Context(), userID, id); err != nil {
		h.fail(c, err, "failed to fetch analysis")
		return
	}
	if h.Bus == nil {
		respond.Error(c, http.StatusNotImplemented, "not_implemented", "live updates are not enabled", nil)
		return
	}

	up := h.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		telemetry.Warn("ws.upgrade_failed", map[string]any{
			"analysis_id": id,
			"error":       err,
		})
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	events, err := h.Bus.Subscribe(ctx, id)
	if err != nil {
		telemetry.Error("ws.subscribe_failed", map[string]any{"analysis_id": id, "error": err})
		_ = writeClose(conn, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}

	// Subscribed before the snapshot so no change falls between the two.
	d, err := h.Svc.Get(ctx, userID, id)
	if err != nil {
		_ = writeClose(conn, websocket.CloseInternalServerErr, "lookup failed")
		return
	}
	if err := writeEvent(conn, snapshotEvent(d)); err != nil || IsTerminal(d.Status) {
		_ = writeClose(conn, websocket.CloseNormalClosure, d.Status)
		return
	}

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
			if IsTerminal(ev.Status) {
				_ = writeClose(conn, websocket.CloseNormalClosure, ev.Status)
				return
			}
		}
	}
}

func snapshotEvent(d Detail) notify.Event {
	return notify.Event{
		AnalysisID: d.ID,
		Status:     d.Status,
		Score:      d.Score,
		Violations: d.Violations,
		Message:    d.Error,
		At:         d.UpdatedAt,
	}
}

func writeEvent(conn *websocket.Conn, ev notify.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ev)
}

func writeClose(conn *websocket.Conn, code int, text string) error {
	return conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}

func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
}

func (h *Handler) fail(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, ErrProjectNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "project not found", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.ErrorWithCause(c, http.StatusRequestTimeout, "timeout", "request canceled", nil, err)
	default:
		respond.ErrorWithCause(c, http.StatusInternalServerError, "internal_error", message, nil, err)
	}
}
