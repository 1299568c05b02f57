package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/credits"
	"plancheck-backend/internal/shared/server/middleware"
	"plancheck-backend/internal/shared/server/respond"
	"plancheck-backend/internal/shared/telemetry"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup, ledger *credits.Service) {
	rg.GET("/me", func(c *gin.Context) {
		meHandler(c, ledger)
	})
}

func meHandler(c *gin.Context, ledger *credits.Service) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}

	response := gin.H{
		"userId":  userID,
		"isGuest": middleware.IsGuest(c),
	}
	if email := middleware.UserEmailFromContext(c); email != "" {
		response["email"] = email
	}
	if ledger != nil {
		balance, err := ledger.Balance(c.Request.Context(), userID)
		switch {
		case err == nil:
			response["credits"] = balance
		case errors.Is(err, credits.ErrNotFound):
			response["credits"] = 0
		default:
			telemetry.Warn("me.balance_failed", map[string]any{"user_id": userID, "err": err.Error()})
		}
	}

	respond.JSON(c, http.StatusOK, response)
}
