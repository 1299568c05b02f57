package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/shared/auth"
	"plancheck-backend/internal/shared/server/respond"
)

const (
	userIDKey    = "userId"
	userEmailKey = "userEmail"
	isGuestKey   = "isGuest"
)

// Auth validates bearer JWTs and stores identity in context.
// Outside production-like environments an X-Guest-Id header is accepted as "guest:<id>".
func Auth(env string) gin.HandlerFunc {
	allowGuests := env == "dev" || env == "local"
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			// browsers cannot set headers on websocket upgrades
			if token := strings.TrimSpace(c.Query("access_token")); token != "" && isUpgrade(c) {
				authHeader = "Bearer " + token
			}
		}

		if authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
			if token == "" {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			claims, err := auth.VerifyJWT(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			c.Set(userIDKey, claims.Subject)
			if claims.Email != "" {
				c.Set(userEmailKey, claims.Email)
			}
			c.Set(isGuestKey, false)
			c.Next()
			return
		}

		guestID := strings.TrimSpace(c.GetHeader("X-Guest-Id"))
		if guestID == "" || !allowGuests {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
			return
		}

		c.Set(userIDKey, "guest:"+guestID)
		c.Set(isGuestKey, true)
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userEmailKey)
	if email, ok := val.(string); ok {
		return email
	}
	return ""
}

func isUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// IsGuest reports whether the request was authenticated by guest header.
func IsGuest(c *gin.Context) bool {
	if c == nil {
		return false
	}
	return c.GetBool(isGuestKey)
}
