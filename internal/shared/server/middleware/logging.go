package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
		}
		if userID := UserIDFromContext(c); userID != "" {
			fields["user_id"] = userID
		}
		for _, key := range []string{"analysisId", "projectId", "statusTransition"} {
			if v := c.GetString(key); v != "" {
				fields[toSnake(key)] = v
			}
		}

		if c.Writer.Status() >= 500 {
			telemetry.Warn("request.complete", fields)
			return
		}
		telemetry.Info("request.complete", fields)
	}
}

func toSnake(key string) string {
	var b strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
