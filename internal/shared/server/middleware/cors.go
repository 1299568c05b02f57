package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const corsAllowHeaders = "Content-Type, Authorization, X-Guest-Id, X-Request-Id"

// CORS sets CORS headers for allowed origins and short-circuits preflight requests.
// A single "*" entry allows any origin without credentials.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{})
	wildcard := false
	for _, o := range allowedOrigins {
		trimmed := strings.TrimRight(strings.TrimSpace(o), "/")
		switch trimmed {
		case "":
		case "*":
			wildcard = true
		default:
			origins[trimmed] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			h := c.Writer.Header()
			_, listed := origins[origin]
			switch {
			case listed:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Vary", "Origin")
				h.Set("Access-Control-Allow-Credentials", "true")
			case wildcard:
				h.Set("Access-Control-Allow-Origin", "*")
			}
			if listed || wildcard {
				h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Expose-Headers", "X-Request-Id, Retry-After")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
