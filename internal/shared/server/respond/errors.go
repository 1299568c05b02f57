package respond

import (
	"github.com/gin-gonic/gin"

	"plancheck-backend/internal/shared/telemetry"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details any) {
	ErrorWithCause(c, status, code, message, details, nil)
}

// ErrorWithCause sends a standardized error response and logs cause next to it.
// The cause never reaches the client.
func ErrorWithCause(c *gin.Context, status int, code, message string, details any, cause error) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	if analysisID := c.GetString("analysisId"); analysisID != "" {
		fields["analysis_id"] = analysisID
	}
	if cause != nil {
		fields["cause"] = cause.Error()
	}
	if status >= 500 {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
