package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Success writes the bare acknowledgement used by mutation endpoints.
func Success(c *gin.Context) {
	JSON(c, http.StatusOK, gin.H{"success": true})
}
