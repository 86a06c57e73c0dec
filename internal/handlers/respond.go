package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/call-intake-service/internal/apperr"
)

// handleError maps typed errors to HTTP responses. Untyped errors become a
// 500 without leaking their text. Returns true if an error was written.
func handleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		c.JSON(domainErr.HTTPStatus(), gin.H{"error": domainErr.Message})
		return true
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	return true
}
