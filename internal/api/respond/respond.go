// Package respond maps core error kinds onto HTTP responses. It is the only
// place where the error taxonomy meets status codes; handlers pass errors
// through unchanged and repositories never see HTTP.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secrelo/secrelo-server/internal/domain"
)

// statusFor maps an error kind to its HTTP status code.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error writes the JSON error response for err and aborts the request.
// Transient store failures respond with a generic retry-safe message; the
// underlying cause is logged, never surfaced.
func Error(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	message := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}
	if status == http.StatusInternalServerError {
		slog.Error("internal error", "path", c.Request.URL.Path, "error", err)
		message = "a temporary storage error occurred, please retry"
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error": message,
		"kind":  kind.String(),
	})
}
