package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reception-agent-go/internal/types"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, types.ErrTranscriptionFailed), errors.Is(err, types.ErrExtractionFailed):
		return http.StatusBadGateway
	case errors.Is(err, types.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
