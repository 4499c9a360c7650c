// Package handlers provides the REST handlers of the desktop server.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/logging"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrNotFound, apperrors.ErrEntryNotFound:
		return http.StatusNotFound
	case apperrors.ErrSyncOffline, apperrors.ErrRemoteNotConfigured:
		return http.StatusServiceUnavailable
	case apperrors.ErrRemoteInsert, apperrors.ErrBlobUpload, apperrors.ErrSyncFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status derived from its code.
func respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithCode("Request failed", code, err, map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
	}
	c.AbortWithStatusJSON(status, gin.H{"error": ErrorBody{Code: string(code), Message: err.Error()}})
}
