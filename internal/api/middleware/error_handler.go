// Package middleware provides HTTP middleware for Firewatch.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"firewatch.io/firewatch/internal/orchestration"
	apperrors "firewatch.io/firewatch/internal/pkg/errors"
	"firewatch.io/firewatch/internal/pkg/logger"
)

// ErrorHandler is a Gin middleware that provides centralized error handling.
// It captures errors added via c.Error() and returns a consistent JSON
// response. Gin best practice: separate error handling from route handlers.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, code, message := mapError(err)

		if status >= http.StatusInternalServerError {
			logger.Error("Request error",
				zap.String("code", code),
				zap.Int("status", status),
				zap.Error(err),
			)
		} else {
			logger.Warn("Request error",
				zap.String("code", code),
				zap.Int("status", status),
				zap.Error(err),
			)
		}

		c.JSON(status, gin.H{
			"code":    code,
			"message": message,
		})
	}
}

// mapError translates domain errors into HTTP responses.
func mapError(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, orchestration.ErrInstanceNotFound):
		return http.StatusNotFound, "INSTANCE_NOT_FOUND", "orchestration instance not found"

	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"

	case errors.Is(err, apperrors.ErrReplayInconsistency):
		// Recorded history cannot be reconciled: operator intervention
		// required, never silently repaired.
		return http.StatusInternalServerError, "REPLAY_INCONSISTENCY", "instance history is inconsistent"
	}

	if actErr, ok := apperrors.IsActivityError(err); ok && actErr.Class == apperrors.ClassPermanent {
		return http.StatusBadRequest, actErr.Code, actErr.Message
	}

	return http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred"
}
