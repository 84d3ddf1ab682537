package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Dours-d/D2C/internal/apperrors"
	"github.com/gin-gonic/gin"
)

// statusFor maps a service error onto its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidState), errors.Is(err, apperrors.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the mapped status. Internal errors are logged and replaced by fallback so
// that storage details never reach the client.
func respondError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var shortfall *apperrors.ReserveShortfallError
	if errors.As(err, &shortfall) {
		body["minimumEur"] = shortfall.MinimumEur
		body["requiredEur"] = shortfall.RequiredEur
	}

	switch status {
	case http.StatusInternalServerError:
		logger.Error(fallback, slog.String("error", err.Error()))
		body = gin.H{"error": fallback}
	case http.StatusBadGateway:
		logger.Error(fallback, slog.String("error", err.Error()))
	default:
		logger.Warn(fallback, slog.String("error", err.Error()), slog.Int("status", status))
	}
	c.JSON(status, body)
}

func bindError(c *gin.Context, logger *slog.Logger, op string, err error) {
	logger.Warn("Failed to bind request for "+op, slog.String("error", err.Error()))
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
}
