package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"authportal/internal/services"
)

// writeError is the single place where service outcomes become HTTP statuses.
func writeError(c *gin.Context, op string, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "[auth]["+op+"] failed", "status", status, "error", err)
	} else {
		slog.InfoContext(c.Request.Context(), "[auth]["+op+"] rejected", "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, services.ErrConflict):
		return http.StatusBadRequest, "User already exists"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusBadRequest, "Invalid credentials"
	case errors.Is(err, services.ErrExpired):
		return http.StatusBadRequest, "OTP expired"
	case errors.Is(err, services.ErrInvalidCode):
		return http.StatusBadRequest, "Invalid OTP"
	case errors.Is(err, services.ErrSyncFailure):
		return http.StatusInternalServerError, "Failed to synchronize account"
	case errors.Is(err, services.ErrNotificationFailure):
		return http.StatusInternalServerError, "Failed to send email"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
