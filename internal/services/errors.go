package services

import (
	"errors"

	"authportal/internal/repositories"
)

var (
	ErrNotFound            = repositories.ErrNotFound
	ErrConflict            = repositories.ErrConflict
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidCode         = errors.New("code invalid")
	ErrExpired             = errors.New("code expired")
	ErrSyncFailure         = errors.New("replica sync failed")
	ErrNotificationFailure = errors.New("notification failed")
)
