// Package common defines shared constants and sentinel errors used across
// tunevault server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// User-specific errors.
	ErrUserAlreadyExists = errors.New("user already exists")

	// File-specific errors. Uniqueness and existence are always scoped to the
	// owner's email.
	ErrFileAlreadyExistsForCurrentUser = errors.New("file already exists for current user")
	ErrFileDoesNotExistForCurrentUser  = errors.New("file does not exist for current user")

	// Token lifecycle errors.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
