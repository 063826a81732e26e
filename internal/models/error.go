package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource version conflict")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternalServer = errors.New("internal server error")

	// Two-factor lifecycle errors
	ErrInvalidState            = errors.New("operation not allowed in current two-factor state")
	ErrPasswordInvalid         = errors.New("password is incorrect")
	ErrCodeInvalid             = errors.New("authentication code is invalid")
	ErrSecureRandomUnavailable = errors.New("secure random source unavailable")
)
