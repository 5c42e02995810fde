// Package common defines shared constants and sentinel errors used across
// the filekeeper server and client. Callers should use errors.Is to match
// these values; wrapped causes never leave the process.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a concurrent writer already took
	// the version number this call tried to allocate.
	ErrVersionConflict = errors.New("version conflict")

	// Input errors, raised before any side effect.
	ErrorValidation = errors.New("validation error")

	// Store errors (metadata or blob store unreachable / rejecting us).
	ErrorStoreTransport = errors.New("store unavailable")
	ErrorPermission     = errors.New("permission denied")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
