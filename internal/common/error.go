// Package common defines shared constants and sentinel errors used across
// the escrow server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrNotConfigured is returned when no organization policy row exists yet.
	// Callers treat it as an implicit "disabled" policy.
	ErrNotConfigured = errors.New("account recovery is not configured")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrInternalConfiguration signals a programming error such as an
	// unsupported validation ruleset name. It is never caused by user input.
	ErrInternalConfiguration = errors.New("internal configuration error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
