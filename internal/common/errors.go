// Package common defines shared constants and sentinel errors used across
// the capture and inspection layers of ChatVault. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository / lookup errors.
	ErrorNotFound = errors.New("not found")

	// Fatal startup configuration errors (missing or malformed audit key).
	ErrConfig = errors.New("invalid configuration")

	// Decryption errors: authentication tag mismatch or malformed envelope.
	ErrIntegrity = errors.New("integrity check failed")

	// Auth errors (invalid or malformed token).
	ErrorInvalidToken = errors.New("invalid token")

	// Generic internal flow control.
	ErrorInternal = errors.New("internal error")
)
