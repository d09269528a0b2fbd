// Package common defines shared constants and sentinel errors used across
// filecatalog components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors: a missing bucket, rejected credentials.
	ErrorNotFound     = errors.New("not found")
	ErrorUnauthorized = errors.New("unauthorized")

	// Batch-level errors, returned before any store/catalog I/O.
	ErrValidation = errors.New("validation error")
	ErrConfig     = errors.New("config error")

	// Item-level errors, recorded per file while the batch continues.
	ErrTransfer          = errors.New("transfer error")
	ErrCatalog           = errors.New("catalog error")
	ErrTimeout           = errors.New("timeout")
	ErrUnknownIdentifier = errors.New("unknown identifier")

	// Auth errors (invalid or malformed session token).
	ErrInvalidToken = errors.New("invalid token")
)
