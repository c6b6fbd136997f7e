package services

import "errors"

// Shared service-level sentinels. Handlers map these to HTTP statuses;
// callers test with errors.Is.
var (
	ErrNotFound     = errors.New("record not found")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state for operation")
)
