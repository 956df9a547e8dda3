package domain

import "errors"

// Sentinel errors for the application. Store and service operations wrap one
// of these so callers can distinguish "try again" (ErrTransport) from "don't
// retry" (ErrParse, ErrInvalidInput).
var (
	ErrNotFound     = errors.New("resource not found")
	ErrParse        = errors.New("stored record is malformed")
	ErrTransport    = errors.New("storage backend failure")
	ErrDuplicate    = errors.New("resource already exists")
	ErrTimeout      = errors.New("operation deadline exceeded")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)
