// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the request failed domain validation.
// Wrap with context: fmt.Errorf("%w: duration must be >= 0", ErrValidation).
var ErrValidation = errors.New("validation failed")
