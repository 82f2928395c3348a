// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness conflict (subdomain, custom domain, API key).
var ErrConflict = errors.New("conflict: resource already exists")

// ErrValidation indicates the input failed domain validation.
var ErrValidation = errors.New("validation failed")
