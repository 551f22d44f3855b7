// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("not found")
