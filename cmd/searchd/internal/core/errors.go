package core

import "errors"

// Error kinds shared by the loader, the TLS builder and the server runtime.
// Callers match them with errors.Is; the concrete cause is wrapped.
var (
	ErrFileNotFound  = errors.New("file not found")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrRuntime       = errors.New("runtime error")
)
