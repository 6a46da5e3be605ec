package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrInvalidRequest is returned when a generation request fails validation
	ErrInvalidRequest = errors.New("invalid generation request")

	// ErrNotLoaded is returned when Generate is called before Load succeeded
	ErrNotLoaded = errors.New("model is not loaded")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)
