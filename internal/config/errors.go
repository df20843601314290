package config

import "errors"

// Sentinel errors for the config package.
var (
	// ErrInvalidConfig is returned when a setting is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMalformedConfig is returned when a config file or variable cannot be parsed.
	ErrMalformedConfig = errors.New("malformed configuration")
)
