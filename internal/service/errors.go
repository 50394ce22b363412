package service

import "errors"

// Common errors
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoUnitAvailable = errors.New("no unit available")
	ErrJobNotFound     = errors.New("job not found")
	ErrInvalidStatus   = errors.New("invalid status")
)
