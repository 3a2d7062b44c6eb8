package registry

import "errors"

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrJobNotFound    = errors.New("job not found")
	ErrDuplicateID    = errors.New("duplicate id")
)
