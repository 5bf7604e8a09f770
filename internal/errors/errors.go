package errors

import (
	"errors"
	"fmt"
)

// Errors shared across the command and wiring packages
var (
	// Configuration errors
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrUnknownBackend = errors.New("unknown storage backend")

	// Callback errors
	ErrInvalidCallbackURL = errors.New("invalid callback url")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
