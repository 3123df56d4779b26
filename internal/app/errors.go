// Package app holds the error kinds and helpers shared by the application
// services.
package app

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidInput marks a request rejected by input validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProcessing marks an unexpected failure wrapped at the service
	// boundary. The original message is preserved for diagnostics.
	ErrProcessing = errors.New("processing failed")
)

// ProcessingErr wraps an unexpected failure so callers can match it with
// errors.Is(err, ErrProcessing) while keeping the original message.
func ProcessingErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProcessing, op, err)
}

// InvalidInputErr builds a validation failure from field-level messages.
func InvalidInputErr(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, detail)
}

// BestEffort runs op and logs a failure instead of returning it. Used for
// operations whose failure must never fail the enclosing workflow, such as
// cache invalidation.
func BestEffort(log zerolog.Logger, name string, op func() error) {
	if err := op(); err != nil {
		log.Warn().Err(err).Str("op", name).Msg("best-effort operation failed")
	}
}
