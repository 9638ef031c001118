// pkg/core/errors.go
package core

import (
	"errors"
	"fmt"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	ErrMatchExists   = errors.New("match already exists")
	ErrMatchEnded    = errors.New("match has ended")
	ErrUnknownPlayer = errors.New("player not in match")
	ErrNotYourTurn   = errors.New("not player's turn")
	ErrNoMovesLeft   = errors.New("no moves remaining")
	ErrInvalidBody   = errors.New("invalid body parameters")
)

// ValidationError rejects a malformed request before any simulation runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SimulationError wraps a failure raised while simulating or resolving a fire.
type SimulationError struct {
	Stage string
	Err   error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed during %s: %v", e.Stage, e.Err)
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
