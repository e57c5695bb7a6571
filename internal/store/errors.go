package store

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors surfaced to the orchestrator.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrNicknameTaken = errors.New("nickname already taken")
)

// TransientError marks a store failure worth retrying (timeouts, broken
// connections). Anything not wrapped in TransientError is permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classify maps driver-level failures into the taxonomy: deadline and
// network errors are transient, everything else permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(err)
	}
	return err
}
