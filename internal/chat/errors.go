package chat

import (
	"errors"
	"fmt"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

var (
	// ErrPersistence marks a failed store write or read. Nothing is broadcast
	// when a send or reaction fails with it.
	ErrPersistence = errors.New("persistence failed")
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limited")
	ErrHubStopped  = errors.New("hub stopped")
)

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// checkIdentity 空的或者带 pair key 分隔符的 identity 一律拒绝
func checkIdentity(field, s string) error {
	if s == "" {
		return badRequest("%s is required", field)
	}
	if !models.ValidIdentity(s) {
		return badRequest("invalid %s %q", field, s)
	}
	return nil
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// ErrorCode is what the client sees in an error frame.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrPersistence):
		return "persistence_failed"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrHubStopped):
		return "unavailable"
	default:
		return "internal"
	}
}
