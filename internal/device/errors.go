package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-adapters/internal/validate"
)

// Kind classifies a failure so callers can render it or decide to retry
// without inspecting message text.
type Kind string

// Error kinds.
const (
	KindValidation    Kind = "VALIDATION"
	KindNotFound      Kind = "NOT_FOUND"
	KindNetwork       Kind = "NETWORK"
	KindTimeout       Kind = "TIMEOUT"
	KindDeviceOffline Kind = "DEVICE_OFFLINE"
	KindPermission    Kind = "PERMISSION"
	KindInternal      Kind = "INTERNAL"
	KindConfiguration Kind = "CONFIGURATION"
)

// Retryable reports whether failures of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindDeviceOffline:
		return true
	default:
		return false
	}
}

// Domain errors. Check with errors.Is.
var (
	// ErrDeviceNotFound is returned when a device ID is unknown to an adapter.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrSceneNotFound is returned when a scene ID is unknown to an adapter.
	ErrSceneNotFound = errors.New("device: scene not found")

	// ErrCapabilityNotFound is returned when a device lacks the commanded capability.
	ErrCapabilityNotFound = errors.New("device: capability not found")

	// ErrActionNotSupported is returned for an action an adapter cannot translate.
	ErrActionNotSupported = errors.New("device: action not supported")

	// ErrNotSupported is returned when an adapter lacks a whole feature (e.g. scenes).
	ErrNotSupported = errors.New("device: capability not supported by adapter")

	// ErrInvalidCommand is returned when a command fails construction checks.
	ErrInvalidCommand = errors.New("device: invalid command")

	// ErrStateMismatch is returned when a state is stored on the wrong capability.
	ErrStateMismatch = errors.New("device: state does not match capability")

	// ErrOffline is returned when a command targets an unreachable device.
	ErrOffline = errors.New("device: offline")
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string. %w is honoured.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err. Errors that carry no explicit kind are
// classified from well-known sentinels and default to KindInternal.
// KindOf(nil) returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, validate.ErrInvalid), errors.Is(err, ErrInvalidCommand):
		return KindValidation
	case errors.Is(err, validate.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrSceneNotFound),
		errors.Is(err, ErrCapabilityNotFound), errors.Is(err, ErrActionNotSupported):
		return KindNotFound
	case errors.Is(err, ErrOffline):
		return KindDeviceOffline
	default:
		return KindInternal
	}
}

// IsRetryable reports whether err is of a retryable kind.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

func stateMismatch(want, got CapabilityType) error {
	return fmt.Errorf("%w: capability %s given %s state", ErrStateMismatch, want, got)
}

func capabilityMissing(deviceID string, c CapabilityType) error {
	return fmt.Errorf("%w: device %s has no %s capability", ErrCapabilityNotFound, deviceID, c)
}
