package camera

import (
	"errors"
	"strings"
)

// ErrorKind classifies camera acquisition failures.
type ErrorKind int

const (
	ErrKindPermissionDenied ErrorKind = iota
	ErrKindHardwareNotFound
	ErrKindHardwareBusy
	ErrKindConstraintUnsupported
	ErrKindInterrupted
	ErrKindUnknown
)

// String returns a stable identifier for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindHardwareNotFound:
		return "hardware_not_found"
	case ErrKindHardwareBusy:
		return "hardware_busy"
	case ErrKindConstraintUnsupported:
		return "constraint_unsupported"
	case ErrKindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Error is a classified camera failure. Raw platform errors never cross
// the package boundary; they are wrapped here with a user-facing message
// and recovery hints.
type Error struct {
	Kind              ErrorKind
	Message           string
	SuggestedAction   string
	FallbackAvailable bool
	cause             error
}

func (e *Error) Error() string {
	return "camera: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Classify wraps a raw platform error into a classified Error. If err is
// already classified it is returned unchanged. Classification relies on
// message heuristics because camera backends do not expose typed causes.
func Classify(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "permission denied", "not permitted", "operation not permitted", "access denied"):
		return &Error{
			Kind:              ErrKindPermissionDenied,
			Message:           "camera access was denied",
			SuggestedAction:   "grant camera permission and try again, or use a photo upload instead",
			FallbackAvailable: true,
			cause:             err,
		}
	case containsAny(msg, "no such file", "no such device", "not found", "no device", "cannot find"):
		return &Error{
			Kind:              ErrKindHardwareNotFound,
			Message:           "no camera was found on this device",
			SuggestedAction:   "connect a camera or enter the product manually",
			FallbackAvailable: true,
			cause:             err,
		}
	case containsAny(msg, "busy", "in use", "already opened", "resource temporarily unavailable"):
		return &Error{
			Kind:              ErrKindHardwareBusy,
			Message:           "the camera is in use by another application",
			SuggestedAction:   "close other applications using the camera and retry",
			FallbackAvailable: true,
			cause:             err,
		}
	case containsAny(msg, "constraint", "unsupported", "invalid argument", "not supported", "resolution"):
		return &Error{
			Kind:              ErrKindConstraintUnsupported,
			Message:           "the camera does not support the requested settings",
			SuggestedAction:   "retry; lower-quality settings will be used automatically",
			FallbackAvailable: false,
			cause:             err,
		}
	case containsAny(msg, "interrupted", "aborted", "cancelled", "canceled", "context"):
		return &Error{
			Kind:              ErrKindInterrupted,
			Message:           "camera startup was interrupted",
			SuggestedAction:   "retry the scan",
			FallbackAvailable: false,
			cause:             err,
		}
	default:
		return &Error{
			Kind:              ErrKindUnknown,
			Message:           "the camera could not be started",
			SuggestedAction:   "retry, or enter the product manually",
			FallbackAvailable: true,
			cause:             err,
		}
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
