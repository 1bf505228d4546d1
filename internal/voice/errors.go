package voice

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by control calls after the controller has stopped running
var ErrClosed = errors.New("voice controller is closed")

// PermissionError reports that speech recognition permission was not granted.
// It is terminal until start is called again.
type PermissionError struct {
	Status Permission
}

func (e *PermissionError) Error() string {
	switch e.Status {
	case PermissionDenied:
		return "Speech recognition permission denied."
	case PermissionRestricted:
		return "Speech recognition is restricted on this device."
	case PermissionUndetermined:
		return "Speech recognition permission not determined."
	default:
		return "Speech recognition permission unavailable."
	}
}

// SessionStartError reports that capture or recognition could not be started.
// It is terminal until start is called again.
type SessionStartError struct {
	Err error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("unable to start speech session: %v", e.Err)
}

func (e *SessionStartError) Unwrap() error {
	return e.Err
}

// RecognitionError wraps a transient failure reported during an active session
type RecognitionError struct {
	SessionID uint64
	Err       error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition error in session %d: %v", e.SessionID, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}
