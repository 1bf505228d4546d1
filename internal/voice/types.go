package voice

import (
	"fmt"
	"strings"
	"time"

	"github.com/lexiqai/voice-command-gateway/internal/utterance"
)

// State is the listening state of a Controller
type State int

const (
	StateIdle               State = iota // Not listening, no session
	StateStarting                        // Permission/start request in flight
	StateListening                       // Capture and recognition active
	StateStoppingForRestart              // Stopped (or finishing) with intent to restart
	StateUserPaused                      // Paused by the user, no auto-restart
	StateSuppressed                      // TTS is speaking, no auto-restart until it ends
)

// String returns the snake_case name of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateStoppingForRestart:
		return "stopping_for_restart"
	case StateUserPaused:
		return "user_paused"
	case StateSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StopReason explains why listening stopped. It drives the auto-restart policy.
type StopReason string

const (
	StopManual           StopReason = "manual"
	StopUserPause        StopReason = "user_pause"
	StopTTS              StopReason = "tts"
	StopInactivity       StopReason = "inactivity_timeout"
	StopFinal            StopReason = "final"
	StopRecognitionError StopReason = "recognition_error"
	StopStartFailed      StopReason = "start_failed"
)

// restarts reports whether a stop with this reason schedules an automatic restart
func (r StopReason) restarts() bool {
	switch r {
	case StopInactivity, StopFinal, StopRecognitionError:
		return true
	}
	return false
}

// Permission is the outcome of asking the capture device for recognition permission
type Permission int

const (
	PermissionGranted Permission = iota
	PermissionDenied
	PermissionRestricted
	PermissionUndetermined
)

// String returns the name of the permission status
func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	case PermissionRestricted:
		return "restricted"
	case PermissionUndetermined:
		return "undetermined"
	default:
		return "unknown"
	}
}

// ParsePermission parses a permission status name. The empty string means granted.
func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "granted", "authorized":
		return PermissionGranted, nil
	case "denied":
		return PermissionDenied, nil
	case "restricted":
		return PermissionRestricted, nil
	case "undetermined", "not_determined":
		return PermissionUndetermined, nil
	}
	return PermissionUndetermined, fmt.Errorf("unknown permission status %q", s)
}

// TranscriptKind tags a TranscriptEvent
type TranscriptKind int

const (
	TranscriptPartial TranscriptKind = iota
	TranscriptFinal
	TranscriptError
	TranscriptSilenceTimeout
)

// String returns the name of the transcript kind
func (k TranscriptKind) String() string {
	switch k {
	case TranscriptPartial:
		return "partial"
	case TranscriptFinal:
		return "final"
	case TranscriptError:
		return "error"
	case TranscriptSilenceTimeout:
		return "silence_timeout"
	default:
		return "unknown"
	}
}

// TranscriptEvent is one delivery from a TranscriptSource
type TranscriptEvent struct {
	Kind TranscriptKind
	Text string
	Err  error
	// Done marks a final result after which the recognizer ended its task
	Done bool
}

// Partial builds a partial hypothesis event
func Partial(text string) TranscriptEvent {
	return TranscriptEvent{Kind: TranscriptPartial, Text: text}
}

// Final builds a final result event
func Final(text string) TranscriptEvent {
	return TranscriptEvent{Kind: TranscriptFinal, Text: text}
}

// Failure builds a recognition error event
func Failure(err error) TranscriptEvent {
	return TranscriptEvent{Kind: TranscriptError, Err: err}
}

// SilenceTimeout builds an event asking the controller to finalize the pending utterance
func SilenceTimeout() TranscriptEvent {
	return TranscriptEvent{Kind: TranscriptSilenceTimeout}
}

// EventKind tags an Event published by the Controller
type EventKind int

const (
	EventCommand EventKind = iota
	EventQuery
	EventError
	EventTranscript
	EventState
)

// String returns the name of the event kind
func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventQuery:
		return "query"
	case EventError:
		return "error"
	case EventTranscript:
		return "transcript"
	case EventState:
		return "state"
	default:
		return "unknown"
	}
}

// Event is an output of the Controller. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	Command   utterance.CommandKind
	Text      string
	Final     bool
	State     State
	Err       error
	SessionID uint64
	At        time.Time
}

// Snapshot is a point-in-time copy of the controller state
type Snapshot struct {
	State            State
	SessionID        uint64
	SessionActive    bool
	Listening        bool
	UserPaused       bool
	TTSActive        bool
	Restarting       bool
	SuppressCommands bool
	LastPartial      string
	LastSpeech       time.Time
	ErrorMessage     string
}
