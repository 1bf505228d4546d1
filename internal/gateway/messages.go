package gateway

import (
	"github.com/lexiqai/voice-command-gateway/internal/cooking"
	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

// Client message types
const (
	msgStart       = "start"
	msgStop        = "stop"
	msgPause       = "pause"
	msgResume      = "resume"
	msgTTSStarted  = "tts_started"
	msgTTSFinished = "tts_finished"
	msgAsk         = "ask"
)

// Server message types
const (
	msgReady       = "ready"
	msgState       = "state"
	msgTranscript  = "transcript"
	msgCommand     = "command"
	msgQuery       = "query"
	msgAnswer      = "answer"
	msgAnswerError = "answer_error"
	msgSpeech      = "speech"
	msgError       = "error"
)

// ClientMessage is a JSON control frame sent by the listener
type ClientMessage struct {
	Type string `json:"type"`

	// Permission is the device microphone/speech permission for "start"
	Permission string `json:"permission,omitempty"`

	// Graceful lets "stop" wait for a trailing final result
	Graceful bool `json:"graceful,omitempty"`

	// Text is the question for "ask"
	Text string `json:"text,omitempty"`
}

// ServerMessage is a JSON frame sent to the listener. Only the fields relevant
// to Type are set.
type ServerMessage struct {
	Type         string            `json:"type"`
	ConnectionID string            `json:"connection_id,omitempty"`
	Recipe       string            `json:"recipe,omitempty"`
	State        *voice.State      `json:"state,omitempty"`
	Listening    *bool             `json:"listening,omitempty"`
	SessionID    uint64            `json:"session_id,omitempty"`
	Text         string            `json:"text,omitempty"`
	Final        *bool             `json:"final,omitempty"`
	Command      string            `json:"command,omitempty"`
	Step         *cooking.Position `json:"step,omitempty"`
	Question     string            `json:"question,omitempty"`
	Error        string            `json:"error,omitempty"`
	SampleRate   int               `json:"sample_rate,omitempty"`
	Bytes        int               `json:"bytes,omitempty"`
}

func stateMessage(ev voice.Event) ServerMessage {
	state := ev.State
	listening := state == voice.StateListening
	return ServerMessage{Type: msgState, State: &state, Listening: &listening, SessionID: ev.SessionID}
}

func transcriptMessage(ev voice.Event) ServerMessage {
	final := ev.Final
	return ServerMessage{Type: msgTranscript, Text: ev.Text, Final: &final, SessionID: ev.SessionID}
}

func errorMessage(msg string) ServerMessage {
	return ServerMessage{Type: msgError, Error: msg}
}
