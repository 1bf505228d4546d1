package tts

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by a synthesizer without credentials
var ErrNotConfigured = errors.New("tts is not configured")

// AudioChunk is synthesized speech ready for playback
type AudioChunk struct {
	Data       []byte // PCM16LE mono
	SampleRate int
}

// Synthesizer converts text to audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*AudioChunk, error)
}

// Gate is the speech output gate of a listening controller
type Gate interface {
	SetTTSActive(active bool) error
}

// PlayFunc delivers synthesized audio to the listener
type PlayFunc func(chunk *AudioChunk) error
