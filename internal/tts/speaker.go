package tts

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Speaker speaks answers and holds the speech output gate while audio is
// produced. The gate stays closed after successful playback is handed off;
// the listener reopens it when playback ends.
type Speaker struct {
	synth  Synthesizer
	gate   Gate
	logger zerolog.Logger

	mu         sync.Mutex
	lastSpoken string
}

// NewSpeaker creates a speaker. A nil synth makes Speak a no-op.
func NewSpeaker(synth Synthesizer, gate Gate, logger zerolog.Logger) *Speaker {
	return &Speaker{
		synth:  synth,
		gate:   gate,
		logger: logger.With().Str("component", "speaker").Logger(),
	}
}

// Enabled reports whether answers can be spoken
func (s *Speaker) Enabled() bool {
	return s.synth != nil
}

// Speak synthesizes text and hands the audio to play. It reports false
// without error when text is blank or repeats the last spoken answer.
func (s *Speaker) Speak(ctx context.Context, text string, play PlayFunc) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" || !s.Enabled() {
		return false, nil
	}

	s.mu.Lock()
	repeated := text == s.lastSpoken
	s.mu.Unlock()
	if repeated {
		s.logger.Debug().Msg("Answer already spoken, skipping")
		return false, nil
	}

	if err := s.gate.SetTTSActive(true); err != nil {
		return false, err
	}

	chunk, err := s.synth.Synthesize(ctx, text)
	if err == nil {
		err = play(chunk)
	}
	if err != nil {
		if gateErr := s.gate.SetTTSActive(false); gateErr != nil {
			s.logger.Debug().Err(gateErr).Msg("Failed to release speech gate")
		}
		return false, err
	}

	s.mu.Lock()
	s.lastSpoken = text
	s.mu.Unlock()

	s.logger.Info().Int("bytes", len(chunk.Data)).Msg("Speaking answer")
	return true, nil
}
