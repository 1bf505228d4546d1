package stt

import (
	"errors"
	"strings"

	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

// TranscriptionResult is one recognizer hypothesis before it is mapped to a voice event
type TranscriptionResult struct {
	// Text is the transcribed text of this segment
	Text string

	// IsFinal marks a segment the recognizer will not revise
	IsFinal bool

	// SpeechFinal marks the end of an utterance as detected by the recognizer's endpointing
	SpeechFinal bool

	Confidence float64
	StartTime  float64
	Duration   float64
}

// ErrNotActive is returned when audio is written with no recognition session running
var ErrNotActive = errors.New("transcript source is not active")

// AudioSink accepts raw PCM audio for the active recognition session
type AudioSink interface {
	Write(pcm []byte) error
}

// assembler joins finalized recognizer segments into utterance-level transcripts.
// Streaming recognizers finalize an utterance piecewise; the controller wants a
// growing partial and a single final per utterance.
type assembler struct {
	segments []string
}

// add folds a result into the utterance and returns the event to deliver, if any
func (a *assembler) add(r TranscriptionResult) (voice.TranscriptEvent, bool) {
	text := strings.TrimSpace(r.Text)
	if r.IsFinal && text != "" {
		a.segments = append(a.segments, text)
	}

	if r.SpeechFinal {
		return a.flush()
	}

	current := a.segments
	if !r.IsFinal && text != "" {
		current = append(current[:len(current):len(current)], text)
	}
	if len(current) == 0 {
		return voice.TranscriptEvent{}, false
	}
	return voice.Partial(strings.Join(current, " ")), true
}

// flush ends the current utterance. It returns a final only when text is pending.
func (a *assembler) flush() (voice.TranscriptEvent, bool) {
	if len(a.segments) == 0 {
		return voice.TranscriptEvent{}, false
	}
	text := strings.Join(a.segments, " ")
	a.segments = nil
	return voice.Final(text), true
}

func (a *assembler) reset() {
	a.segments = nil
}
