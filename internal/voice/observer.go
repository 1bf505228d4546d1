package voice

import (
	"time"

	"github.com/lexiqai/voice-command-gateway/internal/utterance"
)

// Observer receives controller lifecycle notifications, typically for metrics.
// Calls are made from the controller goroutine and must not block.
type Observer interface {
	SessionStarted(id uint64)
	SessionEnded(id uint64, reason StopReason, duration time.Duration)
	CommandEmitted(kind utterance.CommandKind)
	CommandSuppressed(reason string)
	QueryEmitted(trigger string)
	Restarted(reason StopReason)
	StaleEventDropped()
	RecognitionError(swallowed bool)
	StartFailed(kind string)
}

// NopObserver ignores every notification
type NopObserver struct{}

func (NopObserver) SessionStarted(uint64) {}
func (NopObserver) SessionEnded(uint64, StopReason, time.Duration) {}
func (NopObserver) CommandEmitted(utterance.CommandKind) {}
func (NopObserver) CommandSuppressed(string) {}
func (NopObserver) QueryEmitted(string) {}
func (NopObserver) Restarted(StopReason) {}
func (NopObserver) StaleEventDropped() {}
func (NopObserver) RecognitionError(bool) {}
func (NopObserver) StartFailed(string) {}
