package voice

import (
	"time"

	"github.com/lexiqai/voice-command-gateway/internal/utterance"
)

// DefaultCommandDebounce is the minimum time between two acceptances of the same command
const DefaultCommandDebounce = 750 * time.Millisecond

// Debouncer suppresses an identical command repeated within its window.
// It is not safe for concurrent use; the Controller owns it.
type Debouncer struct {
	window time.Duration
	last   utterance.CommandKind
	lastAt time.Time
	has    bool
}

// NewDebouncer creates a debouncer with the given window
func NewDebouncer(window time.Duration) *Debouncer {
	if window < 0 {
		window = 0
	}
	return &Debouncer{window: window}
}

// Accept records kind as accepted at now unless it repeats the last accepted
// command within the window, in which case it returns false.
func (d *Debouncer) Accept(kind utterance.CommandKind, now time.Time) bool {
	if d.has && d.last == kind && now.Sub(d.lastAt) < d.window {
		return false
	}
	d.last = kind
	d.lastAt = now
	d.has = true
	return true
}

// Last returns the last accepted command and when it was accepted
func (d *Debouncer) Last() (utterance.CommandKind, time.Time, bool) {
	return d.last, d.lastAt, d.has
}

// Reset forgets the last accepted command
func (d *Debouncer) Reset() {
	d.last = 0
	d.lastAt = time.Time{}
	d.has = false
}
