package voice

import (
	"testing"
	"time"

	"github.com/lexiqai/voice-command-gateway/internal/utterance"
)

func TestDebouncer_Accept(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		first    utterance.CommandKind
		second   utterance.CommandKind
		gap      time.Duration
		expected bool
	}{
		{"same kind inside window", utterance.CommandNext, utterance.CommandNext, 500 * time.Millisecond, false},
		{"same kind at window edge", utterance.CommandNext, utterance.CommandNext, 750 * time.Millisecond, true},
		{"same kind after window", utterance.CommandRepeat, utterance.CommandRepeat, time.Second, true},
		{"different kind inside window", utterance.CommandNext, utterance.CommandPrevious, 10 * time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(750 * time.Millisecond)
			if !d.Accept(tt.first, base) {
				t.Fatal("Expected first command accepted")
			}
			if got := d.Accept(tt.second, base.Add(tt.gap)); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDebouncer_SuppressedDoesNotExtendWindow(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDebouncer(750 * time.Millisecond)

	d.Accept(utterance.CommandNext, base)
	if d.Accept(utterance.CommandNext, base.Add(500*time.Millisecond)) {
		t.Fatal("Expected suppression inside window")
	}
	// measured from the accepted command, not the suppressed one
	if !d.Accept(utterance.CommandNext, base.Add(800*time.Millisecond)) {
		t.Error("Expected acceptance after window from first command")
	}
}

func TestDebouncer_Reset(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDebouncer(750 * time.Millisecond)

	d.Accept(utterance.CommandRepeat, base)
	d.Reset()
	if _, _, ok := d.Last(); ok {
		t.Error("Expected no last command after reset")
	}
	if !d.Accept(utterance.CommandRepeat, base.Add(10*time.Millisecond)) {
		t.Error("Expected acceptance after reset")
	}
}
