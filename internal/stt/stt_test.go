package stt

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/config"
	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

func TestAssembler_GrowsPartialsAndFinalizesOnSpeechFinal(t *testing.T) {
	var a assembler

	steps := []struct {
		result   TranscriptionResult
		kind     voice.TranscriptKind
		text     string
		expected bool
	}{
		{TranscriptionResult{Text: "how many"}, voice.TranscriptPartial, "how many", true},
		{TranscriptionResult{Text: "how many teaspoons", IsFinal: true}, voice.TranscriptPartial, "how many teaspoons", true},
		{TranscriptionResult{Text: "in a"}, voice.TranscriptPartial, "how many teaspoons in a", true},
		{TranscriptionResult{Text: "in a tablespoon?", IsFinal: true, SpeechFinal: true}, voice.TranscriptFinal, "how many teaspoons in a tablespoon?", true},
		{TranscriptionResult{Text: ""}, 0, "", false},
	}

	for i, step := range steps {
		ev, ok := a.add(step.result)
		if ok != step.expected {
			t.Fatalf("step %d: expected ok=%v, got %v", i, step.expected, ok)
		}
		if !ok {
			continue
		}
		if ev.Kind != step.kind || ev.Text != step.text {
			t.Errorf("step %d: expected %v %q, got %v %q", i, step.kind, step.text, ev.Kind, ev.Text)
		}
	}
}

func TestAssembler_InterimDoesNotStick(t *testing.T) {
	var a assembler

	a.add(TranscriptionResult{Text: "next", IsFinal: true})
	a.add(TranscriptionResult{Text: "step please"})
	ev, ok := a.add(TranscriptionResult{Text: "stop"})
	if !ok || ev.Text != "next stop" {
		t.Errorf("Expected interim replaced, got %q", ev.Text)
	}
}

func TestAssembler_Flush(t *testing.T) {
	var a assembler

	if _, ok := a.flush(); ok {
		t.Error("Expected nothing to flush")
	}

	a.add(TranscriptionResult{Text: "go back", IsFinal: true})
	ev, ok := a.flush()
	if !ok || ev.Kind != voice.TranscriptFinal || ev.Text != "go back" {
		t.Errorf("Expected final go back, got %v %q", ev.Kind, ev.Text)
	}
	if _, ok := a.flush(); ok {
		t.Error("Expected segments cleared after flush")
	}
}

func TestDeepgramSource_PermissionRequiresAPIKey(t *testing.T) {
	cfg := &config.Config{CircuitBreakerMaxFailures: 5, CircuitBreakerResetTimeout: 30}
	src := NewDeepgramSource(cfg, zerolog.Nop())

	if got := src.RequestPermission(context.Background()); got != voice.PermissionRestricted {
		t.Errorf("Expected restricted without key, got %v", got)
	}

	cfg.DeepgramAPIKey = "test-key"
	if got := src.RequestPermission(context.Background()); got != voice.PermissionGranted {
		t.Errorf("Expected granted with key, got %v", got)
	}
}

func TestDeepgramSource_InactiveWriteAndStop(t *testing.T) {
	cfg := &config.Config{CircuitBreakerMaxFailures: 5, CircuitBreakerResetTimeout: 30}
	src := NewDeepgramSource(cfg, zerolog.Nop())

	if err := src.Write([]byte{0, 1}); !errors.Is(err, ErrNotActive) {
		t.Errorf("Expected ErrNotActive, got %v", err)
	}
	if err := src.Stop(true); err != nil {
		t.Errorf("Expected stop of idle source to succeed, got %v", err)
	}
	if src.IsActive() {
		t.Error("Expected inactive source")
	}
}

func TestScriptedSource_Lifecycle(t *testing.T) {
	src := NewScriptedSource()
	var got []voice.TranscriptEvent
	deliver := func(ev voice.TranscriptEvent) { got = append(got, ev) }

	if src.Emit(voice.Partial("ignored")) {
		t.Error("Expected emit before start to report false")
	}

	if err := src.Start(context.Background(), deliver); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	src.Emit(voice.Partial("how long"))
	src.Emit(voice.Partial("how long to rest"))
	if err := src.Stop(false); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(got))
	}
	if got[2].Kind != voice.TranscriptFinal || got[2].Text != "how long to rest" {
		t.Errorf("Expected trailing final, got %v %q", got[2].Kind, got[2].Text)
	}
	if src.Active() {
		t.Error("Expected inactive after stop")
	}
	if starts, stops := src.Counts(); starts != 1 || stops != 1 {
		t.Errorf("Expected 1/1 starts/stops, got %d/%d", starts, stops)
	}
}

func TestScriptedSource_ForcedStopDropsTail(t *testing.T) {
	src := NewScriptedSource()
	var got []voice.TranscriptEvent
	src.Start(context.Background(), func(ev voice.TranscriptEvent) { got = append(got, ev) })

	src.Emit(voice.Partial("next"))
	src.Stop(true)

	if len(got) != 1 {
		t.Errorf("Expected no trailing final on forced stop, got %d events", len(got))
	}
}

func TestScriptedSource_StartError(t *testing.T) {
	src := NewScriptedSource()
	src.SetStartError(errors.New("mic busy"))

	if err := src.Start(context.Background(), func(voice.TranscriptEvent) {}); err == nil {
		t.Fatal("Expected start error")
	}
	if src.Active() {
		t.Error("Expected no session after failed start")
	}
}

func TestScriptedSource_Write(t *testing.T) {
	src := NewScriptedSource()
	if err := src.Write([]byte{0, 1}); !errors.Is(err, ErrNotActive) {
		t.Errorf("Expected ErrNotActive before start, got %v", err)
	}

	src.Start(context.Background(), func(voice.TranscriptEvent) {})
	src.Write([]byte{0, 1, 2, 3})
	if got := src.AudioBytes(); got != 4 {
		t.Errorf("Expected 4 audio bytes, got %d", got)
	}
}
