package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/audio"
	"github.com/lexiqai/voice-command-gateway/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		CartesiaAPIKey:             "test-key",
		CartesiaVoiceID:            "voice-1",
		CartesiaModelID:            "sonic",
		TTSOutputSampleRate:        16000,
		RetryMaxAttempts:           3,
		RetryInitialBackoff:        1,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
	}
}

func newTestCartesia(url string) *CartesiaClient {
	c := NewCartesiaClient(testConfig(), zerolog.Nop())
	c.apiURL = url
	return c
}

func TestCartesiaClient_Synthesize(t *testing.T) {
	var got CartesiaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("Expected API key header, got %q", r.Header.Get("X-API-Key"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write(audio.SamplesToBytes(make([]int16, 2400))) // 100ms at 24kHz
	}))
	defer server.Close()

	chunk, err := newTestCartesia(server.URL).Synthesize(context.Background(), "About 15 ml.")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if chunk.SampleRate != 16000 {
		t.Errorf("Expected 16kHz output, got %d", chunk.SampleRate)
	}
	if len(chunk.Data) != 1600*2 {
		t.Errorf("Expected resampled audio of 1600 samples, got %d", len(chunk.Data)/2)
	}
	if got.Transcript != "About 15 ml." || got.Voice.ID != "voice-1" {
		t.Errorf("Unexpected request %+v", got)
	}
	if got.OutputFormat.Encoding != "pcm_s16le" || got.OutputFormat.SampleRate != cartesiaSampleRate {
		t.Errorf("Unexpected output format %+v", got.OutputFormat)
	}
}

func TestCartesiaClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(audio.SamplesToBytes(make([]int16, 240)))
	}))
	defer server.Close()

	if _, err := newTestCartesia(server.URL).Synthesize(context.Background(), "hello"); err != nil {
		t.Fatalf("Expected success after retry, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 calls, got %d", got)
	}
}

func TestCartesiaClient_ClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	if _, err := newTestCartesia(server.URL).Synthesize(context.Background(), "hello"); err == nil {
		t.Error("Expected error for 401")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected no retry on 401, got %d calls", got)
	}
}

func TestCartesiaClient_NotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.CartesiaAPIKey = ""
	c := NewCartesiaClient(cfg, zerolog.Nop())

	if _, err := c.Synthesize(context.Background(), "hello"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
	if ok, err := c.HealthCheck(context.Background()); ok || err == nil {
		t.Error("Expected failing health check without API key")
	}
}

type fakeSynth struct {
	calls int
	err   error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (*AudioChunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &AudioChunk{Data: []byte(text), SampleRate: 16000}, nil
}

type fakeGate struct {
	changes []bool
}

func (g *fakeGate) SetTTSActive(active bool) error {
	g.changes = append(g.changes, active)
	return nil
}

func TestSpeaker_Speak(t *testing.T) {
	synth := &fakeSynth{}
	gate := &fakeGate{}
	speaker := NewSpeaker(synth, gate, zerolog.Nop())

	var played []string
	play := func(chunk *AudioChunk) error {
		played = append(played, string(chunk.Data))
		return nil
	}

	spoken, err := speaker.Speak(context.Background(), " Rest for 3 minutes. ", play)
	if err != nil || !spoken {
		t.Fatalf("Expected answer to be spoken, got %v %v", spoken, err)
	}
	if len(played) != 1 || played[0] != "Rest for 3 minutes." {
		t.Errorf("Unexpected playback %v", played)
	}
	if len(gate.changes) != 1 || !gate.changes[0] {
		t.Errorf("Expected gate closed once, got %v", gate.changes)
	}
}

func TestSpeaker_SkipsRepeatedAnswer(t *testing.T) {
	synth := &fakeSynth{}
	speaker := NewSpeaker(synth, &fakeGate{}, zerolog.Nop())
	play := func(*AudioChunk) error { return nil }

	speaker.Speak(context.Background(), "Yes.", play)
	spoken, _ := speaker.Speak(context.Background(), "Yes.", play)
	if spoken {
		t.Error("Expected repeated answer not to be spoken")
	}
	if synth.calls != 1 {
		t.Errorf("Expected 1 synthesis, got %d", synth.calls)
	}

	if spoken, _ := speaker.Speak(context.Background(), "No.", play); !spoken {
		t.Error("Expected a different answer to be spoken")
	}
}

func TestSpeaker_ReleasesGateOnFailure(t *testing.T) {
	gate := &fakeGate{}
	speaker := NewSpeaker(&fakeSynth{err: errors.New("cartesia down")}, gate, zerolog.Nop())

	spoken, err := speaker.Speak(context.Background(), "hello", func(*AudioChunk) error { return nil })
	if spoken || err == nil {
		t.Fatalf("Expected failure, got %v %v", spoken, err)
	}
	if len(gate.changes) != 2 || gate.changes[1] {
		t.Errorf("Expected gate closed then reopened, got %v", gate.changes)
	}

	// a failed answer may be retried
	speaker.synth = &fakeSynth{}
	if spoken, _ := speaker.Speak(context.Background(), "hello", func(*AudioChunk) error { return nil }); !spoken {
		t.Error("Expected failed answer to be spoken on retry")
	}
}

func TestSpeaker_Disabled(t *testing.T) {
	gate := &fakeGate{}
	speaker := NewSpeaker(nil, gate, zerolog.Nop())

	if speaker.Enabled() {
		t.Error("Expected disabled speaker")
	}
	if spoken, err := speaker.Speak(context.Background(), "hello", nil); spoken || err != nil {
		t.Errorf("Expected no-op, got %v %v", spoken, err)
	}
	if len(gate.changes) != 0 {
		t.Error("Expected gate untouched")
	}
}
