package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/audio"
	"github.com/lexiqai/voice-command-gateway/internal/config"
	"github.com/lexiqai/voice-command-gateway/internal/observability"
	"github.com/lexiqai/voice-command-gateway/internal/resilience"
)

const (
	defaultCartesiaURL  = "https://api.cartesia.ai/tts/bytes"
	cartesiaVersion     = "2024-06-10"
	cartesiaSampleRate  = 24000
	maxAudioBytes       = 32 << 20
	cartesiaServiceName = "cartesia"
)

// CartesiaClient implements Synthesizer using Cartesia's bytes endpoint
type CartesiaClient struct {
	apiKey           string
	apiURL           string
	voiceID          string
	modelID          string
	outputSampleRate int
	httpClient       *http.Client
	retryConfig      *resilience.RetryConfig
	circuitBreaker   *resilience.CircuitBreaker
	logger           zerolog.Logger
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// CartesiaRequest is the request payload for the Cartesia TTS API
type CartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        cartesiaVoice        `json:"voice"`
	OutputFormat cartesiaOutputFormat `json:"output_format"`
	Language     string               `json:"language,omitempty"`
}

// NewCartesiaClient creates a new Cartesia TTS client
func NewCartesiaClient(cfg *config.Config, logger zerolog.Logger) *CartesiaClient {
	return &CartesiaClient{
		apiKey:           cfg.CartesiaAPIKey,
		apiURL:           defaultCartesiaURL,
		voiceID:          cfg.CartesiaVoiceID,
		modelID:          cfg.CartesiaModelID,
		outputSampleRate: cfg.TTSOutputSampleRate,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		circuitBreaker: resilience.NewCircuitBreaker(
			cartesiaServiceName,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		logger: logger.With().Str("component", cartesiaServiceName).Logger(),
	}
}

// Configured reports whether an API key is set
func (c *CartesiaClient) Configured() bool {
	return c.apiKey != ""
}

// HealthCheck reports configuration only; it makes no billable call
func (c *CartesiaClient) HealthCheck(ctx context.Context) (bool, error) {
	if !c.Configured() {
		return false, fmt.Errorf("CARTESIA_API_KEY not set")
	}
	return true, nil
}

// Synthesize converts text to PCM16LE audio at the configured output rate
func (c *CartesiaClient) Synthesize(ctx context.Context, text string) (*AudioChunk, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(CartesiaRequest{
		ModelID:    c.modelID,
		Transcript: text,
		Voice:      cartesiaVoice{Mode: "id", ID: c.voiceID},
		OutputFormat: cartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: cartesiaSampleRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	started := time.Now()
	var raw []byte
	err = c.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			var callErr error
			raw, callErr = c.fetch(ctx, body)
			return callErr
		}, c.retryConfig, resilience.IsRetryableNetworkError)
	})

	observability.UpdateCircuitBreakerState(cartesiaServiceName, int(c.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures(cartesiaServiceName)
		observability.RecordTTS(false, time.Since(started))
		return nil, err
	}

	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	pcm, err := audio.ResamplePCM(raw, cartesiaSampleRate, c.outputSampleRate)
	if err != nil {
		observability.RecordTTS(false, time.Since(started))
		return nil, fmt.Errorf("error converting audio format: %w", err)
	}

	observability.RecordTTS(true, time.Since(started))
	c.logger.Debug().
		Int("bytes", len(pcm)).
		Int("source_bytes", len(raw)).
		Dur("latency", time.Since(started)).
		Msg("Synthesized speech")

	return &AudioChunk{Data: pcm, SampleRate: c.outputSampleRate}, nil
}

func (c *CartesiaClient) fetch(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("cartesia API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.NewRetryableError(err)
		}
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading Cartesia audio response: %w", err)
	}
	if len(data) < 2 {
		return nil, fmt.Errorf("cartesia returned empty audio data")
	}
	return data, nil
}
