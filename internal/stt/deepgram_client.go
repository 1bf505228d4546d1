package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/config"
	"github.com/lexiqai/voice-command-gateway/internal/observability"
	"github.com/lexiqai/voice-command-gateway/internal/resilience"
	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

// messageCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the events the source maps.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage      func(*msginterfaces.MessageResponse)
	onUtteranceEnd func()
	onClose        func()
	onError        func(*msginterfaces.ErrorResponse)
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.onMessage(message)
	return nil
}

func (m *messageCallbackHandler) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error {
	m.onUtteranceEnd()
	return nil
}

func (m *messageCallbackHandler) Close(*msginterfaces.CloseResponse) error {
	m.onClose()
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	m.onError(errorResponse)
	return nil
}

// DeepgramSource is a voice.TranscriptSource backed by Deepgram live streaming.
// Each Start opens a new WebSocket; failures are reported to the controller as
// recognition errors instead of being retried here.
type DeepgramSource struct {
	config         *config.Config
	logger         zerolog.Logger
	circuitBreaker *resilience.CircuitBreaker

	mu       sync.Mutex
	client   *listenClient.WSCallback
	cancel   context.CancelFunc
	deliver  voice.DeliverFunc
	text     assembler
	isActive bool
	gen      uint64
}

// NewDeepgramSource creates a Deepgram-backed transcript source
func NewDeepgramSource(cfg *config.Config, logger zerolog.Logger) *DeepgramSource {
	return &DeepgramSource{
		config: cfg,
		logger: logger.With().Str("component", "deepgram").Logger(),
		circuitBreaker: resilience.NewCircuitBreaker(
			"deepgram",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// RequestPermission reports restricted when no API key is configured
func (d *DeepgramSource) RequestPermission(ctx context.Context) voice.Permission {
	if d.config.DeepgramAPIKey == "" {
		return voice.PermissionRestricted
	}
	return voice.PermissionGranted
}

// Start opens a streaming recognition session
func (d *DeepgramSource) Start(ctx context.Context, deliver voice.DeliverFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return fmt.Errorf("deepgram source is already active")
	}

	d.gen++
	gen := d.gen

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.DeepgramModel,
		Language:       d.config.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       d.config.AudioEncoding,
		Channels:       1,
		SampleRate:     d.config.AudioSampleRate,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              func(msg *msginterfaces.MessageResponse) { d.handleMessage(gen, msg) },
		onUtteranceEnd:         func() { d.handleUtteranceEnd(gen) },
		onClose:                func() { d.handleClose(gen) },
		onError:                func(er *msginterfaces.ErrorResponse) { d.handleError(gen, er) },
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	var client *listenClient.WSCallback
	err := d.circuitBreaker.Call(func() error {
		c, err := listenClient.NewWSUsingCallback(sessionCtx, d.config.DeepgramAPIKey, nil, tOptions, callback)
		if err != nil {
			return fmt.Errorf("failed to create Deepgram client: %w", err)
		}
		if !c.Connect() {
			return errors.New("failed to connect to Deepgram")
		}
		client = c
		return nil
	})
	observability.UpdateCircuitBreakerState(d.circuitBreaker.Name(), int(d.circuitBreaker.GetState()))
	if err != nil {
		cancel()
		observability.IncrementCircuitBreakerFailures(d.circuitBreaker.Name())
		return err
	}

	d.client = client
	d.cancel = cancel
	d.deliver = deliver
	d.text.reset()
	d.isActive = true

	d.logger.Info().
		Str("model", d.config.DeepgramModel).
		Str("language", d.config.DeepgramLanguage).
		Int("sample_rate", d.config.AudioSampleRate).
		Msg("Deepgram streaming session started")
	return nil
}

// Write sends an audio chunk to the active session
func (d *DeepgramSource) Write(pcm []byte) error {
	d.mu.Lock()
	active := d.isActive
	client := d.client
	gen := d.gen
	d.mu.Unlock()

	if !active || client == nil {
		return ErrNotActive
	}

	err := d.circuitBreaker.Call(func() error {
		if _, err := client.Write(pcm); err != nil {
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState(d.circuitBreaker.Name(), int(d.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures(d.circuitBreaker.Name())
		d.fail(gen, err)
	}
	return err
}

// Stop ends the session. A graceful stop delivers the finalized text as a
// trailing final before closing; a forced stop discards it.
func (d *DeepgramSource) Stop(force bool) error {
	d.mu.Lock()
	if !d.isActive {
		d.mu.Unlock()
		return nil
	}

	if !force {
		ev, ok := d.text.flush()
		if !ok {
			ev = voice.Final("")
		}
		d.deliver(ev)
	}

	client, cancel := d.client, d.cancel
	d.isActive = false
	d.client = nil
	d.cancel = nil
	d.deliver = nil
	d.text.reset()
	// late callbacks from the closed socket carry the old generation
	d.gen++
	d.mu.Unlock()

	client.Finish()
	cancel()

	d.logger.Info().Bool("force", force).Msg("Deepgram streaming session stopped")
	return nil
}

// IsActive returns whether a session is currently open
func (d *DeepgramSource) IsActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isActive
}

// emit delivers ev if gen is still the live session
func (d *DeepgramSource) emit(gen uint64, ev voice.TranscriptEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || !d.isActive || d.deliver == nil {
		return false
	}
	d.deliver(ev)
	return true
}

func (d *DeepgramSource) handleMessage(gen uint64, msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]

		result := TranscriptionResult{
			Text:        alt.Transcript,
			IsFinal:     msg.IsFinal,
			SpeechFinal: msg.SpeechFinal,
			Confidence:  alt.Confidence,
			StartTime:   msg.Start,
			Duration:    msg.Duration,
		}

		d.mu.Lock()
		if gen != d.gen || !d.isActive || d.deliver == nil {
			d.mu.Unlock()
			return
		}
		ev, ok := d.text.add(result)
		if ok {
			d.deliver(ev)
		}
		d.mu.Unlock()

		if ok {
			d.logger.Debug().
				Str("kind", ev.Kind.String()).
				Str("text", ev.Text).
				Float64("confidence", result.Confidence).
				Msg("Deepgram transcription")
		}

	default:
		d.logger.Debug().Str("type", msg.Type).Msg("Deepgram: unhandled message type")
	}
}

func (d *DeepgramSource) handleUtteranceEnd(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || !d.isActive || d.deliver == nil {
		return
	}
	if ev, ok := d.text.flush(); ok {
		d.deliver(ev)
	}
}

func (d *DeepgramSource) handleClose(gen uint64) {
	d.fail(gen, errors.New("deepgram connection closed"))
}

func (d *DeepgramSource) handleError(gen uint64, errorResponse *msginterfaces.ErrorResponse) {
	if errorResponse == nil {
		return
	}
	d.circuitBreaker.RecordResult(false)
	observability.UpdateCircuitBreakerState(d.circuitBreaker.Name(), int(d.circuitBreaker.GetState()))
	observability.IncrementCircuitBreakerFailures(d.circuitBreaker.Name())

	d.fail(gen, fmt.Errorf("deepgram error: %+v", *errorResponse))
}

// fail reports a recognition error for the live session. The controller decides
// whether to restart.
func (d *DeepgramSource) fail(gen uint64, err error) {
	if d.emit(gen, voice.Failure(err)) {
		d.logger.Warn().Err(err).Msg("Deepgram session failed")
	}
}
