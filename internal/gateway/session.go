package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/audio"
	"github.com/lexiqai/voice-command-gateway/internal/config"
	"github.com/lexiqai/voice-command-gateway/internal/cooking"
	"github.com/lexiqai/voice-command-gateway/internal/observability"
	"github.com/lexiqai/voice-command-gateway/internal/stt"
	"github.com/lexiqai/voice-command-gateway/internal/tts"
	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

const (
	writeWait      = 10 * time.Second
	outboundBuffer = 256
	eventBuffer    = 128
	speechFrame    = 8192
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// browsers and native apps connect from arbitrary origins
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 8192,
}

// Deps are the collaborators shared by every voice connection
type Deps struct {
	Config *config.Config

	// NewSource creates the recognizer for one connection
	NewSource func(logger zerolog.Logger) Source

	Answerer Answerer

	// Synthesizer speaks answers; nil sends answers as text only
	Synthesizer tts.Synthesizer

	Recipe *cooking.Recipe
	Logger zerolog.Logger
}

type outbound struct {
	messageType int
	data        []byte
}

// Session holds the state of a single voice connection
type Session struct {
	conn   *websocket.Conn
	config *config.Config
	id     string

	source     *permissionSource
	controller *voice.Controller
	cursor     *cooking.Cursor
	dispatcher *dispatcher
	vad        *audio.VADDetector
	preroll    *audio.RingBuffer

	// state mirrors the controller state from its event stream
	state atomic.Int32

	out  chan outbound
	done chan struct{}

	metrics *observability.ConnectionMetrics
	logger  zerolog.Logger
}

// HandleVoiceWS is the entry point for voice WebSocket connections
func HandleVoiceWS(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied to the client
			deps.Logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		session := newSession(conn, deps, r.RemoteAddr)
		session.run(r.Context())
	}
}

func newSession(conn *websocket.Conn, deps Deps, remoteAddr string) *Session {
	id := observability.NewCorrelationID()
	logger := deps.Logger.With().
		Str("connection_id", id).
		Str("remote_addr", remoteAddr).
		Logger()

	cfg := deps.Config
	source := newPermissionSource(deps.NewSource(logger))
	controller := voice.NewController(source, cfg.ControllerOptions(&logger, observability.VoiceMetrics{}))

	recipe := deps.Recipe
	if recipe == nil {
		recipe = cooking.SampleRecipe()
	}

	s := &Session{
		conn:       conn,
		config:     cfg,
		id:         id,
		source:     source,
		controller: controller,
		cursor:     cooking.NewCursor(recipe),
		vad: audio.NewVADDetector(&audio.VADConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			SilenceFrames:   cfg.VADSilenceFrames,
		}),
		preroll: audio.NewRingBuffer(cfg.AudioBufferSize),
		out:     make(chan outbound, outboundBuffer),
		done:    make(chan struct{}),
		metrics: observability.NewConnectionMetrics(id),
		logger:  logger,
	}

	s.dispatcher = &dispatcher{
		answerer:  deps.Answerer,
		speaker:   tts.NewSpeaker(deps.Synthesizer, controller, logger),
		qaContext: s.qaContext,
		send:      s.send,
		play:      s.playSpeech,
		resume:    s.resumeListening,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		queries:   make(chan string, queryQueueSize),
	}
	return s
}

func (s *Session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s.metrics.RecordConnectionStart()
	defer s.metrics.RecordConnectionEnd()
	s.logger.Info().Msg("Voice connection established")

	events, unsubscribe := s.controller.Subscribe(eventBuffer)
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		s.controller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.processOutgoing()
	}()
	go func() {
		defer wg.Done()
		s.processEvents(events)
	}()
	go func() {
		defer wg.Done()
		s.dispatcher.run(ctx)
	}()

	pos := s.cursor.Current()
	s.send(ServerMessage{Type: msgReady, ConnectionID: s.id, Recipe: s.cursor.Recipe().Title, Step: &pos})

	s.processIncoming()

	close(s.done)
	cancel()
	wg.Wait()
	s.logger.Info().Msg("Voice connection closed")
}

// processIncoming reads frames until the connection closes
func (s *Session) processIncoming() {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.handleAudio(data)
		case websocket.TextMessage:
			s.handleControl(data)
		}
	}
}

// handleAudio forwards microphone audio to the recognizer. Audio arriving while
// a session is opening is held in the pre-roll buffer and sent first.
func (s *Session) handleAudio(pcm []byte) {
	s.metrics.RecordAudioBytes("in", int64(len(pcm)))

	act := s.vad.Process(pcm)
	s.metrics.RecordInputLevel(act.Level)
	if act.SpeechStarted {
		s.logger.Debug().Float64("level", act.Level).Msg("Speech started")
	} else if act.SpeechEnded {
		s.logger.Debug().Msg("Speech ended")
	}

	s.controller.Tick()

	if s.preroll.Available() > 0 && s.currentState() == voice.StateListening {
		pcm = append(s.preroll.Drain(), pcm...)
	}

	err := s.source.Write(pcm)
	switch {
	case err == nil:
	case errors.Is(err, stt.ErrNotActive):
		switch s.currentState() {
		case voice.StateStarting, voice.StateStoppingForRestart:
			if dropped := s.preroll.Write(pcm); dropped > 0 {
				s.logger.Debug().Int("dropped", dropped).Msg("Pre-roll buffer full")
			}
		}
	default:
		s.logger.Warn().Err(err).Msg("Error sending audio to recognizer")
		s.metrics.RecordError("stt_send_error", "recognizer")
	}
}

func (s *Session) handleControl(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.send(errorMessage("invalid control message"))
		return
	}

	var err error
	switch msg.Type {
	case msgStart:
		perm := voice.PermissionGranted
		if msg.Permission != "" {
			if perm, err = voice.ParsePermission(msg.Permission); err != nil {
				s.send(errorMessage(err.Error()))
				return
			}
		}
		s.source.setDevicePermission(perm)
		err = s.controller.Start()
	case msgStop:
		err = s.controller.Stop(voice.StopManual, !msg.Graceful)
	case msgPause:
		err = s.controller.Pause()
	case msgResume:
		err = s.controller.ResumeAfterUserPause()
	case msgTTSStarted:
		err = s.controller.SetTTSActive(true)
	case msgTTSFinished:
		s.resumeListening()
	case msgAsk:
		if !s.dispatcher.submit(msg.Text) {
			s.send(ServerMessage{Type: msgAnswerError, Question: msg.Text, Error: "question was not accepted"})
		}
	default:
		s.send(errorMessage("unknown message type: " + msg.Type))
		return
	}

	if err != nil {
		s.logger.Debug().Err(err).Str("type", msg.Type).Msg("Control message not applied")
	}
}

// processEvents turns controller events into server messages
func (s *Session) processEvents(events <-chan voice.Event) {
	for ev := range events {
		switch ev.Kind {
		case voice.EventState:
			s.state.Store(int32(ev.State))
			switch ev.State {
			case voice.StateStarting, voice.StateListening, voice.StateStoppingForRestart:
			default:
				s.preroll.Clear()
			}
			s.send(stateMessage(ev))

		case voice.EventTranscript:
			s.logger.Debug().Str("text", ev.Text).Bool("final", ev.Final).Msg("Transcript")
			s.send(transcriptMessage(ev))

		case voice.EventCommand:
			s.controller.Slots().ClearDetectedCommand()
			pos := s.cursor.Apply(ev.Command)
			s.logger.Info().
				Str("command", ev.Command.String()).
				Int("step", pos.Index+1).
				Bool("moved", pos.Moved).
				Msg("Voice command")
			s.send(ServerMessage{Type: msgCommand, Command: ev.Command.String(), Step: &pos, SessionID: ev.SessionID})

		case voice.EventQuery:
			s.controller.Slots().ClearDetectedQuery()
			s.send(ServerMessage{Type: msgQuery, Text: ev.Text, SessionID: ev.SessionID})
			s.dispatcher.submit(ev.Text)

		case voice.EventError:
			s.send(errorMessage(ev.Text))
		}
	}
}

// processOutgoing is the only writer on the connection
func (s *Session) processOutgoing() {
	for {
		select {
		case msg := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				s.logger.Warn().Err(err).Msg("WebSocket write error")
				s.metrics.RecordError("ws_send_error", "gateway")
				// unblocks processIncoming
				s.conn.Close()
				return
			}
			if msg.messageType == websocket.BinaryMessage {
				s.metrics.RecordAudioBytes("out", int64(len(msg.data)))
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) enqueue(msg outbound) bool {
	select {
	case s.out <- msg:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) send(msg ServerMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to encode message")
		return false
	}
	return s.enqueue(outbound{messageType: websocket.TextMessage, data: data})
}

// playSpeech announces synthesized audio and streams it as binary frames
func (s *Session) playSpeech(chunk *tts.AudioChunk) error {
	if !s.send(ServerMessage{Type: msgSpeech, SampleRate: chunk.SampleRate, Bytes: len(chunk.Data)}) {
		return errConnectionClosed
	}
	for start := 0; start < len(chunk.Data); start += speechFrame {
		end := start + speechFrame
		if end > len(chunk.Data) {
			end = len(chunk.Data)
		}
		if !s.enqueue(outbound{messageType: websocket.BinaryMessage, data: chunk.Data[start:end]}) {
			return errConnectionClosed
		}
	}
	return nil
}

// resumeListening opens the speech gate and starts listening again
func (s *Session) resumeListening() {
	if err := s.controller.SetTTSActive(false); err != nil {
		return
	}
	s.controller.Start()
}

func (s *Session) qaContext() string {
	if s.config.AnswerContext != "" {
		return s.config.AnswerContext
	}
	return s.cursor.Context()
}

func (s *Session) currentState() voice.State {
	return voice.State(s.state.Load())
}

var errConnectionClosed = errors.New("connection closed")
