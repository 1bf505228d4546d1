package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lexiqai/voice-command-gateway/internal/utterance"
	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

var (
	// Connection metrics
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_gateway_active_connections",
		Help: "Number of open voice connections",
	})

	totalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_connections_total",
		Help: "Total number of voice connections accepted",
	})

	connectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_gateway_connection_duration_seconds",
		Help:    "Duration of voice connections in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// Listening session metrics
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_sessions_started_total",
		Help: "Total number of recognition sessions started",
	})

	sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_gateway_session_duration_seconds",
		Help:    "Duration of recognition sessions in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"reason"})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_commands_total",
		Help: "Total number of navigation commands emitted",
	}, []string{"kind"})

	commandsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_commands_suppressed_total",
		Help: "Total number of detected commands that were not emitted",
	}, []string{"reason"}) // reason: "debounce" or "suppressed"

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_queries_total",
		Help: "Total number of queries emitted",
	}, []string{"trigger"}) // trigger: "final" or "inactivity"

	restartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_restarts_total",
		Help: "Total number of automatic listening restarts",
	}, []string{"reason"})

	staleEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_gateway_stale_events_total",
		Help: "Transcript events dropped because their session was no longer current",
	})

	recognitionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_recognition_errors_total",
		Help: "Recognition errors reported by the transcript source",
	}, []string{"swallowed"})

	startFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_start_failures_total",
		Help: "Failures to start listening",
	}, []string{"type"}) // type: "permission" or "session_start"

	// Answer service metrics
	answerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_answer_requests_total",
		Help: "Total number of answer service requests",
	}, []string{"status"})

	answerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_gateway_answer_latency_seconds",
		Help:    "Answer service latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 20.0},
	})

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_tts_requests_total",
		Help: "Total number of TTS requests",
	}, []string{"status"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_gateway_tts_latency_seconds",
		Help:    "TTS processing latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	inputLevel = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_gateway_input_level_rms",
		Help:    "RMS level of inbound audio frames",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})
)

// ConnectionMetrics tracks metrics for a single voice connection
type ConnectionMetrics struct {
	connectionID string
	startTime    time.Time
}

// NewConnectionMetrics creates a new metrics tracker for a connection
func NewConnectionMetrics(connectionID string) *ConnectionMetrics {
	return &ConnectionMetrics{
		connectionID: connectionID,
		startTime:    time.Now(),
	}
}

// RecordConnectionStart records the start of a connection
func (m *ConnectionMetrics) RecordConnectionStart() {
	activeConnections.Inc()
	totalConnections.Inc()
}

// RecordConnectionEnd records the end of a connection
func (m *ConnectionMetrics) RecordConnectionEnd() {
	activeConnections.Dec()
	connectionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordError records an error
func (m *ConnectionMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *ConnectionMetrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordInputLevel records the RMS level of an inbound audio frame
func (m *ConnectionMetrics) RecordInputLevel(rms float64) {
	inputLevel.Observe(rms)
}

// RecordAnswer records one answer service round trip
func RecordAnswer(status string, latency time.Duration) {
	answerRequests.WithLabelValues(status).Inc()
	answerLatency.Observe(latency.Seconds())
}

// RecordTTS records one synthesis request
func RecordTTS(success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	ttsRequests.WithLabelValues(status).Inc()
	ttsLatency.Observe(latency.Seconds())
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// VoiceMetrics implements voice.Observer on the Prometheus collectors
type VoiceMetrics struct{}

var _ voice.Observer = VoiceMetrics{}

func (VoiceMetrics) SessionStarted(uint64) {
	sessionsStarted.Inc()
}

func (VoiceMetrics) SessionEnded(_ uint64, reason voice.StopReason, d time.Duration) {
	sessionDuration.WithLabelValues(string(reason)).Observe(d.Seconds())
}

func (VoiceMetrics) CommandEmitted(kind utterance.CommandKind) {
	commandsTotal.WithLabelValues(kind.String()).Inc()
}

func (VoiceMetrics) CommandSuppressed(reason string) {
	commandsSuppressed.WithLabelValues(reason).Inc()
}

func (VoiceMetrics) QueryEmitted(trigger string) {
	queriesTotal.WithLabelValues(trigger).Inc()
}

func (VoiceMetrics) Restarted(reason voice.StopReason) {
	restartsTotal.WithLabelValues(string(reason)).Inc()
}

func (VoiceMetrics) StaleEventDropped() {
	staleEvents.Inc()
}

func (VoiceMetrics) RecognitionError(swallowed bool) {
	label := "false"
	if swallowed {
		label = "true"
	}
	recognitionErrors.WithLabelValues(label).Inc()
}

func (VoiceMetrics) StartFailed(kind string) {
	startFailures.WithLabelValues(kind).Inc()
}
