package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

// Config holds all configuration for the voice command gateway
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service, used only to log the WebSocket endpoint.
	// If unset, logs ws://localhost:PORT/streams/voice.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`

	// Query answering service. Q&A is disabled when the URL is empty.
	AnswerServiceURL     string `envconfig:"ANSWER_SERVICE_URL" default:""`
	AnswerTimeoutSeconds int    `envconfig:"ANSWER_TIMEOUT_SECONDS" default:"20"`
	AnswerContext        string `envconfig:"ANSWER_CONTEXT" default:""` // Overrides the recipe title as Q&A context

	// Listening controller timings
	InactivityTimeout       time.Duration `envconfig:"INACTIVITY_TIMEOUT" default:"5s"`
	CommandDebounce         time.Duration `envconfig:"COMMAND_DEBOUNCE" default:"750ms"`
	RecognitionRestartDelay time.Duration `envconfig:"RECOGNITION_RESTART_DELAY" default:"300ms"`

	// Deepgram STT. Without a key the recognizer reports permission restricted.
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	AudioSampleRate  int    `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	AudioEncoding    string `envconfig:"AUDIO_ENCODING" default:"linear16"`

	// Cartesia TTS. Without a key answers are sent as text only.
	CartesiaAPIKey      string `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaVoiceID     string `envconfig:"CARTESIA_VOICE_ID" default:"sonic-english"`
	CartesiaModelID     string `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`
	TTSOutputSampleRate int    `envconfig:"TTS_OUTPUT_SAMPLE_RATE" default:"16000"`

	// Audio processing configuration
	AudioBufferSize    int     `envconfig:"AUDIO_BUFFER_SIZE" default:"8192"`     // Ring buffer size in bytes
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"10"`      // Frames of silence to mark speech end

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`

	// Recipe JSON file; the built-in sample recipe is used when empty
	RecipeFile string `envconfig:"RECIPE_FILE" default:""`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that envconfig cannot express
func (c *Config) Validate() error {
	if c.InactivityTimeout <= 0 {
		return fmt.Errorf("INACTIVITY_TIMEOUT must be positive, got %s", c.InactivityTimeout)
	}
	if c.CommandDebounce <= 0 {
		return fmt.Errorf("COMMAND_DEBOUNCE must be positive, got %s", c.CommandDebounce)
	}
	if c.RecognitionRestartDelay < 0 {
		return fmt.Errorf("RECOGNITION_RESTART_DELAY must not be negative, got %s", c.RecognitionRestartDelay)
	}
	if c.AnswerTimeoutSeconds <= 0 {
		return fmt.Errorf("ANSWER_TIMEOUT_SECONDS must be positive, got %d", c.AnswerTimeoutSeconds)
	}
	if c.AudioSampleRate <= 0 || c.TTSOutputSampleRate <= 0 {
		return fmt.Errorf("sample rates must be positive")
	}
	if c.AnswerServiceURL != "" {
		u, err := url.Parse(c.AnswerServiceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("ANSWER_SERVICE_URL must be an absolute http(s) URL, got %q", c.AnswerServiceURL)
		}
	}
	return nil
}

// AnswerTimeout returns the answer request timeout
func (c *Config) AnswerTimeout() time.Duration {
	return time.Duration(c.AnswerTimeoutSeconds) * time.Second
}

// ControllerOptions maps the timing configuration onto voice controller options
func (c *Config) ControllerOptions(logger *zerolog.Logger, observer voice.Observer) voice.Options {
	opts := voice.DefaultOptions()
	opts.InactivityTimeout = c.InactivityTimeout
	opts.CommandDebounce = c.CommandDebounce
	opts.RestartDelay = c.RecognitionRestartDelay
	opts.Logger = logger
	opts.Observer = observer
	return opts
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
