package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/answer"
	"github.com/lexiqai/voice-command-gateway/internal/config"
	"github.com/lexiqai/voice-command-gateway/internal/cooking"
	"github.com/lexiqai/voice-command-gateway/internal/gateway"
	"github.com/lexiqai/voice-command-gateway/internal/observability"
	"github.com/lexiqai/voice-command-gateway/internal/stt"
	"github.com/lexiqai/voice-command-gateway/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()
	version := config.GetEnv("SERVICE_VERSION", "dev")

	logger.Info().
		Str("port", cfg.Port).
		Str("version", version).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Bool("qa_enabled", cfg.AnswerServiceURL != "").
		Bool("tts_enabled", cfg.CartesiaAPIKey != "").
		Msg("Voice Command Gateway starting")

	recipe, err := cooking.LoadRecipe(cfg.RecipeFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.RecipeFile).Msg("Failed to load recipe")
	}

	answers, err := answer.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create answer service client")
	}
	if !answers.Enabled() {
		logger.Warn().Msg("ANSWER_SERVICE_URL not set, queries will be answered with an error")
	}

	cartesia := tts.NewCartesiaClient(cfg, logger)

	deps := gateway.Deps{
		Config: cfg,
		NewSource: func(l zerolog.Logger) gateway.Source {
			return stt.NewDeepgramSource(cfg, l)
		},
		Answerer: answers,
		Recipe:   recipe,
		Logger:   logger,
	}
	// left nil otherwise so answers go out as text only
	if cartesia.Configured() {
		deps.Synthesizer = cartesia
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/streams/voice", gateway.HandleVoiceWS(deps))
	mux.HandleFunc("/health", observability.HealthCheckHandler(version))
	mux.HandleFunc("/ready", observability.ReadinessHandler(version, readinessChecks(cfg, answers, cartesia)...))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// No WriteTimeout: voice connections are long-lived and set their own write deadlines
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", voiceEndpoint(cfg)).
			Str("recipe", recipe.Title).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

func readinessChecks(cfg *config.Config, answers *answer.Client, cartesia *tts.CartesiaClient) []observability.NamedCheck {
	checks := []observability.NamedCheck{
		{
			Name: "deepgram",
			Check: func(ctx context.Context) (bool, error) {
				// a key is all we can verify without opening a billed stream
				if cfg.DeepgramAPIKey == "" {
					return false, fmt.Errorf("DEEPGRAM_API_KEY not set")
				}
				return true, nil
			},
		},
	}
	if answers.Enabled() {
		checks = append(checks, observability.NamedCheck{Name: "answer_service", Check: answers.HealthCheck})
	}
	if cartesia.Configured() {
		checks = append(checks, observability.NamedCheck{Name: "cartesia", Check: cartesia.HealthCheck})
	}
	return checks
}

func voiceEndpoint(cfg *config.Config) string {
	if cfg.PublicBaseURL == "" {
		return fmt.Sprintf("ws://localhost:%s/streams/voice", cfg.Port)
	}
	base := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/streams/voice"
}
