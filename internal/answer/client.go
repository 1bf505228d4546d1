package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/config"
	"github.com/lexiqai/voice-command-gateway/internal/observability"
	"github.com/lexiqai/voice-command-gateway/internal/resilience"
)

const (
	serviceName = "answer_service"

	maxResponseBytes     = 1 << 20
	defaultServerMessage = "Unable to answer the question."
)

var (
	// ErrMissingBaseURL is returned by Ask when no answer service is configured
	ErrMissingBaseURL = errors.New("missing answer service URL: set ANSWER_SERVICE_URL to enable Q&A")

	// ErrInvalidResponse is returned when a 2xx body is not a valid answer
	ErrInvalidResponse = errors.New("invalid response from the Q&A service")

	// ErrEmptyQuestion is returned for blank questions; no request is made
	ErrEmptyQuestion = errors.New("question is empty")
)

// ServerError is a 4xx/5xx reply. Message is the service's "error" field when present.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

type qaRequest struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
}

type qaResponse struct {
	Answer *string `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client calls the query answering service (POST {base}/qa)
type Client struct {
	baseURL        string
	endpoint       string
	httpClient     *http.Client
	retryConfig    *resilience.RetryConfig
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewClient creates an answer service client. An empty ANSWER_SERVICE_URL
// yields a client whose Ask always fails with ErrMissingBaseURL.
func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.AnswerTimeout()},
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		circuitBreaker: resilience.NewCircuitBreaker(
			serviceName,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		logger: logger.With().Str("component", serviceName).Logger(),
	}

	if cfg.AnswerServiceURL == "" {
		return c, nil
	}
	endpoint, err := url.JoinPath(cfg.AnswerServiceURL, "qa")
	if err != nil {
		return nil, fmt.Errorf("invalid answer service URL: %w", err)
	}
	c.baseURL = cfg.AnswerServiceURL
	c.endpoint = endpoint
	return c, nil
}

// Enabled reports whether a service URL is configured
func (c *Client) Enabled() bool {
	return c.endpoint != ""
}

// Ask sends question with an optional context string and returns the answer text
func (c *Client) Ask(ctx context.Context, question, qaContext string) (string, error) {
	if !c.Enabled() {
		return "", ErrMissingBaseURL
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	body, err := json.Marshal(qaRequest{Question: question, Context: qaContext})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	started := time.Now()
	var answer string
	var rejected error
	err = c.circuitBreaker.Call(func() error {
		callErr := resilience.Retry(ctx, func(ctx context.Context) error {
			var postErr error
			answer, postErr = c.post(ctx, body)
			return postErr
		}, c.retryConfig, resilience.IsRetryableNetworkError)
		// a rejected request says nothing about the service's health
		if isClientError(callErr) {
			rejected = callErr
			return nil
		}
		return callErr
	})
	if err == nil {
		err = rejected
	}

	observability.UpdateCircuitBreakerState(serviceName, int(c.circuitBreaker.GetState()))
	if err != nil {
		if rejected == nil && !errors.Is(err, resilience.ErrCircuitOpen) {
			observability.IncrementCircuitBreakerFailures(serviceName)
		}
		observability.RecordAnswer(statusLabel(err), time.Since(started))
		c.logger.Warn().Err(err).Msg("Q&A request failed")
		return "", err
	}

	observability.RecordAnswer("success", time.Since(started))
	c.logger.Info().
		Dur("latency", time.Since(started)).
		Int("answer_length", len(answer)).
		Msg("Q&A answered successfully")
	return answer, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("answer request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read answer response: %w", err)
	}

	if resp.StatusCode >= 400 {
		serverErr := &ServerError{StatusCode: resp.StatusCode, Message: defaultServerMessage}
		var payload errorResponse
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			serverErr.Message = payload.Error
		}
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return "", resilience.NewRetryableError(serverErr)
		}
		return "", serverErr
	}

	var payload qaResponse
	if err := json.Unmarshal(data, &payload); err != nil || payload.Answer == nil {
		return "", ErrInvalidResponse
	}
	return *payload.Answer, nil
}

// HealthCheck reports whether the service root answers without a 5xx
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	if !c.Enabled() {
		return false, ErrMissingBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 500 {
		return false, fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return true, nil
}

// isClientError reports a 4xx reply other than 429
func isClientError(err error) bool {
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		return false
	}
	return serverErr.StatusCode >= 400 && serverErr.StatusCode < 500 &&
		serverErr.StatusCode != http.StatusTooManyRequests
}

func statusLabel(err error) string {
	var serverErr *ServerError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &serverErr):
		return fmt.Sprintf("http_%d", serverErr.StatusCode)
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
