package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/config"
	"github.com/lexiqai/voice-command-gateway/internal/resilience"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		AnswerServiceURL:           baseURL,
		AnswerTimeoutSeconds:       5,
		RetryMaxAttempts:           3,
		RetryInitialBackoff:        1,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(testConfig(baseURL), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestClient_Ask(t *testing.T) {
	var got qaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/qa" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"answer":"About 15 ml."}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	answer, err := c.Ask(context.Background(), "  how many ml in a tablespoon  ", "Garlic Onion Chicken")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if answer != "About 15 ml." {
		t.Errorf("Expected answer, got %q", answer)
	}
	if got.Question != "how many ml in a tablespoon" {
		t.Errorf("Expected trimmed question, got %q", got.Question)
	}
	if got.Context != "Garlic Onion Chicken" {
		t.Errorf("Expected context, got %q", got.Context)
	}
}

func TestClient_AskOmitsEmptyContext(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{"answer":"yes"}`))
	}))
	defer server.Close()

	if _, err := newTestClient(t, server.URL+"/").Ask(context.Background(), "is it done", ""); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := raw["context"]; ok {
		t.Errorf("Expected context to be omitted, got %v", raw)
	}
}

func TestClient_ServerError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{"error field", http.StatusBadRequest, `{"error":"Missing question."}`, "Missing question."},
		{"no body", http.StatusInternalServerError, ``, defaultServerMessage},
		{"not json", http.StatusNotFound, `not found`, defaultServerMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).Ask(context.Background(), "how long", "")
			var serverErr *ServerError
			if !errors.As(err, &serverErr) {
				t.Fatalf("Expected ServerError, got %v", err)
			}
			if serverErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, serverErr.StatusCode)
			}
			if err.Error() != tt.expected {
				t.Errorf("Expected message %q, got %q", tt.expected, err.Error())
			}
		})
	}
}

func TestClient_InvalidResponse(t *testing.T) {
	for _, body := range []string{`{"text":"wrong field"}`, `<html>`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		_, err := newTestClient(t, server.URL).Ask(context.Background(), "how long", "")
		if !errors.Is(err, ErrInvalidResponse) {
			t.Errorf("Expected ErrInvalidResponse for %q, got %v", body, err)
		}
		server.Close()
	}
}

func TestClient_MissingBaseURL(t *testing.T) {
	c := newTestClient(t, "")
	if c.Enabled() {
		t.Error("Expected client to be disabled")
	}
	if _, err := c.Ask(context.Background(), "how long", ""); !errors.Is(err, ErrMissingBaseURL) {
		t.Errorf("Expected ErrMissingBaseURL, got %v", err)
	}
	if ok, err := c.HealthCheck(context.Background()); ok || !errors.Is(err, ErrMissingBaseURL) {
		t.Errorf("Expected failing health check, got %v %v", ok, err)
	}
}

func TestClient_EmptyQuestion(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	if _, err := newTestClient(t, server.URL).Ask(context.Background(), "   ", ""); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("Expected ErrEmptyQuestion, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("Expected no request for an empty question")
	}
}

func TestClient_RetriesUnavailable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"answer":"Rest for 3 minutes."}`))
	}))
	defer server.Close()

	answer, err := newTestClient(t, server.URL).Ask(context.Background(), "how long to rest", "")
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if answer != "Rest for 3 minutes." {
		t.Errorf("Unexpected answer %q", answer)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 calls, got %d", got)
	}
}

func TestClient_DoesNotRetryClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	newTestClient(t, server.URL).Ask(context.Background(), "how long", "")
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected 1 call, got %d", got)
	}
}

func TestClient_CircuitOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.CircuitBreakerMaxFailures = 2
	c, err := NewClient(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	c.Ask(context.Background(), "one", "")
	c.Ask(context.Background(), "two", "")
	_, err = c.Ask(context.Background(), "three", "")

	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 calls before the circuit opened, got %d", got)
	}
}

func TestClient_ClientErrorsKeepCircuitClosed(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Missing question."}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.CircuitBreakerMaxFailures = 2
	c, err := NewClient(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		_, err = c.Ask(context.Background(), "how long", "")
		var serverErr *ServerError
		if !errors.As(err, &serverErr) || serverErr.StatusCode != http.StatusBadRequest {
			t.Fatalf("Ask %d: expected 400 ServerError, got %v", i+1, err)
		}
		if serverErr.Message != "Missing question." {
			t.Errorf("Unexpected message %q", serverErr.Message)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected every request to reach the service, got %d", got)
	}
	if state := c.circuitBreaker.GetState(); state != resilience.StateClosed {
		t.Errorf("Expected circuit closed, got %v", state)
	}
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&ServerError{StatusCode: 400}, true},
		{&ServerError{StatusCode: 404}, true},
		{resilience.NewRetryableError(&ServerError{StatusCode: 429}), false},
		{&ServerError{StatusCode: 500}, false},
		{ErrInvalidResponse, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := isClientError(tt.err); got != tt.want {
			t.Errorf("isClientError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Cooking Assistant Worker is online."))
	}))
	defer server.Close()

	ok, err := newTestClient(t, server.URL).HealthCheck(context.Background())
	if !ok || err != nil {
		t.Errorf("Expected healthy, got %v %v", ok, err)
	}

	server.Close()
	if ok, _ := newTestClient(t, server.URL).HealthCheck(context.Background()); ok {
		t.Error("Expected unhealthy after server closed")
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{resilience.ErrCircuitOpen, "circuit_open"},
		{&ServerError{StatusCode: 400}, "http_400"},
		{resilience.NewRetryableError(&ServerError{StatusCode: 503}), "http_503"},
		{ErrInvalidResponse, "invalid_response"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.err); got != tt.expected {
			t.Errorf("statusLabel(%v) = %q, expected %q", tt.err, got, tt.expected)
		}
	}
}
