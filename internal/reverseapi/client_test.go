package reverseapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bizmatters/promptlens/internal/config"
	"github.com/bizmatters/promptlens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResponse() models.ReverseResponse {
	return models.ReverseResponse{
		RequestID:           "req-123",
		Cached:              false,
		InferredPrompt:      "Think step-by-step. Then answer. Task: Solve the problem.",
		PromptStyle:         "chain-of-thought",
		TaskType:            "reasoning",
		ConstraintsDetected: []string{"json_format", "stepwise"},
		TemperatureEstimate: "low",
		ReasoningTrace:      []string{"style=chain-of-thought", "constraint_hits=json_format,stepwise", "confidence=0.81"},
		AnalyzerScores:      map[string]float64{"structure": 0.8, "constraint": 0.6},
		Explainability: models.Explainability{
			Summary:    "Detected chain-of-thought style.",
			KeySignals: []string{"style=chain-of-thought"},
			RiskFlags:  []string{"none"},
		},
		ConfidenceScore: 1.4,
	}
}

func newTestClient(baseURL string, timeout time.Duration) *Client {
	return NewClient(config.APIConfig{BaseURL: baseURL, Timeout: timeout})
}

// blockUntilAbandoned never answers; it returns once the client gives up.
func blockUntilAbandoned(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(5 * time.Second):
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(config.APIConfig{BaseURL: "http://localhost:8000/"})

	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.tracer)
	assert.Nil(t, client.breaker)
	assert.Equal(t, "http://localhost:8000", client.BaseURL())
	assert.Equal(t, config.DefaultAPITimeout, client.timeout)

	withBreaker := NewClient(config.APIConfig{BaseURL: "http://localhost:8000", BreakerEnabled: true, BreakerFailures: 2})
	assert.NotNil(t, withBreaker.breaker)
}

func TestClient_SubmitForAnalysis(t *testing.T) {
	tests := []struct {
		name            string
		serverResponse  func(w http.ResponseWriter, r *http.Request)
		expectedKind    Kind
		expectedMessage string
		expectedStatus  int
	}{
		{
			name: "service_error_with_detail",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(`{"detail": "text too short"}`))
			},
			expectedKind:    KindServiceError,
			expectedMessage: "text too short",
			expectedStatus:  http.StatusUnprocessableEntity,
		},
		{
			name: "service_error_unparseable_body",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("<html>Internal Server Error</html>"))
			},
			expectedKind:    KindServiceError,
			expectedMessage: "Request failed",
			expectedStatus:  http.StatusInternalServerError,
		},
		{
			name: "service_error_without_detail",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "slow down"}`))
			},
			expectedKind:    KindServiceError,
			expectedMessage: "Request failed",
			expectedStatus:  http.StatusTooManyRequests,
		},
		{
			name: "service_error_structured_detail",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(`{"detail": [{"loc": ["body", "output_text"], "msg": "too short"}]}`))
			},
			expectedKind:    KindServiceError,
			expectedMessage: "Request failed",
			expectedStatus:  http.StatusUnprocessableEntity,
		},
		{
			name: "invalid_json_on_success",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("invalid json"))
			},
			expectedKind:    KindNetworkError,
			expectedMessage: "Network error. Please check your connection and retry.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			client := newTestClient(server.URL, time.Second)

			result, err := client.SubmitForAnalysis(context.Background(), "1. First gather constraints.")
			assert.Nil(t, result)
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.expectedKind, apiErr.Kind)
			assert.Equal(t, tt.expectedMessage, err.Error())
			assert.Equal(t, tt.expectedStatus, apiErr.Status)
		})
	}
}

func TestClient_SubmitForAnalysis_Success(t *testing.T) {
	expected := sampleResponse()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req models.ReverseRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		assert.NoError(t, err)
		assert.Equal(t, "  Paste an LLM output here.\n", req.OutputText)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(expected)
	}))
	defer server.Close()

	client := newTestClient(server.URL+"/", time.Second)

	result, err := client.SubmitForAnalysis(context.Background(), "  Paste an LLM output here.\n")
	require.NoError(t, err)
	assert.Equal(t, &expected, result)
	assert.Equal(t, 1.4, result.ConfidenceScore)
}

func TestClient_SubmitForAnalysis_PassesPartialPayloadThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"request_id": "r-1", "inferred_prompt": "Explain it."}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second)

	result, err := client.SubmitForAnalysis(context.Background(), "some output text")
	require.NoError(t, err)
	assert.Equal(t, "r-1", result.RequestID)
	assert.Equal(t, "Explain it.", result.InferredPrompt)
	assert.Nil(t, result.ReasoningTrace)
	assert.Nil(t, result.AnalyzerScores)
	assert.Zero(t, result.ConfidenceScore)
}

func TestClient_SubmitForAnalysis_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(blockUntilAbandoned))
	defer server.Close()

	client := newTestClient(server.URL, 10*time.Millisecond)

	start := time.Now()
	result, err := client.SubmitForAnalysis(context.Background(), "never answered")
	elapsed := time.Since(start)

	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, "Request timed out. Please try again.", err.Error())
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestClient_SubmitForAnalysis_TimerDoesNotLeakAcrossCalls(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			blockUntilAbandoned(w, r)
			return
		}
		time.Sleep(30 * time.Millisecond)
		json.NewEncoder(w).Encode(sampleResponse())
	}))
	defer server.Close()

	client := newTestClient(server.URL, 20*time.Millisecond)

	_, err := client.SubmitForAnalysis(context.Background(), "first")
	assert.Equal(t, KindTimeout, KindOf(err))

	// The second call gets its own timer, so the 30ms handler trips it again.
	_, err = client.SubmitForAnalysis(context.Background(), "second")
	assert.Equal(t, KindTimeout, KindOf(err))

	generous := newTestClient(server.URL, time.Second)
	result, err := generous.SubmitForAnalysis(context.Background(), "third")
	require.NoError(t, err)
	assert.Equal(t, "req-123", result.RequestID)
}

func TestClient_SubmitForAnalysis_ExternalCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(blockUntilAbandoned))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	result, err := client.SubmitForAnalysis(ctx, "cancel me")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.Equal(t, "Request was cancelled.", err.Error())
}

func TestClient_SubmitForAnalysis_CallerDeadlineIsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(blockUntilAbandoned))
	defer server.Close()

	client := newTestClient(server.URL, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.SubmitForAnalysis(ctx, "deadline")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestClient_SubmitForAnalysis_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(url, time.Second)

	_, err := client.SubmitForAnalysis(context.Background(), "nobody home")
	require.Error(t, err)
	assert.Equal(t, KindNetworkError, KindOf(err))
	assert.Equal(t, MessageNetworkFailure, err.Error())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.NotNil(t, apiErr.Cause)
	assert.Contains(t, apiErr.Diagnostic(), "failed to make request")
}

func TestClient_CircuitBreaker(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"detail": "upstream unavailable"}`))
	}))
	defer server.Close()

	client := NewClient(config.APIConfig{
		BaseURL:         server.URL,
		Timeout:         time.Second,
		BreakerEnabled:  true,
		BreakerFailures: 2,
	})

	for i := 0; i < 2; i++ {
		_, err := client.SubmitForAnalysis(context.Background(), "trip the breaker")
		require.Error(t, err)
		assert.Equal(t, "upstream unavailable", err.Error())
	}

	_, err := client.SubmitForAnalysis(context.Background(), "rejected while open")
	require.Error(t, err)
	assert.Equal(t, KindNetworkError, KindOf(err))
	assert.Contains(t, err.(*APIError).Diagnostic(), "circuit breaker is open")
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_CircuitBreakerIgnoresClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "text too short"}`))
	}))
	defer server.Close()

	client := NewClient(config.APIConfig{
		BaseURL:         server.URL,
		Timeout:         time.Second,
		BreakerEnabled:  true,
		BreakerFailures: 1,
	})

	for i := 0; i < 3; i++ {
		_, err := client.SubmitForAnalysis(context.Background(), "short")
		require.Error(t, err)
		assert.Equal(t, "text too short", err.Error())
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_Health(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse func(w http.ResponseWriter, r *http.Request)
		expectedStatus string
		expectedKind   Kind
	}{
		{
			name: "healthy_service",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"status": "ok", "app": "Prompt Reverse Engineer", "environment": "development"}`))
			},
			expectedStatus: "ok",
		},
		{
			name: "unhealthy_service",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"detail": "warming up"}`))
			},
			expectedKind: KindServiceError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			client := newTestClient(server.URL, time.Second)

			health, err := client.Health(context.Background())
			if tt.expectedKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectedKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, health.Status)
			assert.Equal(t, "Prompt Reverse Engineer", health.App)
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(timeoutError(nil)))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
