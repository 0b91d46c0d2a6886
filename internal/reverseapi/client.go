package reverseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bizmatters/promptlens/internal/config"
	"github.com/bizmatters/promptlens/internal/models"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const healthTimeout = 5 * time.Second

// errTimerElapsed marks the per-call timer as the reason a request context ended.
var errTimerElapsed = errors.New("reverse api: request timer elapsed")

// Analyzer is the contract the analysis controller depends on.
type Analyzer interface {
	SubmitForAnalysis(ctx context.Context, outputText string) (*models.ReverseResponse, error)
}

// Client talks to the prompt reverse-engineering inference service.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the configured base URL and timeout. The circuit
// breaker is only installed when cfg.BreakerEnabled is set.
func NewClient(cfg config.APIConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultAPITimeout
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
		tracer:     otel.Tracer("reverse-api-client"),
	}

	if cfg.BreakerEnabled {
		failures := cfg.BreakerFailures
		settings := gobreaker.Settings{
			Name:        "reverse-api",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Printf(`{"level":"warn","message":"Circuit breaker state changed","breaker":"%s","from":"%s","to":"%s"}`, name, from, to)
			},
		}
		c.breaker = gobreaker.NewCircuitBreaker(settings)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SubmitForAnalysis posts outputText to {baseURL}/reverse and returns the decoded
// response verbatim. Every failure is an *APIError. Cancelling ctx aborts the
// request and yields KindCanceled; the internal timer yields KindTimeout.
func (c *Client) SubmitForAnalysis(ctx context.Context, outputText string) (*models.ReverseResponse, error) {
	ctx, span := c.tracer.Start(ctx, "reverse_api.submit")
	defer span.End()

	span.SetAttributes(attribute.Int("output_text.length", len(outputText)))

	result, err := c.execute(func() (interface{}, error) {
		return c.submitInternal(ctx, outputText)
	})
	if err != nil {
		apiErr := c.normalize(err)
		span.RecordError(apiErr)
		span.SetAttributes(attribute.String("error.kind", string(apiErr.Kind)))
		if apiErr.Status != 0 {
			span.SetAttributes(attribute.Int("http.status_code", apiErr.Status))
		}
		log.Printf(`{"level":"warn","message":"Reverse request failed","error":"%s"}`, apiErr.Diagnostic())
		return nil, apiErr
	}

	resp := result.(*models.ReverseResponse)
	span.SetAttributes(
		attribute.String("request_id", resp.RequestID),
		attribute.Bool("cached", resp.Cached),
	)

	return resp, nil
}

// submitInternal performs the single HTTP exchange under the per-call timer
func (c *Client) submitInternal(ctx context.Context, outputText string) (*models.ReverseResponse, error) {
	attemptCtx, cancel := context.WithTimeoutCause(ctx, c.timeout, errTimerElapsed)
	defer cancel()

	jsonData, err := json.Marshal(models.ReverseRequest{OutputText: outputText})
	if err != nil {
		return nil, networkError(fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/reverse", c.baseURL)
	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, networkError(fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, attemptCtx, fmt.Errorf("failed to make request: %w", err))
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		message, readErr := detailMessage(resp.Body)
		if readErr != nil && attemptCtx.Err() != nil {
			return nil, classify(ctx, attemptCtx, readErr)
		}
		return nil, serviceError(resp.StatusCode, message)
	}

	var reverseResp models.ReverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&reverseResp); err != nil {
		return nil, classify(ctx, attemptCtx, fmt.Errorf("failed to decode response: %w", err))
	}

	return &reverseResp, nil
}

// Health queries {baseURL}/health with a short deadline.
func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	ctx, span := c.tracer.Start(ctx, "reverse_api.health")
	defer span.End()

	attemptCtx, cancel := context.WithTimeoutCause(ctx, healthTimeout, errTimerElapsed)
	defer cancel()

	url := fmt.Sprintf("%s/health", c.baseURL)
	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		apiErr := networkError(fmt.Errorf("failed to create request: %w", err))
		span.RecordError(apiErr)
		return nil, apiErr
	}

	otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		apiErr := classify(ctx, attemptCtx, fmt.Errorf("failed to make request: %w", err))
		span.RecordError(apiErr)
		return nil, apiErr
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		message, _ := detailMessage(resp.Body)
		apiErr := serviceError(resp.StatusCode, message)
		span.RecordError(apiErr)
		span.SetAttributes(attribute.Bool("healthy", false))
		return nil, apiErr
	}

	var health models.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		apiErr := classify(ctx, attemptCtx, fmt.Errorf("failed to decode response: %w", err))
		span.RecordError(apiErr)
		return nil, apiErr
	}

	span.SetAttributes(attribute.Bool("healthy", health.Status == "ok"))
	return &health, nil
}

// execute runs fn through the circuit breaker when one is configured
func (c *Client) execute(fn func() (interface{}, error)) (interface{}, error) {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// normalize folds breaker rejections into the error taxonomy
func (c *Client) normalize(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return networkError(fmt.Errorf("circuit breaker rejected request: %w", err))
	}
	return networkError(err)
}

// classify decides which completion source ended a failed exchange. A cancelled
// caller context wins over the internal timer; a caller deadline counts as a timeout.
func classify(parent, attempt context.Context, err error) *APIError {
	if parentErr := parent.Err(); parentErr != nil {
		if errors.Is(parentErr, context.DeadlineExceeded) {
			return timeoutError(err)
		}
		return canceledError(err)
	}
	if errors.Is(context.Cause(attempt), errTimerElapsed) {
		return timeoutError(err)
	}
	return networkError(err)
}

// detailMessage extracts the "detail" string from a failure body, falling back to
// the generic message when the body is unreadable, not JSON, or carries no string detail.
func detailMessage(body io.Reader) (string, error) {
	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return MessageRequestFailed, err
	}

	var payload models.ErrorResponse
	if err := json.Unmarshal(bodyBytes, &payload); err != nil {
		return MessageRequestFailed, nil
	}

	detail, ok := payload.Detail.(string)
	if !ok || detail == "" {
		return MessageRequestFailed, nil
	}
	return detail, nil
}

// countsAsSuccess keeps caller cancellations and client-side rejections from tripping the breaker
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindCanceled:
		return true
	case KindServiceError:
		return apiErr.Status < http.StatusInternalServerError
	default:
		return false
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
