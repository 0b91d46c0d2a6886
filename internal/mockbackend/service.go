package mockbackend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/promptlens/internal/config"
	"github.com/bizmatters/promptlens/internal/models"
)

// AppName is reported by the health endpoint.
const AppName = "Prompt Reverse Engineer"

// MinInputChars is the shortest trimmed input the service accepts.
const MinInputChars = 20

var (
	ErrTextTooShort = errors.New(models.DetailTextTooShort)
	ErrTextTooLong  = errors.New(models.DetailTextTooLong)
)

// Service is a heuristic stand-in for the inference service.
type Service struct {
	cache         *expirable.LRU[string, models.ReverseResponse]
	limiter       *RateLimiter
	maxInputChars int
	environment   string
	tracer        trace.Tracer
	newRequestID  func() string
}

// NewService creates a service with an expiring response cache.
func NewService(cfg config.MockConfig, environment string) *Service {
	return &Service{
		cache:         expirable.NewLRU[string, models.ReverseResponse](cfg.CacheSize, nil, cfg.CacheTTL),
		limiter:       NewRateLimiter(cfg.RateLimitPerMinute, cfg.UniqueTextsPerMinute),
		maxInputChars: cfg.MaxInputChars,
		environment:   environment,
		tracer:        otel.Tracer("mock-backend"),
		newRequestID:  uuid.NewString,
	}
}

// Reverse validates outputText and returns the inferred prompt analysis.
// Identical trimmed inputs are answered from the cache with cached set and a
// fresh request id.
func (s *Service) Reverse(ctx context.Context, outputText string) (*models.ReverseResponse, error) {
	_, span := s.tracer.Start(ctx, "mockbackend.reverse")
	defer span.End()

	if utf8.RuneCountInString(outputText) > s.maxInputChars {
		span.RecordError(ErrTextTooLong)
		return nil, ErrTextTooLong
	}
	text := strings.TrimSpace(outputText)
	if utf8.RuneCountInString(text) < MinInputChars {
		span.RecordError(ErrTextTooShort)
		return nil, ErrTextTooShort
	}

	key := contentHash(text)
	requestID := s.newRequestID()
	span.SetAttributes(attribute.String("request_id", requestID))

	if cached, ok := s.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		cached.RequestID = requestID
		cached.Cached = true
		return &cached, nil
	}

	resp := analyze(text)
	resp.RequestID = requestID
	s.cache.Add(key, resp)

	span.SetAttributes(
		attribute.Bool("cache_hit", false),
		attribute.String("prompt_style", resp.PromptStyle),
		attribute.Float64("confidence_score", resp.ConfidenceScore),
	)
	return &resp, nil
}

// AllowRequest applies the per-client rate limits to a request from clientKey.
func (s *Service) AllowRequest(clientKey, outputText string) bool {
	return s.limiter.Allow(clientKey, contentHash(outputText))
}

// Health reports service liveness.
func (s *Service) Health() models.HealthResponse {
	return models.HealthResponse{Status: "ok", App: AppName, Environment: s.environment}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
