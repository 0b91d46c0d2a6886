package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIBaseURL = "http://localhost:8000"
	DefaultAPITimeout = 20000 * time.Millisecond
)

// Config is read once at startup and handed to the components that need it.
type Config struct {
	// Remote inference service
	API APIConfig

	// Web console
	Server ServerConfig

	// Local stub backend
	Mock MockConfig
}

// APIConfig holds the inference service client settings.
type APIConfig struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerEnabled  bool
	BreakerFailures uint32
}

// ServerConfig holds web console settings.
type ServerConfig struct {
	Port          string
	Environment   string // development, staging, production
	SessionSecret string
}

// MockConfig holds stub backend settings.
type MockConfig struct {
	Port          string
	CacheTTL      time.Duration
	CacheSize     int
	MaxInputChars int
	// Per-client sliding one-minute windows; 0 disables the check
	RateLimitPerMinute   int
	UniqueTextsPerMinute int
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []error

	timeoutMs, err := strconv.Atoi(getEnvOrDefault("PROMPTLENS_API_TIMEOUT_MS", strconv.Itoa(int(DefaultAPITimeout/time.Millisecond))))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid PROMPTLENS_API_TIMEOUT_MS: %w", err))
	}

	breakerFailures, err := strconv.ParseUint(getEnvOrDefault("PROMPTLENS_BREAKER_FAILURES", "5"), 10, 32)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid PROMPTLENS_BREAKER_FAILURES: %w", err))
	}

	cfg.API = APIConfig{
		BaseURL:         getEnvOrDefault("PROMPTLENS_API_BASE_URL", DefaultAPIBaseURL),
		Timeout:         time.Duration(timeoutMs) * time.Millisecond,
		BreakerEnabled:  getEnvOrDefault("PROMPTLENS_BREAKER_ENABLED", "false") == "true",
		BreakerFailures: uint32(breakerFailures),
	}

	cfg.Server = ServerConfig{
		Port:          getEnvOrDefault("PORT", "8080"),
		Environment:   getEnvOrDefault("APP_ENV", "development"),
		SessionSecret: os.Getenv("PROMPTLENS_SESSION_SECRET"),
	}

	cacheTTL, err := time.ParseDuration(getEnvOrDefault("PROMPTLENS_MOCK_CACHE_TTL", "10m"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid PROMPTLENS_MOCK_CACHE_TTL: %w", err))
	}
	cacheSize, err := strconv.Atoi(getEnvOrDefault("PROMPTLENS_MOCK_CACHE_SIZE", "512"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid PROMPTLENS_MOCK_CACHE_SIZE: %w", err))
	}
	maxChars, err := strconv.Atoi(getEnvOrDefault("PROMPTLENS_MOCK_MAX_INPUT_CHARS", "12000"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid PROMPTLENS_MOCK_MAX_INPUT_CHARS: %w", err))
	}

	rateLimit, err := strconv.Atoi(getEnvOrDefault("PROMPTLENS_MOCK_RATE_LIMIT", "60"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid PROMPTLENS_MOCK_RATE_LIMIT: %w", err))
	}
	uniqueTexts, err := strconv.Atoi(getEnvOrDefault("PROMPTLENS_MOCK_UNIQUE_TEXTS", "30"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid PROMPTLENS_MOCK_UNIQUE_TEXTS: %w", err))
	}

	cfg.Mock = MockConfig{
		Port:                 getEnvOrDefault("PROMPTLENS_MOCK_PORT", "8000"),
		CacheTTL:             cacheTTL,
		CacheSize:            cacheSize,
		MaxInputChars:        maxChars,
		RateLimitPerMinute:   rateLimit,
		UniqueTextsPerMinute: uniqueTexts,
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration parsing failed:\n%w", errors.Join(errs...))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate reports every invalid setting at once.
func (c *Config) validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("PROMPTLENS_API_BASE_URL must not be empty"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("PROMPTLENS_API_TIMEOUT_MS must be positive"))
	}
	if c.API.BreakerEnabled && c.API.BreakerFailures == 0 {
		errs = append(errs, errors.New("PROMPTLENS_BREAKER_FAILURES must be positive when the breaker is enabled"))
	}
	if c.Mock.CacheSize <= 0 {
		errs = append(errs, errors.New("PROMPTLENS_MOCK_CACHE_SIZE must be positive"))
	}
	if c.Mock.MaxInputChars <= 0 {
		errs = append(errs, errors.New("PROMPTLENS_MOCK_MAX_INPUT_CHARS must be positive"))
	}
	if c.Mock.RateLimitPerMinute < 0 || c.Mock.UniqueTextsPerMinute < 0 {
		errs = append(errs, errors.New("PROMPTLENS_MOCK_RATE_LIMIT and PROMPTLENS_MOCK_UNIQUE_TEXTS must not be negative"))
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.Server.Environment] {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of: development, staging, production (got: %s)", c.Server.Environment))
	}
	if c.IsProduction() && len(c.Server.SessionSecret) < 32 {
		errs = append(errs, errors.New("PROMPTLENS_SESSION_SECRET must be at least 32 characters in production"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%w", errors.Join(errs...))
	}

	return nil
}

// getEnvOrDefault returns the environment value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// MustLoad is like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
