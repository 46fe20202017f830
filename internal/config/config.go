// Package config loads the authress-token CLI configuration from the
// environment.
package config

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/authress/pkg/authress"
)

type Config struct {
	BaseURL           string        // Required: account API host
	ApplicationID     string        // Optional: sent with identity exchanges
	APIKey            string        // Optional: static API key; wins over Assertion
	Assertion         string        // Optional: identity provider JWT for bearer mode
	PreferredAudience string        // Optional: audience to bind the session to
	TokenPath         string        // Optional: token endpoint path (default: authress.DefaultTokenPath)
	SafetyMargin      time.Duration // Optional: subtracted from token lifetimes (default: 60s)
	Timeout           time.Duration // Optional: per-request HTTP timeout (default: 10s)
	ExchangeRate      float64       // Optional: max exchanges per second, 0 = unlimited (default: 0)
	Env               string        // Environment (dev, staging, prod) (default: prod)
	LogLevel          string        // Log level (debug, info, warn, error) (default: warn)
	LogFormat         string        // Log format (json, text) (default: text)
}

func Load() Config {
	return Config{
		BaseURL:           os.Getenv("AUTHRESS_BASE_URL"),
		ApplicationID:     os.Getenv("AUTHRESS_APPLICATION_ID"),
		APIKey:            os.Getenv("AUTHRESS_API_KEY"),
		Assertion:         os.Getenv("AUTHRESS_ASSERTION"),
		PreferredAudience: os.Getenv("AUTHRESS_PREFERRED_AUDIENCE"),
		TokenPath:         getEnvOrDefault("AUTHRESS_TOKEN_PATH", authress.DefaultTokenPath),
		SafetyMargin:      getEnvDurationOrDefault("AUTHRESS_SAFETY_MARGIN", authress.DefaultSafetyMargin),
		Timeout:           getEnvDurationOrDefault("AUTHRESS_TIMEOUT", authress.DefaultTimeout),
		ExchangeRate:      getEnvFloatOrDefault("AUTHRESS_EXCHANGE_RATE", 0),
		Env:               getEnvOrDefault("ENV", "prod"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// Validate returns a map of env var names to error messages, or nil.
func (c Config) Validate() map[string]string {
	errs := make(map[string]string)

	switch u, err := url.Parse(c.BaseURL); {
	case c.BaseURL == "":
		errs["AUTHRESS_BASE_URL"] = "required"
	case err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		errs["AUTHRESS_BASE_URL"] = "must be an http(s) URL"
	}

	if c.APIKey == "" && strings.TrimSpace(c.Assertion) == "" {
		errs["AUTHRESS_API_KEY"] = "AUTHRESS_API_KEY or AUTHRESS_ASSERTION is required"
	}
	if c.SafetyMargin < 0 {
		errs["AUTHRESS_SAFETY_MARGIN"] = "must not be negative"
	}
	if c.Timeout <= 0 {
		errs["AUTHRESS_TIMEOUT"] = "must be positive"
	}
	if c.ExchangeRate < 0 {
		errs["AUTHRESS_EXCHANGE_RATE"] = "must not be negative"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ClientConfig maps c onto the SDK configuration.
func (c Config) ClientConfig(logger *slog.Logger, reg prometheus.Registerer) authress.Config {
	margin := c.SafetyMargin
	if margin == 0 {
		margin = -1 // explicit zero: no margin
	}

	return authress.Config{
		BaseURL:           c.BaseURL,
		ApplicationID:     c.ApplicationID,
		APIKey:            c.APIKey,
		IdentityExchange:  c.Assertion != "",
		TokenPath:         c.TokenPath,
		SafetyMargin:      margin,
		ExchangeRateLimit: rate.Limit(c.ExchangeRate),
		ExchangeBurst:     1,
		HTTPClient:        &http.Client{Timeout: c.Timeout},
		Logger:            logger,
		MetricsRegisterer: reg,
		UserAgent:         "authress-token",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
