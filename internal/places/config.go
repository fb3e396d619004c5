package places

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderType identifies which places provider to use.
type ProviderType string

const (
	ProviderGoogle  ProviderType = "google"
	ProviderFixture ProviderType = "fixture"
)

// Config holds configuration for the places provider.
type Config struct {
	// Provider type: "google" or "fixture"
	Provider ProviderType

	// Google-specific config
	GoogleKey string
	QPS       float64
	Timeout   time.Duration

	// Fixture-specific config
	FixturePath string
}

const (
	DefaultQPS     = 10.0
	DefaultTimeout = 5 * time.Second
)

// LoadFromEnv loads provider configuration from environment variables.
//
// Environment variables:
//   - PLACES_PROVIDER: "google" or "fixture" (default: "google")
//   - GOOGLE_MAPS_API_KEY: API key for Google Places (required if using google)
//   - PLACES_QPS: max Google requests per second (default: 10)
//   - PLACES_TIMEOUT: HTTP timeout, Go duration syntax (default: 5s)
//   - PLACES_FIXTURE_PATH: YAML file of places (required if using fixture)
func LoadFromEnv() Config {
	var provider ProviderType
	switch strings.ToLower(strings.TrimSpace(os.Getenv("PLACES_PROVIDER"))) {
	case "fixture":
		provider = ProviderFixture
	default:
		provider = ProviderGoogle
	}

	qps := DefaultQPS
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv("PLACES_QPS")), 64); err == nil && v > 0 {
		qps = v
	}

	timeout := DefaultTimeout
	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv("PLACES_TIMEOUT"))); err == nil && v > 0 {
		timeout = v
	}

	return Config{
		Provider:    provider,
		GoogleKey:   os.Getenv("GOOGLE_MAPS_API_KEY"),
		QPS:         qps,
		Timeout:     timeout,
		FixturePath: strings.TrimSpace(os.Getenv("PLACES_FIXTURE_PATH")),
	}
}

// Validate checks that the configuration is valid for the selected provider.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGoogle:
		if c.GoogleKey == "" {
			return ErrMissingGoogleKey
		}
	case ProviderFixture:
		if c.FixturePath == "" {
			return ErrMissingFixturePath
		}
	}
	return nil
}
