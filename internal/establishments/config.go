package establishments

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glitchcodes/restroom-backend/internal/geo"
)

// Config tunes radii, limits and timeouts for the service.
type Config struct {
	// User-facing nearest search, in km.
	Search geo.RadiusBounds

	// "Which building am I in" radius for the resolver, in km.
	Resolve geo.RadiusBounds

	MaxResults           int
	FallbackAlternatives int
	ProviderTimeout      time.Duration

	// Optional YAML file of demo establishments used as a read fallback.
	StoreFixturePath string
}

// DefaultConfig returns the stock values.
func DefaultConfig() Config {
	return Config{
		Search:               geo.RadiusBounds{MinKm: 0.05, MaxKm: 5, DefaultKm: 0.5},
		Resolve:              geo.RadiusBounds{MinKm: 0.05, MaxKm: 0.25, DefaultKm: 0.1},
		MaxResults:           50,
		FallbackAlternatives: 5,
		ProviderTimeout:      5 * time.Second,
	}
}

// LoadFromEnv overlays environment variables on DefaultConfig.
//
// Environment variables:
//   - SEARCH_RADIUS_MIN_KM, SEARCH_RADIUS_MAX_KM, SEARCH_RADIUS_DEFAULT_KM
//   - RESOLVE_RADIUS_M: default resolve radius in meters (clamped to 50..250)
//   - NEAREST_MAX_RESULTS (default: 50)
//   - RESOLVE_FALLBACK_ALTERNATIVES (default: 5)
//   - PROVIDER_TIMEOUT: Go duration (default: 5s)
//   - STORE_FIXTURE_PATH: YAML establishments fixture
func LoadFromEnv() Config {
	cfg := DefaultConfig()

	envFloat("SEARCH_RADIUS_MIN_KM", &cfg.Search.MinKm)
	envFloat("SEARCH_RADIUS_MAX_KM", &cfg.Search.MaxKm)
	envFloat("SEARCH_RADIUS_DEFAULT_KM", &cfg.Search.DefaultKm)

	var resolveM float64
	if envFloat("RESOLVE_RADIUS_M", &resolveM) {
		cfg.Resolve.DefaultKm = geo.ClampRadius(resolveM/1000, cfg.Resolve)
	}

	envInt("NEAREST_MAX_RESULTS", &cfg.MaxResults)
	envInt("RESOLVE_FALLBACK_ALTERNATIVES", &cfg.FallbackAlternatives)

	if v, err := time.ParseDuration(strings.TrimSpace(os.Getenv("PROVIDER_TIMEOUT"))); err == nil && v > 0 {
		cfg.ProviderTimeout = v
	}
	cfg.StoreFixturePath = strings.TrimSpace(os.Getenv("STORE_FIXTURE_PATH"))
	return cfg
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search radius: %w", err)
	}
	if err := c.Resolve.Validate(); err != nil {
		return fmt.Errorf("resolve radius: %w", err)
	}
	if c.MaxResults <= 0 {
		return errors.New("NEAREST_MAX_RESULTS must be positive")
	}
	if c.FallbackAlternatives < 0 {
		return errors.New("RESOLVE_FALLBACK_ALTERNATIVES must not be negative")
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be positive")
	}
	return nil
}

func envFloat(key string, dst *float64) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return false
	}
	*dst = v
	return true
}

func envInt(key string, dst *int) bool {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return false
	}
	*dst = v
	return true
}
