package establishments

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"SEARCH_RADIUS_MIN_KM", "SEARCH_RADIUS_MAX_KM", "SEARCH_RADIUS_DEFAULT_KM",
		"RESOLVE_RADIUS_M", "NEAREST_MAX_RESULTS", "RESOLVE_FALLBACK_ALTERNATIVES",
		"PROVIDER_TIMEOUT", "STORE_FIXTURE_PATH",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadFromEnv()
	if cfg != DefaultConfig() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("SEARCH_RADIUS_DEFAULT_KM", "1.5")
	t.Setenv("RESOLVE_RADIUS_M", "400")
	t.Setenv("NEAREST_MAX_RESULTS", "10")
	t.Setenv("RESOLVE_FALLBACK_ALTERNATIVES", "0")
	t.Setenv("PROVIDER_TIMEOUT", "750ms")
	t.Setenv("STORE_FIXTURE_PATH", " seeds/establishments.yaml ")

	cfg := LoadFromEnv()
	if cfg.Search.DefaultKm != 1.5 {
		t.Errorf("search default: got %v", cfg.Search.DefaultKm)
	}
	// Resolve radius is clamped to its 250 m ceiling.
	if cfg.Resolve.DefaultKm != 0.25 {
		t.Errorf("resolve default: got %v", cfg.Resolve.DefaultKm)
	}
	if cfg.MaxResults != 10 || cfg.FallbackAlternatives != 0 {
		t.Errorf("limits: got %d/%d", cfg.MaxResults, cfg.FallbackAlternatives)
	}
	if cfg.ProviderTimeout != 750*time.Millisecond {
		t.Errorf("timeout: got %v", cfg.ProviderTimeout)
	}
	if cfg.StoreFixturePath != "seeds/establishments.yaml" {
		t.Errorf("fixture path: got %q", cfg.StoreFixturePath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigValidate_Rejects(t *testing.T) {
	tests := map[string]func(*Config){
		"min above max":     func(c *Config) { c.Search.MinKm = 10 },
		"zero results":      func(c *Config) { c.MaxResults = 0 },
		"negative fallback": func(c *Config) { c.FallbackAlternatives = -1 },
		"zero timeout":      func(c *Config) { c.ProviderTimeout = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
