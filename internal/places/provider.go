package places

import (
	"context"
	"errors"
	"fmt"

	"github.com/glitchcodes/restroom-backend/internal/geo"
)

// Common errors
var (
	ErrMissingGoogleKey   = errors.New("GOOGLE_MAPS_API_KEY environment variable is required for google provider")
	ErrMissingFixturePath = errors.New("PLACES_FIXTURE_PATH environment variable is required for fixture provider")
	ErrUnknownProvider    = errors.New("unknown provider type")
)

// Place is a nearby physical place as reported by a provider, before any
// normalization. Location is nil when the provider omitted the geometry.
type Place struct {
	PlaceID          string     `json:"place_id" yaml:"place_id"`
	Name             string     `json:"name" yaml:"name"`
	Vicinity         string     `json:"vicinity,omitempty" yaml:"vicinity"`
	FormattedAddress string     `json:"formatted_address,omitempty" yaml:"formatted_address"`
	Location         *geo.Point `json:"location,omitempty" yaml:"location"`
	Types            []string   `json:"types,omitempty" yaml:"types"`
}

// Provider is the read-only places oracle. Results of Nearby are in the
// provider's own relevance order, which callers treat as authoritative.
type Provider interface {
	// Name returns the provider name for logging purposes.
	Name() string

	// Nearby lists places within radiusMeters of origin.
	Nearby(ctx context.Context, origin geo.Point, radiusMeters float64) ([]Place, error)

	// Details fetches one place by its provider id. It returns nil, nil when
	// the provider does not know the id.
	Details(ctx context.Context, placeID string) (*Place, error)

	// HealthCheck verifies the provider can reach its data source.
	HealthCheck(ctx context.Context) error
}

var providerRegistry = make(map[ProviderType]func(Config) (Provider, error))

// RegisterProvider registers a provider constructor for a given provider type.
// This should be called from init() in each provider package.
func RegisterProvider(providerType ProviderType, constructor func(Config) (Provider, error)) {
	providerRegistry[providerType] = constructor
}

// NewProvider creates a Provider based on the configuration.
func NewProvider(cfg Config) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	constructor, ok := providerRegistry[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	return constructor(cfg)
}
