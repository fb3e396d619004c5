package google

import (
	"context"
	"fmt"
	"time"

	"github.com/glitchcodes/restroom-backend/internal/geo"
	"github.com/glitchcodes/restroom-backend/internal/places"
)

// NearbyType restricts nearbysearch to physical businesses.
const NearbyType = "establishment"

// GoogleProvider implements places.Provider on top of the Places web service.
type GoogleProvider struct {
	client *Client
}

// Ensure GoogleProvider implements Provider.
var _ places.Provider = (*GoogleProvider)(nil)

func init() {
	places.RegisterProvider(places.ProviderGoogle, func(cfg places.Config) (places.Provider, error) {
		return NewProvider(NewClient(cfg.GoogleKey, cfg.QPS, cfg.Timeout)), nil
	})
}

// NewProvider wraps an existing client.
func NewProvider(client *Client) *GoogleProvider {
	return &GoogleProvider{client: client}
}

// Name returns the provider name.
func (p *GoogleProvider) Name() string {
	return "google"
}

// Nearby lists establishments near origin.
func (p *GoogleProvider) Nearby(ctx context.Context, origin geo.Point, radiusMeters float64) ([]places.Place, error) {
	start := time.Now()

	results, err := p.client.NearbySearch(ctx, origin.Lat, origin.Lng, radiusMeters, NearbyType)
	if err != nil {
		return nil, err
	}

	out := toPlaces(results)
	places.LogTransform("google", len(results), len(out), time.Since(start))
	return out, nil
}

// Details fetches one place by id.
func (p *GoogleProvider) Details(ctx context.Context, placeID string) (*places.Place, error) {
	r, err := p.client.Details(ctx, placeID)
	if err != nil || r == nil {
		return nil, err
	}
	pl := toPlace(*r)
	return &pl, nil
}

// TextSearch runs a paged free-text query. Used by the import command.
func (p *GoogleProvider) TextSearch(ctx context.Context, query string) ([]places.Place, error) {
	results, err := p.client.TextSearch(ctx, query)
	return toPlaces(results), err
}

// HealthCheck issues a tiny nearby query to verify the key works.
func (p *GoogleProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.NearbySearch(ctx, 38.8977, -77.0365, 50, NearbyType); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func toPlaces(results []placeResult) []places.Place {
	out := make([]places.Place, 0, len(results))
	for _, r := range results {
		out = append(out, toPlace(r))
	}
	return out
}

func toPlace(r placeResult) places.Place {
	pl := places.Place{
		PlaceID:          r.PlaceID,
		Name:             r.Name,
		Vicinity:         r.Vicinity,
		FormattedAddress: r.FormattedAddress,
		Types:            r.Types,
	}
	if r.Geometry != nil && r.Geometry.Location != nil {
		pl.Location = &geo.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
	}
	return pl
}
