// Package fixture serves places from a YAML file so the service can run
// offline, in tests, and in local development without a Google key.
package fixture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/glitchcodes/restroom-backend/internal/geo"
	"github.com/glitchcodes/restroom-backend/internal/places"
)

// File is the on-disk layout of a fixture.
type File struct {
	Places []places.Place `yaml:"places"`
}

// FixtureProvider answers from an in-memory list of places.
type FixtureProvider struct {
	source string
	places []places.Place
	byID   map[string]places.Place
}

var _ places.Provider = (*FixtureProvider)(nil)

func init() {
	places.RegisterProvider(places.ProviderFixture, func(cfg places.Config) (places.Provider, error) {
		return Load(cfg.FixturePath)
	})
}

// Load reads a fixture file from disk.
func Load(path string) (*FixtureProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	p.source = path
	return p, nil
}

// Parse builds a provider from YAML bytes.
func Parse(raw []byte) (*FixtureProvider, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return New(f.Places), nil
}

// New builds a provider from places already in memory.
func New(list []places.Place) *FixtureProvider {
	p := &FixtureProvider{
		source: "memory",
		places: list,
		byID:   make(map[string]places.Place, len(list)),
	}
	for _, pl := range list {
		if pl.PlaceID != "" {
			p.byID[pl.PlaceID] = pl
		}
	}
	return p
}

// Name returns the provider name.
func (p *FixtureProvider) Name() string {
	return "fixture"
}

// Nearby returns the fixture places with a location inside the radius,
// nearest first.
func (p *FixtureProvider) Nearby(ctx context.Context, origin geo.Point, radiusMeters float64) ([]places.Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	candidates := make([]located, 0, len(p.places))
	for i, pl := range p.places {
		if pl.Location == nil {
			continue
		}
		candidates = append(candidates, located{idx: i, place: pl})
	}

	ranked, err := geo.FilterWithinRadius(origin, candidates, radiusMeters/1000)
	if err != nil {
		return nil, err
	}

	out := make([]places.Place, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Item.place)
	}
	places.LogTransform("fixture", len(p.places), len(out), time.Since(start))
	return out, nil
}

// Details looks a place up by id.
func (p *FixtureProvider) Details(ctx context.Context, placeID string) (*places.Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pl, ok := p.byID[placeID]
	if !ok {
		return nil, nil
	}
	return &pl, nil
}

// HealthCheck always succeeds once the fixture has loaded.
func (p *FixtureProvider) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// located adapts a place for geo.FilterWithinRadius. The key keeps file
// order among equidistant places.
type located struct {
	idx   int
	place places.Place
}

func (l located) GeoKey() string      { return fmt.Sprintf("%08d", l.idx) }
func (l located) GeoPoint() geo.Point { return *l.place.Location }
