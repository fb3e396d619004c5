package establishments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/glitchcodes/restroom-backend/internal/geo"
)

// Aggregator answers "what is near me" straight from the store.
type Aggregator struct {
	store      Store
	bounds     geo.RadiusBounds
	maxResults int
}

func NewAggregator(store Store, cfg Config) *Aggregator {
	return &Aggregator{store: store, bounds: cfg.Search, maxResults: cfg.MaxResults}
}

// Nearest lists establishments within radiusKm of origin, nearest first,
// each with its latest code. radiusKm may be NaN for the default. An empty
// area yields an empty, non-nil slice.
func (a *Aggregator) Nearest(ctx context.Context, origin geo.Point, radiusKm float64) ([]NearestResult, error) {
	if err := origin.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	radiusKm = geo.ClampRadius(radiusKm, a.bounds)

	ranked, err := a.within(ctx, origin, radiusKm, a.maxResults)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return []NearestResult{}, nil
	}

	ids := make([]uuid.UUID, len(ranked))
	for i, r := range ranked {
		ids[i] = r.Item.ID
	}
	subs, err := a.store.ListSubmissions(ctx, ids)
	if err != nil {
		return nil, storeError(err)
	}
	latest := LatestByEstablishment(subs)

	out := make([]NearestResult, 0, len(ranked))
	for _, r := range ranked {
		view := EstablishmentView{Establishment: r.Item}
		if s, ok := latest[r.Item.ID]; ok {
			view.LatestCode = latestCodeOf(&s)
		}
		out = append(out, NearestResult{Establishment: view, DistanceKm: r.DistanceKm})
	}
	return out, nil
}

// within reads the bounding box around origin and keeps at most limit
// establishments inside radiusKm. radiusKm must already be clamped.
func (a *Aggregator) within(ctx context.Context, origin geo.Point, radiusKm float64, limit int) ([]geo.Ranked[Establishment], error) {
	box, err := geo.BoundingBox(origin, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	rows, err := a.store.ListEstablishments(ctx, &box)
	if err != nil {
		return nil, storeError(err)
	}

	ranked, err := geo.FilterWithinRadius(origin, rows, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// Alternatives returns up to limit store establishments near origin as
// candidates. It backs not_found when the provider has nothing.
func (a *Aggregator) Alternatives(ctx context.Context, origin geo.Point, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return []Candidate{}, nil
	}
	ranked, err := a.within(ctx, origin, geo.ClampRadius(a.bounds.DefaultKm, a.bounds), limit)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return []Candidate{}, nil
	}

	ids := make([]uuid.UUID, len(ranked))
	for i, r := range ranked {
		ids[i] = r.Item.ID
	}
	subs, err := a.store.ListSubmissions(ctx, ids)
	if err != nil {
		return nil, storeError(err)
	}
	latest := LatestByEstablishment(subs)

	out := make([]Candidate, 0, len(ranked))
	for _, r := range ranked {
		var sub *CodeSubmission
		if s, ok := latest[r.Item.ID]; ok {
			sub = &s
		}
		c, err := FromEstablishment(r.Item, sub)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
