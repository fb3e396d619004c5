package establishments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/glitchcodes/restroom-backend/internal/geo"
	"github.com/glitchcodes/restroom-backend/internal/places"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProviderUnavailable = errors.New("places provider unavailable")

	errResolvedWithoutEstablishment = errors.New("resolution has no establishment")
)

// ResolutionKind tells the state machine which branch the resolver took.
type ResolutionKind int

const (
	KindResolved ResolutionKind = iota
	KindNotFound
	KindError
)

func (k ResolutionKind) String() string {
	switch k {
	case KindResolved:
		return "resolved"
	case KindNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Resolution is the typed result of Resolve. Failures are carried in Err
// with Kind == KindError rather than returned.
type Resolution struct {
	Kind          ResolutionKind
	Establishment *Establishment
	Selected      *Candidate
	Alternatives  []Candidate
	Err           error
}

// ResolveRequest asks for the establishment at Origin, or for PlaceID when
// the user picked a specific building. RadiusKm may be NaN for the default.
type ResolveRequest struct {
	Origin   *geo.Point
	PlaceID  string
	RadiusKm float64
}

// Validate rejects requests that must not reach the provider.
func (r ResolveRequest) Validate() error {
	if r.PlaceID == "" && r.Origin == nil {
		return fmt.Errorf("%w: a coordinate or place_id is required", ErrInvalidInput)
	}
	if r.Origin != nil {
		if err := r.Origin.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return nil
}

// Resolver reconciles provider places with the store so that one physical
// place maps to exactly one establishment row.
type Resolver struct {
	provider places.Provider
	store    Store
	bounds   geo.RadiusBounds
	timeout  time.Duration
}

func NewResolver(provider places.Provider, store Store, cfg Config) *Resolver {
	return &Resolver{
		provider: provider,
		store:    store,
		bounds:   cfg.Resolve,
		timeout:  cfg.ProviderTimeout,
	}
}

// Resolve never panics and never returns a bare error; every failure comes
// back as a KindError resolution.
func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (res Resolution) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[resolver] recovered from panic: %v", p)
			res = failed(fmt.Errorf("resolver panic: %v", p))
		}
	}()

	if err := req.Validate(); err != nil {
		return failed(err)
	}
	if req.PlaceID != "" {
		return r.resolvePlace(ctx, req.PlaceID, req.Origin)
	}
	return r.resolveNearby(ctx, *req.Origin, req.RadiusKm)
}

func (r *Resolver) resolveNearby(ctx context.Context, origin geo.Point, radiusKm float64) Resolution {
	radiusKm = geo.ClampRadius(radiusKm, r.bounds)

	pctx, cancel := r.providerContext(ctx)
	raw, err := r.provider.Nearby(pctx, origin, radiusKm*1000)
	cancel()
	if err != nil {
		return failed(providerError(pctx, err))
	}

	cands := NormalizePlaces(raw, &origin)
	selected := -1
	for i, c := range cands {
		if c.ExternalID != "" {
			selected = i
			break
		}
	}
	if selected < 0 {
		// Nothing upsertable; whatever normalized is still worth showing.
		return Resolution{Kind: KindNotFound, Alternatives: cands}
	}

	est, err := r.upsert(ctx, cands[selected])
	if err != nil {
		return failed(err)
	}

	alts := make([]Candidate, 0, len(cands)-1)
	alts = append(alts, cands[:selected]...)
	alts = append(alts, cands[selected+1:]...)

	sel := cands[selected]
	return Resolution{Kind: KindResolved, Establishment: &est, Selected: &sel, Alternatives: alts}
}

// resolvePlace handles an explicit pick. The provider supplies the place;
// availability stays whatever the store already holds.
func (r *Resolver) resolvePlace(ctx context.Context, placeID string, origin *geo.Point) Resolution {
	pctx, cancel := r.providerContext(ctx)
	place, err := r.provider.Details(pctx, placeID)
	cancel()
	if err != nil {
		return failed(providerError(pctx, err))
	}
	if place == nil {
		return Resolution{Kind: KindNotFound, Alternatives: []Candidate{}}
	}
	if place.PlaceID == "" {
		place.PlaceID = placeID
	}

	if place.Location == nil && origin == nil {
		existing, err := r.store.GetByExternalID(ctx, place.PlaceID)
		switch {
		case err == nil:
			p := existing.GeoPoint()
			origin = &p
		case !errors.Is(err, ErrNotFound):
			return failed(storeError(err))
		}
	}

	cand, err := FromPlace(*place, origin)
	if err != nil {
		log.Printf("[resolver] place %s unusable: %v", placeID, err)
		return Resolution{Kind: KindNotFound, Alternatives: []Candidate{}}
	}

	est, err := r.upsert(ctx, cand)
	if err != nil {
		return failed(err)
	}
	return Resolution{Kind: KindResolved, Establishment: &est, Selected: &cand, Alternatives: []Candidate{}}
}

// upsert writes c, retrying once after a re-read when the store reports a
// conflicting concurrent write.
func (r *Resolver) upsert(ctx context.Context, c Candidate) (Establishment, error) {
	in := UpsertInput{
		ExternalID: c.ExternalID,
		Name:       c.Name,
		Address:    c.Address,
		Lat:        c.Lat,
		Lng:        c.Lng,
		Types:      c.Types,
	}

	est, err := r.store.UpsertByExternalID(ctx, in)
	if errors.Is(err, ErrConflict) {
		log.Printf("[resolver] upsert conflict on %s, retrying: %v", in.ExternalID, err)
		if _, gerr := r.store.GetByExternalID(ctx, in.ExternalID); gerr != nil && !errors.Is(gerr, ErrNotFound) {
			return Establishment{}, storeError(gerr)
		}
		est, err = r.store.UpsertByExternalID(ctx, in)
	}
	if err != nil {
		return Establishment{}, storeError(err)
	}
	return est, nil
}

func (r *Resolver) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func failed(err error) Resolution {
	return Resolution{Kind: KindError, Alternatives: []Candidate{}, Err: err}
}

func providerError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out: %w", ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}

func storeError(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
