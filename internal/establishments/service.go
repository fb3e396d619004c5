package establishments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glitchcodes/restroom-backend/internal/geo"
	"github.com/glitchcodes/restroom-backend/internal/places"
)

// reportWindow is how far back code_reports_24h looks.
const reportWindow = 24 * time.Hour

// Service ties the resolver, the nearest search and the write paths to one
// store and one provider.
type Service struct {
	store    Store
	provider places.Provider
	resolver *Resolver
	nearest  *Aggregator
	cfg      Config
	now      func() time.Time
}

func NewService(store Store, provider places.Provider, cfg Config) *Service {
	return &Service{
		store:    store,
		provider: provider,
		resolver: NewResolver(provider, store, cfg),
		nearest:  NewAggregator(store, cfg),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Resolve runs the resolver and derives the user-facing outcome. It always
// returns one of the five statuses.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) Outcome {
	res := s.resolver.Resolve(ctx, req)

	switch res.Kind {
	case KindError:
		log.Printf("[resolver] resolve failed: %v", res.Err)
		return Derive(res, nil)

	case KindNotFound:
		if req.Origin != nil && len(res.Alternatives) == 0 {
			alts, err := s.nearest.Alternatives(ctx, *req.Origin, s.cfg.FallbackAlternatives)
			if err != nil {
				log.Printf("[resolver] store fallback failed: %v", err)
			} else {
				res.Alternatives = alts
			}
		}
		return Derive(res, nil)
	}

	subs, err := s.store.ListSubmissions(ctx, []uuid.UUID{res.Establishment.ID})
	if err != nil {
		return ErrorOutcome(storeError(err))
	}

	out := Derive(res, subs)
	if out.Status == StatusCode {
		n, err := s.store.CountReportsSince(ctx, res.Establishment.ID, s.now().Add(-reportWindow))
		if err != nil {
			log.Printf("[resolver] counting reports for %s: %v", res.Establishment.ID, err)
		} else {
			out.CodeReports24h = &n
		}
	}
	return out
}

// Nearest lists establishments around origin.
func (s *Service) Nearest(ctx context.Context, origin geo.Point, radiusKm float64) ([]NearestResult, error) {
	return s.nearest.Nearest(ctx, origin, radiusKm)
}

// Get returns one establishment with its latest code.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (EstablishmentView, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return EstablishmentView{}, lookupError(err)
	}
	subs, err := s.store.ListSubmissions(ctx, []uuid.UUID{e.ID})
	if err != nil {
		return EstablishmentView{}, storeError(err)
	}
	return EstablishmentView{Establishment: e, LatestCode: latestCodeOf(LatestSubmission(subs, e.ID))}, nil
}

// Submitter is the caller of a write, as established by the session.
type Submitter struct {
	UserID string
	Tier   TrustTier
}

// SubmitRequest references an establishment by id, or by place id plus
// enough detail to create it.
type SubmitRequest struct {
	EstablishmentID string   `json:"establishment_id"`
	PlaceID         string   `json:"place_id"`
	Name            string   `json:"name"`
	Address         string   `json:"address"`
	Lat             *float64 `json:"lat"`
	Lng             *float64 `json:"lng"`
	Code            string   `json:"code"`
	OpenAccess      bool     `json:"open_access"`
}

// SubmitReceipt acknowledges a submission.
type SubmitReceipt struct {
	EstablishmentID   uuid.UUID  `json:"establishment_id"`
	SubmissionID      *uuid.UUID `json:"submission_id,omitempty"`
	TrustTier         TrustTier  `json:"trust_tier"`
	OpenAccess        bool       `json:"open_access"`
	RestroomAvailable bool       `json:"restroom_available"`
}

// Submit records a code, or marks the restroom as open access. All input
// checks happen before the store is touched.
func (s *Service) Submit(ctx context.Context, who Submitter, req SubmitRequest) (SubmitReceipt, error) {
	code := strings.TrimSpace(req.Code)
	if !req.OpenAccess && code == "" {
		return SubmitReceipt{}, fmt.Errorf("%w: code is required", ErrInvalidInput)
	}

	tier := who.Tier
	if tier != TrustStaff {
		tier = TrustCrowd
	}

	ref, err := parseReference(req)
	if err != nil {
		return SubmitReceipt{}, err
	}

	estID, err := s.ensureEstablishment(ctx, ref)
	if err != nil {
		return SubmitReceipt{}, err
	}

	receipt := SubmitReceipt{
		EstablishmentID:   estID,
		TrustTier:         tier,
		OpenAccess:        req.OpenAccess,
		RestroomAvailable: true,
	}

	if req.OpenAccess {
		if err := s.store.SetRestroomAvailable(ctx, estID, true); err != nil {
			return SubmitReceipt{}, lookupError(err)
		}
		log.Printf("[submit] %s marked open access by %s", estID, who.UserID)
		return receipt, nil
	}

	sub, err := s.store.AppendSubmission(ctx, CodeSubmission{
		ID:              uuid.New(),
		EstablishmentID: estID,
		Code:            code,
		SubmittedBy:     who.UserID,
		TrustTier:       tier,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		return SubmitReceipt{}, lookupError(err)
	}
	receipt.SubmissionID = &sub.ID
	log.Printf("[submit] %s code recorded (%s) by %s", estID, tier, who.UserID)
	return receipt, nil
}

type submitReference struct {
	id        uuid.UUID
	candidate *Candidate
}

func parseReference(req SubmitRequest) (submitReference, error) {
	if id := strings.TrimSpace(req.EstablishmentID); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return submitReference{}, fmt.Errorf("%w: bad establishment_id", ErrInvalidInput)
		}
		return submitReference{id: parsed}, nil
	}

	placeID := strings.TrimSpace(req.PlaceID)
	if placeID == "" {
		return submitReference{}, fmt.Errorf("%w: establishment_id or place_id is required", ErrInvalidInput)
	}
	if req.Lat == nil || req.Lng == nil {
		return submitReference{}, fmt.Errorf("%w: lat and lng are required with place_id", ErrInvalidInput)
	}
	origin := geo.Point{Lat: *req.Lat, Lng: *req.Lng}
	if err := origin.Validate(); err != nil {
		return submitReference{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	c, err := FromPlace(places.Place{
		PlaceID:          placeID,
		Name:             req.Name,
		FormattedAddress: req.Address,
		Location:         &origin,
	}, nil)
	if err != nil {
		return submitReference{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return submitReference{candidate: &c}, nil
}

// ensureEstablishment returns the referenced id, creating the row for an
// unseen place id. An existing row keeps its stored name and address.
func (s *Service) ensureEstablishment(ctx context.Context, ref submitReference) (uuid.UUID, error) {
	if ref.candidate == nil {
		e, err := s.store.GetByID(ctx, ref.id)
		if err != nil {
			return uuid.Nil, lookupError(err)
		}
		return e.ID, nil
	}

	c := ref.candidate
	existing, err := s.store.GetByExternalID(ctx, c.ExternalID)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return uuid.Nil, storeError(err)
	}

	est, err := s.resolver.upsert(ctx, *c)
	if err != nil {
		return uuid.Nil, err
	}
	return est.ID, nil
}

// ReportRequest is a complaint about the current code.
type ReportRequest struct {
	EstablishmentID string         `json:"establishment_id"`
	Category        ReportCategory `json:"category"`
	Reason          string         `json:"reason"`
}

// Report records a code issue against an establishment.
func (s *Service) Report(ctx context.Context, who Submitter, req ReportRequest) (CodeReport, error) {
	id, err := uuid.Parse(strings.TrimSpace(req.EstablishmentID))
	if err != nil {
		return CodeReport{}, fmt.Errorf("%w: bad establishment_id", ErrInvalidInput)
	}
	if !req.Category.Valid() {
		return CodeReport{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, req.Category)
	}

	rep, err := s.store.InsertReport(ctx, CodeReport{
		ID:              uuid.New(),
		EstablishmentID: id,
		ReporterID:      who.UserID,
		Category:        req.Category,
		Reason:          strings.TrimSpace(req.Reason),
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		return CodeReport{}, lookupError(err)
	}
	return rep, nil
}

// MarkUnavailable records that an establishment has no restroom.
func (s *Service) MarkUnavailable(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SetRestroomAvailable(ctx, id, false); err != nil {
		return lookupError(err)
	}
	log.Printf("[admin] %s marked without restroom", id)
	return nil
}

// HealthCheck reports whether the places provider is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	if err := s.provider.HealthCheck(pctx); err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return nil
}

// lookupError keeps ErrNotFound and ErrReadOnly visible and wraps everything else.
func lookupError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, ErrReadOnly) {
		return err
	}
	return storeError(err)
}
