package establishments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/glitchcodes/restroom-backend/internal/geo"
	"github.com/glitchcodes/restroom-backend/internal/places"
)

var (
	heraldSquare = geo.Point{Lat: 40.7477, Lng: -73.9864}
	koreatown    = geo.Point{Lat: 40.7450, Lng: -73.9883}
)

func ptr(p geo.Point) *geo.Point { return &p }

// fakeProvider returns canned places and records how it was called.
type fakeProvider struct {
	mu          sync.Mutex
	nearby      []places.Place
	details     map[string]places.Place
	err         error
	block       bool // wait for ctx to end, simulating a hung provider
	nearbyCalls int
	lastRadiusM float64
}

var _ places.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Nearby(ctx context.Context, origin geo.Point, radiusMeters float64) ([]places.Place, error) {
	f.mu.Lock()
	f.nearbyCalls++
	f.lastRadiusM = radiusMeters
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]places.Place, len(f.nearby))
	copy(out, f.nearby)
	return out, nil
}

func (f *fakeProvider) Details(ctx context.Context, placeID string) (*places.Place, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.details[placeID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) error { return f.err }

// conflictStore fails the first n upserts with ErrConflict.
type conflictStore struct {
	*MemStore
	mu        sync.Mutex
	conflicts int
	upserts   int
}

func (s *conflictStore) UpsertByExternalID(ctx context.Context, in UpsertInput) (Establishment, error) {
	s.mu.Lock()
	s.upserts++
	fail := s.conflicts > 0
	if fail {
		s.conflicts--
	}
	s.mu.Unlock()
	if fail {
		return Establishment{}, ErrConflict
	}
	return s.MemStore.UpsertByExternalID(ctx, in)
}

var errDiskOnFire = errors.New("disk on fire")

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) UpsertByExternalID(context.Context, UpsertInput) (Establishment, error) {
	return Establishment{}, errDiskOnFire
}
func (brokenStore) GetByID(context.Context, uuid.UUID) (Establishment, error) {
	return Establishment{}, errDiskOnFire
}
func (brokenStore) GetByExternalID(context.Context, string) (Establishment, error) {
	return Establishment{}, errDiskOnFire
}
func (brokenStore) ListEstablishments(context.Context, *geo.Box) ([]Establishment, error) {
	return nil, errDiskOnFire
}
func (brokenStore) SetRestroomAvailable(context.Context, uuid.UUID, bool) error {
	return errDiskOnFire
}
func (brokenStore) AppendSubmission(context.Context, CodeSubmission) (CodeSubmission, error) {
	return CodeSubmission{}, errDiskOnFire
}
func (brokenStore) ListSubmissions(context.Context, []uuid.UUID) ([]CodeSubmission, error) {
	return nil, errDiskOnFire
}
func (brokenStore) InsertReport(context.Context, CodeReport) (CodeReport, error) {
	return CodeReport{}, errDiskOnFire
}
func (brokenStore) CountReportsSince(context.Context, uuid.UUID, time.Time) (int64, error) {
	return 0, errDiskOnFire
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ProviderTimeout = 200 * time.Millisecond
	return cfg
}

func newTestService(t *testing.T, p places.Provider, s Store) *Service {
	t.Helper()
	return NewService(s, p, testConfig())
}

func place(id, name string, loc *geo.Point) places.Place {
	return places.Place{PlaceID: id, Name: name, Vicinity: name + " vicinity", Location: loc}
}
