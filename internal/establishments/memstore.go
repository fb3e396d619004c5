package establishments

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"

	"github.com/glitchcodes/restroom-backend/internal/geo"
)

// MemStore keeps everything in process memory. It backs local development,
// demo data and tests.
type MemStore struct {
	mu          sync.RWMutex
	byID        map[uuid.UUID]Establishment
	byExternal  map[string]uuid.UUID
	submissions map[uuid.UUID][]CodeSubmission
	reports     map[uuid.UUID][]CodeReport
	now         func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		byID:        make(map[uuid.UUID]Establishment),
		byExternal:  make(map[string]uuid.UUID),
		submissions: make(map[uuid.UUID][]CodeSubmission),
		reports:     make(map[uuid.UUID][]CodeReport),
		now:         time.Now,
	}
}

func (s *MemStore) UpsertByExternalID(ctx context.Context, in UpsertInput) (Establishment, error) {
	if err := ctx.Err(); err != nil {
		return Establishment{}, err
	}
	if in.ExternalID == "" {
		return Establishment{}, fmt.Errorf("%w: external id is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byExternal[in.ExternalID]; ok {
		e := s.byID[id]
		e.Name = in.Name
		e.Address = in.Address
		e.Lat = in.Lat
		e.Lng = in.Lng
		e.PlaceTypes = in.Types
		e.UpdatedAt = now
		s.byID[id] = e
		return e, nil
	}

	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	if _, taken := s.byID[id]; taken {
		return Establishment{}, fmt.Errorf("%w: id %s already stored", ErrConflict, id)
	}

	e := Establishment{
		ID:         id,
		ExternalID: strPtr(in.ExternalID),
		Name:       in.Name,
		Address:    in.Address,
		Lat:        in.Lat,
		Lng:        in.Lng,
		PlaceTypes: in.Types,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.byID[e.ID] = e
	s.byExternal[in.ExternalID] = e.ID
	return e, nil
}

func (s *MemStore) GetByID(ctx context.Context, id uuid.UUID) (Establishment, error) {
	if err := ctx.Err(); err != nil {
		return Establishment{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return Establishment{}, ErrNotFound
	}
	return e, nil
}

func (s *MemStore) GetByExternalID(ctx context.Context, externalID string) (Establishment, error) {
	if err := ctx.Err(); err != nil {
		return Establishment{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalID]
	if !ok {
		return Establishment{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemStore) ListEstablishments(ctx context.Context, box *geo.Box) ([]Establishment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Establishment, 0, len(s.byID))
	for _, e := range s.byID {
		if box != nil && !box.Contains(e.GeoPoint()) {
			continue
		}
		out = append(out, e)
	}
	// Map iteration order is random; keep listings reproducible.
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *MemStore) SetRestroomAvailable(ctx context.Context, id uuid.UUID, available bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	e.RestroomAvailable = boolPtr(available)
	e.UpdatedAt = s.now()
	s.byID[id] = e
	return nil
}

func (s *MemStore) AppendSubmission(ctx context.Context, sub CodeSubmission) (CodeSubmission, error) {
	if err := ctx.Err(); err != nil {
		return CodeSubmission{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[sub.EstablishmentID]
	if !ok {
		return CodeSubmission{}, ErrNotFound
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	s.submissions[sub.EstablishmentID] = append(s.submissions[sub.EstablishmentID], sub)

	e.RestroomAvailable = boolPtr(true)
	e.UpdatedAt = s.now()
	s.byID[e.ID] = e
	return sub, nil
}

func (s *MemStore) ListSubmissions(ctx context.Context, establishmentIDs []uuid.UUID) ([]CodeSubmission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []CodeSubmission
	for _, id := range establishmentIDs {
		out = append(out, s.submissions[id]...)
	}
	return out, nil
}

func (s *MemStore) InsertReport(ctx context.Context, rep CodeReport) (CodeReport, error) {
	if err := ctx.Err(); err != nil {
		return CodeReport{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rep.EstablishmentID]; !ok {
		return CodeReport{}, ErrNotFound
	}
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = s.now()
	}
	s.reports[rep.EstablishmentID] = append(s.reports[rep.EstablishmentID], rep)
	return rep, nil
}

func (s *MemStore) CountReportsSince(ctx context.Context, establishmentID uuid.UUID, since time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.reports[establishmentID] {
		if !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// put inserts a fully formed establishment, used by fixture loading.
func (s *MemStore) put(e Establishment, subs []CodeSubmission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[e.ID] = e
	if e.ExternalID != nil {
		s.byExternal[*e.ExternalID] = e.ID
	}
	s.submissions[e.ID] = append(s.submissions[e.ID], subs...)
}

// LoadMemStore builds a MemStore from a YAML fixture file.
func LoadMemStore(path string) (*MemStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := ParseFixture(raw)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	s := NewMemStore()
	for _, fe := range f.Establishments {
		e, subs := fe.Records()
		s.put(e, subs)
	}
	return s, nil
}

// Fixture is the YAML layout shared by the fixture store and cmd/seed.
type Fixture struct {
	Establishments []FixtureEstablishment `yaml:"establishments"`
}

type FixtureEstablishment struct {
	ID                string              `yaml:"id"`
	ExternalID        string              `yaml:"external_id"`
	Name              string              `yaml:"name"`
	Address           string              `yaml:"address"`
	Lat               float64             `yaml:"lat"`
	Lng               float64             `yaml:"lng"`
	RestroomAvailable *bool               `yaml:"restroom_available"`
	Types             []string            `yaml:"types"`
	Submissions       []FixtureSubmission `yaml:"submissions"`
}

type FixtureSubmission struct {
	Code        string    `yaml:"code"`
	TrustTier   TrustTier `yaml:"trust_tier"`
	SubmittedBy string    `yaml:"submitted_by"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// fixtureNamespace seeds deterministic ids so reloading a fixture keeps
// establishment ids stable.
var fixtureNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("restroom-backend/fixtures"))

// ParseFixture decodes and validates fixture YAML.
func ParseFixture(raw []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	for i, fe := range f.Establishments {
		if cleanText(fe.Name) == "" {
			return nil, fmt.Errorf("establishment %d: name is required", i)
		}
		if err := (geo.Point{Lat: fe.Lat, Lng: fe.Lng}).Validate(); err != nil {
			return nil, fmt.Errorf("establishment %d (%s): %w", i, fe.Name, err)
		}
		if fe.ID != "" {
			if _, err := uuid.Parse(fe.ID); err != nil {
				return nil, fmt.Errorf("establishment %d (%s): bad id: %w", i, fe.Name, err)
			}
		}
		for j, sub := range fe.Submissions {
			if sub.TrustTier != "" && sub.TrustTier != TrustStaff && sub.TrustTier != TrustCrowd {
				return nil, fmt.Errorf("establishment %d submission %d: unknown trust tier %q", i, j, sub.TrustTier)
			}
		}
	}
	return &f, nil
}

// StableID returns the explicit id, or one derived from the external id
// (or name and coordinate when there is none).
func (fe FixtureEstablishment) StableID() uuid.UUID {
	if id, err := uuid.Parse(fe.ID); err == nil {
		return id
	}
	key := fe.ExternalID
	if key == "" {
		key = fmt.Sprintf("%s@%.6f,%.6f", cleanText(fe.Name), fe.Lat, fe.Lng)
	}
	return uuid.NewSHA1(fixtureNamespace, []byte(key))
}

// Records converts the fixture entry to store rows.
func (fe FixtureEstablishment) Records() (Establishment, []CodeSubmission) {
	id := fe.StableID()
	name := cleanText(fe.Name)
	e := Establishment{
		ID:                id,
		Name:              name,
		Address:           firstNonEmpty(cleanText(fe.Address), name),
		Lat:               fe.Lat,
		Lng:               fe.Lng,
		RestroomAvailable: fe.RestroomAvailable,
		PlaceTypes:        fe.Types,
	}
	if fe.ExternalID != "" {
		e.ExternalID = strPtr(fe.ExternalID)
	}

	subs := make([]CodeSubmission, 0, len(fe.Submissions))
	for i, fs := range fe.Submissions {
		tier := fs.TrustTier
		if tier == "" {
			tier = TrustCrowd
		}
		subs = append(subs, CodeSubmission{
			ID:              uuid.NewSHA1(id, []byte(fmt.Sprintf("submission-%d", i))),
			EstablishmentID: id,
			Code:            fs.Code,
			SubmittedBy:     fs.SubmittedBy,
			TrustTier:       tier,
			CreatedAt:       fs.CreatedAt,
		})
	}
	if len(subs) > 0 && e.RestroomAvailable == nil {
		e.RestroomAvailable = boolPtr(true)
	}
	return e, subs
}
