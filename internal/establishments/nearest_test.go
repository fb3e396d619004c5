package establishments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/glitchcodes/restroom-backend/internal/geo"
)

func seed(t *testing.T, s *MemStore, id, name string, p geo.Point) Establishment {
	t.Helper()
	e, err := s.UpsertByExternalID(context.Background(), UpsertInput{ExternalID: id, Name: name, Address: name, Lat: p.Lat, Lng: p.Lng})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return e
}

func TestNearest_FiltersAndSorts(t *testing.T) {
	store := NewMemStore()
	seed(t, store, "ktown", "Koreatown Cafe", koreatown)
	seed(t, store, "herald", "Herald Deli", heraldSquare)
	seed(t, store, "brooklyn", "Far Away", geo.Point{Lat: 40.6782, Lng: -73.9442})

	agg := NewAggregator(store, testConfig())
	got, err := agg.Nearest(context.Background(), heraldSquare, math.NaN())
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results in the default radius, got %d", len(got))
	}
	if got[0].Establishment.Name != "Herald Deli" || got[1].Establishment.Name != "Koreatown Cafe" {
		t.Errorf("unexpected order: %s, %s", got[0].Establishment.Name, got[1].Establishment.Name)
	}
	if got[0].DistanceKm > got[1].DistanceKm {
		t.Errorf("distances not ascending: %v > %v", got[0].DistanceKm, got[1].DistanceKm)
	}
}

func TestNearest_RadiusClampedToBounds(t *testing.T) {
	store := NewMemStore()
	seed(t, store, "ktown", "Koreatown Cafe", koreatown)

	agg := NewAggregator(store, testConfig())
	// 0.001 km clamps up to 50 m; Koreatown is ~340 m away.
	got, err := agg.Nearest(context.Background(), heraldSquare, 0.001)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected nothing within 50 m, got %d", len(got))
	}
}

func TestNearest_EmptyIsNonNil(t *testing.T) {
	agg := NewAggregator(NewMemStore(), testConfig())
	got, err := agg.Nearest(context.Background(), heraldSquare, 1)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty, non-nil slice, got %#v", got)
	}
}

func TestNearest_TruncatesToMaxResults(t *testing.T) {
	store := NewMemStore()
	for i := 0; i < 8; i++ {
		p := geo.Point{Lat: heraldSquare.Lat + float64(i)*0.0001, Lng: heraldSquare.Lng}
		seed(t, store, fmt.Sprintf("p%d", i), fmt.Sprintf("Place %d", i), p)
	}
	cfg := testConfig()
	cfg.MaxResults = 3

	got, err := NewAggregator(store, cfg).Nearest(context.Background(), heraldSquare, math.NaN())
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	for i, r := range got {
		if want := fmt.Sprintf("Place %d", i); r.Establishment.Name != want {
			t.Errorf("result %d: expected %s, got %s", i, want, r.Establishment.Name)
		}
	}
}

func TestNearest_AttachesLatestCode(t *testing.T) {
	store := NewMemStore()
	e := seed(t, store, "herald", "Herald Deli", heraldSquare)
	seed(t, store, "ktown", "Koreatown Cafe", koreatown)

	ctx := context.Background()
	for _, s := range []CodeSubmission{
		{EstablishmentID: e.ID, Code: "1234", TrustTier: TrustStaff, CreatedAt: t0},
		{EstablishmentID: e.ID, Code: "5678", TrustTier: TrustCrowd, CreatedAt: t0.Add(time.Hour)},
	} {
		if _, err := store.AppendSubmission(ctx, s); err != nil {
			t.Fatalf("AppendSubmission: %v", err)
		}
	}

	got, err := NewAggregator(store, testConfig()).Nearest(ctx, heraldSquare, math.NaN())
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if got[0].Establishment.LatestCode == nil || got[0].Establishment.LatestCode.Code != "5678" {
		t.Errorf("expected latest code 5678, got %+v", got[0].Establishment.LatestCode)
	}
	if got[1].Establishment.LatestCode != nil {
		t.Errorf("expected no code for Koreatown, got %+v", got[1].Establishment.LatestCode)
	}
}

func TestNearest_InvalidOrigin(t *testing.T) {
	agg := NewAggregator(NewMemStore(), testConfig())
	_, err := agg.Nearest(context.Background(), geo.Point{Lat: math.Inf(1), Lng: 0}, 1)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNearest_StoreFailure(t *testing.T) {
	agg := NewAggregator(brokenStore{}, testConfig())
	_, err := agg.Nearest(context.Background(), heraldSquare, 1)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAlternatives_FromStore(t *testing.T) {
	store := NewMemStore()
	seed(t, store, "ktown", "Koreatown Cafe", koreatown)
	seed(t, store, "herald", "Herald Deli", heraldSquare)

	got, err := NewAggregator(store, testConfig()).Alternatives(context.Background(), heraldSquare, 1)
	if err != nil {
		t.Fatalf("Alternatives: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "herald" || got[0].InternalID == nil {
		t.Errorf("expected the nearest stored establishment, got %+v", got)
	}

	none, err := NewAggregator(store, testConfig()).Alternatives(context.Background(), heraldSquare, 0)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("expected empty alternatives for limit 0, got %v, %v", none, err)
	}
}
