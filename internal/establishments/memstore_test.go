package establishments

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

const sampleFixture = `
establishments:
  - external_id: ChIJherald
    name: Herald Square Deli
    address: 1328 Broadway
    lat: 40.7477
    lng: -73.9864
    types: [restaurant, food]
    submissions:
      - code: "1234"
        trust_tier: staff
        submitted_by: seed
        created_at: 2024-03-10T09:00:00Z
      - code: "9999"
        created_at: 2024-03-11T09:00:00Z
  - name: Koreatown Bakery
    lat: 40.7450
    lng: -73.9883
    restroom_available: false
`

func TestParseFixture(t *testing.T) {
	f, err := ParseFixture([]byte(sampleFixture))
	if err != nil {
		t.Fatalf("ParseFixture: %v", err)
	}
	if len(f.Establishments) != 2 {
		t.Fatalf("expected 2 establishments, got %d", len(f.Establishments))
	}

	e, subs := f.Establishments[0].Records()
	if e.ExternalID == nil || *e.ExternalID != "ChIJherald" {
		t.Errorf("external id not carried: %v", e.ExternalID)
	}
	if len(subs) != 2 || subs[1].TrustTier != TrustCrowd {
		t.Errorf("expected default crowd tier on second submission, got %+v", subs)
	}
	if e.RestroomAvailable == nil || !*e.RestroomAvailable {
		t.Errorf("establishments with codes are available")
	}

	bakery, _ := f.Establishments[1].Records()
	if bakery.Address != "Koreatown Bakery" {
		t.Errorf("expected name as address fallback, got %q", bakery.Address)
	}
	if bakery.RestroomAvailable == nil || *bakery.RestroomAvailable {
		t.Errorf("explicit restroom_available=false lost")
	}
}

func TestParseFixture_Rejects(t *testing.T) {
	tests := map[string]string{
		"blank name":   "establishments:\n  - name: ' '\n    lat: 1\n    lng: 1\n",
		"bad latitude": "establishments:\n  - name: A\n    lat: 91\n    lng: 1\n",
		"bad id":       "establishments:\n  - id: nope\n    name: A\n    lat: 1\n    lng: 1\n",
		"bad tier":     "establishments:\n  - name: A\n    lat: 1\n    lng: 1\n    submissions:\n      - code: '1'\n        trust_tier: owner\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFixture([]byte(raw)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestStableID_Deterministic(t *testing.T) {
	f, err := ParseFixture([]byte(sampleFixture))
	if err != nil {
		t.Fatalf("ParseFixture: %v", err)
	}
	again, _ := ParseFixture([]byte(sampleFixture))
	for i := range f.Establishments {
		if f.Establishments[i].StableID() != again.Establishments[i].StableID() {
			t.Errorf("establishment %d: id changed between loads", i)
		}
	}
	if f.Establishments[0].StableID() == f.Establishments[1].StableID() {
		t.Error("distinct establishments share an id")
	}
}

func TestLoadMemStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "establishments.yaml")
	if err := os.WriteFile(path, []byte(sampleFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := LoadMemStore(path)
	if err != nil {
		t.Fatalf("LoadMemStore: %v", err)
	}
	ctx := context.Background()

	e, err := store.GetByExternalID(ctx, "ChIJherald")
	if err != nil {
		t.Fatalf("GetByExternalID: %v", err)
	}
	subs, _ := store.ListSubmissions(ctx, []uuid.UUID{e.ID})
	latest := LatestSubmission(subs, e.ID)
	if latest == nil || latest.Code != "9999" {
		t.Errorf("expected latest code 9999, got %+v", latest)
	}

	if _, err := LoadMemStore(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMemStore_UpsertKeepsIDAndAvailability(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	first, err := store.UpsertByExternalID(ctx, UpsertInput{ExternalID: "x", Name: "A", Lat: 1, Lng: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetRestroomAvailable(ctx, first.ID, true); err != nil {
		t.Fatal(err)
	}
	second, err := store.UpsertByExternalID(ctx, UpsertInput{ExternalID: "x", Name: "B", Lat: 2, Lng: 2})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || second.Name != "B" || second.Lat != 2 {
		t.Errorf("unexpected upsert result %+v", second)
	}
	if second.RestroomAvailable == nil || !*second.RestroomAvailable {
		t.Errorf("upsert reset restroom_available")
	}

	if _, err := store.UpsertByExternalID(ctx, UpsertInput{Name: "no id"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMemStore_Reports(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	e := seed(t, store, "x", "X", heraldSquare)

	base := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{base.Add(-30 * time.Hour), base.Add(-2 * time.Hour), base} {
		if _, err := store.InsertReport(ctx, CodeReport{EstablishmentID: e.ID, Category: ReportOther, CreatedAt: at}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := store.CountReportsSince(ctx, e.ID, base.Add(-24*time.Hour))
	if err != nil || n != 2 {
		t.Errorf("expected 2 recent reports, got %d (%v)", n, err)
	}
	if _, err := store.InsertReport(ctx, CodeReport{EstablishmentID: uuid.New(), Category: ReportOther}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown establishment, got %v", err)
	}
}

func TestMemStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemStore().ListEstablishments(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
