package establishments

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/glitchcodes/restroom-backend/internal/places"
)

func f64(v float64) *float64 { return &v }

func TestService_ResolveEndToEndNoCode(t *testing.T) {
	store := NewMemStore()
	provider := &fakeProvider{nearby: []places.Place{place("deli", "Corner Deli", ptr(heraldSquare))}}
	svc := newTestService(t, provider, store)

	out := svc.Resolve(context.Background(), ResolveRequest{Origin: ptr(heraldSquare), RadiusKm: math.NaN()})
	if out.Status != StatusNoCode {
		t.Fatalf("expected no_code, got %s (%s)", out.Status, out.Error)
	}
	if out.Establishment == nil || out.Establishment.Name != "Corner Deli" {
		t.Errorf("unexpected establishment %+v", out.Establishment)
	}
	if out.Establishment.Address != "Corner Deli vicinity" {
		t.Errorf("expected vicinity as address, got %q", out.Establishment.Address)
	}
	if out.Alternatives == nil || len(out.Alternatives) != 0 {
		t.Errorf("expected empty alternatives, got %#v", out.Alternatives)
	}
	if out.CodeReports24h != nil {
		t.Errorf("no_code must not carry a report count")
	}
}

func TestService_ResolveWithCodeAndReports(t *testing.T) {
	store := NewMemStore()
	provider := &fakeProvider{nearby: []places.Place{place("deli", "Corner Deli", ptr(heraldSquare))}}
	svc := newTestService(t, provider, store)
	now := t0.Add(48 * time.Hour)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	receipt, err := svc.Submit(ctx, Submitter{UserID: "u1", Tier: TrustCrowd}, SubmitRequest{
		PlaceID: "deli", Name: "Corner Deli", Lat: f64(heraldSquare.Lat), Lng: f64(heraldSquare.Lng), Code: " 4321 ",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	for _, at := range []time.Time{now.Add(-time.Hour), now.Add(-25 * time.Hour)} {
		store.now = func() time.Time { return at }
		if _, err := store.InsertReport(ctx, CodeReport{EstablishmentID: receipt.EstablishmentID, Category: ReportDidntWork}); err != nil {
			t.Fatalf("InsertReport: %v", err)
		}
	}

	out := svc.Resolve(ctx, ResolveRequest{Origin: ptr(heraldSquare), RadiusKm: math.NaN()})
	if out.Status != StatusCode || out.Code != "4321" {
		t.Fatalf("expected code 4321, got %s %q (%s)", out.Status, out.Code, out.Error)
	}
	if out.Establishment.ID != receipt.EstablishmentID {
		t.Errorf("resolve created a second establishment")
	}
	if out.CodeReports24h == nil || *out.CodeReports24h != 1 {
		t.Errorf("expected one report in the last 24h, got %v", out.CodeReports24h)
	}
}

func TestService_NoRestroomBeatsStaleCode(t *testing.T) {
	store := NewMemStore()
	provider := &fakeProvider{nearby: []places.Place{place("deli", "Corner Deli", ptr(heraldSquare))}}
	svc := newTestService(t, provider, store)
	ctx := context.Background()

	receipt, err := svc.Submit(ctx, Submitter{UserID: "staffer", Tier: TrustStaff}, SubmitRequest{
		PlaceID: "deli", Name: "Corner Deli", Lat: f64(heraldSquare.Lat), Lng: f64(heraldSquare.Lng), Code: "1111",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := svc.MarkUnavailable(ctx, receipt.EstablishmentID); err != nil {
		t.Fatalf("MarkUnavailable: %v", err)
	}

	out := svc.Resolve(ctx, ResolveRequest{Origin: ptr(heraldSquare), RadiusKm: math.NaN()})
	if out.Status != StatusNoRestroom {
		t.Fatalf("expected no_restroom, got %s", out.Status)
	}
	if out.Code != "" {
		t.Errorf("no_restroom must not expose the stale code, got %q", out.Code)
	}
}

func TestService_NotFoundUsesStoreAlternatives(t *testing.T) {
	store := NewMemStore()
	seed(t, store, "herald", "Herald Deli", heraldSquare)
	svc := newTestService(t, &fakeProvider{}, store)

	out := svc.Resolve(context.Background(), ResolveRequest{Origin: ptr(koreatown), RadiusKm: math.NaN()})
	if out.Status != StatusNotFound {
		t.Fatalf("expected not_found, got %s", out.Status)
	}
	if len(out.Alternatives) != 1 || out.Alternatives[0].ExternalID != "herald" {
		t.Errorf("expected stored establishment as alternative, got %+v", out.Alternatives)
	}
}

func TestService_ResolveErrorIsNotNotFound(t *testing.T) {
	svc := newTestService(t, &fakeProvider{err: errors.New("REQUEST_DENIED")}, NewMemStore())
	out := svc.Resolve(context.Background(), ResolveRequest{Origin: ptr(heraldSquare), RadiusKm: math.NaN()})
	if out.Status != StatusError {
		t.Fatalf("expected error, got %s", out.Status)
	}
	if !errors.Is(out.Err(), ErrProviderUnavailable) {
		t.Errorf("expected provider error, got %v", out.Err())
	}
}

func TestService_SubmitOpenAccess(t *testing.T) {
	store := NewMemStore()
	e := seed(t, store, "herald", "Herald Deli", heraldSquare)
	svc := newTestService(t, &fakeProvider{}, store)
	ctx := context.Background()

	receipt, err := svc.Submit(ctx, Submitter{UserID: "u1"}, SubmitRequest{EstablishmentID: e.ID.String(), OpenAccess: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.SubmissionID != nil || !receipt.OpenAccess || !receipt.RestroomAvailable {
		t.Errorf("unexpected receipt %+v", receipt)
	}

	subs, _ := store.ListSubmissions(ctx, []uuid.UUID{e.ID})
	if len(subs) != 0 {
		t.Errorf("open access must not record a submission, got %d", len(subs))
	}
	got, _ := store.GetByID(ctx, e.ID)
	if got.RestroomAvailable == nil || !*got.RestroomAvailable {
		t.Errorf("expected restroom_available=true, got %v", got.RestroomAvailable)
	}
}

func TestService_SubmitByPlaceIDCreatesOnce(t *testing.T) {
	store := NewMemStore()
	svc := newTestService(t, &fakeProvider{}, store)
	ctx := context.Background()
	req := SubmitRequest{PlaceID: "new-place", Name: "New Cafe", Address: "9 W 32nd St", Lat: f64(koreatown.Lat), Lng: f64(koreatown.Lng), Code: "2468"}

	first, err := svc.Submit(ctx, Submitter{UserID: "u1"}, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	req.Name = "Renamed By Client"
	second, err := svc.Submit(ctx, Submitter{UserID: "u2"}, req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.EstablishmentID != second.EstablishmentID {
		t.Errorf("expected the same establishment for the same place id")
	}

	e, err := store.GetByExternalID(ctx, "new-place")
	if err != nil {
		t.Fatalf("GetByExternalID: %v", err)
	}
	if e.Name != "New Cafe" || e.Address != "9 W 32nd St" {
		t.Errorf("existing row must keep its stored details, got %+v", e)
	}
	subs, _ := store.ListSubmissions(ctx, []uuid.UUID{e.ID})
	if len(subs) != 2 {
		t.Errorf("expected 2 submissions, got %d", len(subs))
	}
}

func TestService_SubmitRecordsTier(t *testing.T) {
	store := NewMemStore()
	e := seed(t, store, "herald", "Herald Deli", heraldSquare)
	svc := newTestService(t, &fakeProvider{}, store)
	ctx := context.Background()

	tests := []struct {
		tier TrustTier
		want TrustTier
	}{
		{TrustStaff, TrustStaff},
		{TrustCrowd, TrustCrowd},
		{"", TrustCrowd},
		{"wizard", TrustCrowd},
	}
	for _, tt := range tests {
		receipt, err := svc.Submit(ctx, Submitter{UserID: "u", Tier: tt.tier}, SubmitRequest{EstablishmentID: e.ID.String(), Code: "1"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if receipt.TrustTier != tt.want {
			t.Errorf("tier %q: expected %s, got %s", tt.tier, tt.want, receipt.TrustTier)
		}
	}
}

func TestService_SubmitValidation(t *testing.T) {
	store := NewMemStore()
	e := seed(t, store, "herald", "Herald Deli", heraldSquare)
	svc := newTestService(t, &fakeProvider{}, store)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"blank code", SubmitRequest{EstablishmentID: e.ID.String(), Code: "   "}, ErrInvalidInput},
		{"no reference", SubmitRequest{Code: "1"}, ErrInvalidInput},
		{"bad id", SubmitRequest{EstablishmentID: "nope", Code: "1"}, ErrInvalidInput},
		{"place without coordinate", SubmitRequest{PlaceID: "p", Name: "P", Code: "1"}, ErrInvalidInput},
		{"place with bad coordinate", SubmitRequest{PlaceID: "p", Name: "P", Lat: f64(91), Lng: f64(0), Code: "1"}, ErrInvalidInput},
		{"place without name", SubmitRequest{PlaceID: "p", Lat: f64(1), Lng: f64(1), Code: "1"}, ErrInvalidInput},
		{"unknown id", SubmitRequest{EstablishmentID: uuid.New().String(), Code: "1"}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Submit(ctx, Submitter{UserID: "u"}, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	subs, _ := store.ListSubmissions(ctx, []uuid.UUID{e.ID})
	if len(subs) != 0 {
		t.Errorf("rejected submissions must not be stored, got %d", len(subs))
	}
	if _, err := store.GetByExternalID(ctx, "p"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rejected place submission must not create a row")
	}
}

func TestService_Report(t *testing.T) {
	store := NewMemStore()
	e := seed(t, store, "herald", "Herald Deli", heraldSquare)
	svc := newTestService(t, &fakeProvider{}, store)
	ctx := context.Background()

	rep, err := svc.Report(ctx, Submitter{UserID: "u1"}, ReportRequest{EstablishmentID: e.ID.String(), Category: ReportDidntWork, Reason: "  keypad dead "})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.Reason != "keypad dead" || rep.ReporterID != "u1" {
		t.Errorf("unexpected report %+v", rep)
	}

	if _, err := svc.Report(ctx, Submitter{UserID: "u1"}, ReportRequest{EstablishmentID: e.ID.String(), Category: "rude"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown category, got %v", err)
	}
	if _, err := svc.Report(ctx, Submitter{UserID: "u1"}, ReportRequest{EstablishmentID: uuid.New().String(), Category: ReportOther}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown establishment, got %v", err)
	}
}

func TestService_Get(t *testing.T) {
	store := NewMemStore()
	e := seed(t, store, "herald", "Herald Deli", heraldSquare)
	svc := newTestService(t, &fakeProvider{}, store)
	ctx := context.Background()

	view, err := svc.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if view.LatestCode != nil {
		t.Errorf("expected no code yet")
	}

	if _, err := svc.Submit(ctx, Submitter{UserID: "u"}, SubmitRequest{EstablishmentID: e.ID.String(), Code: "77"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	view, _ = svc.Get(ctx, e.ID)
	if view.LatestCode == nil || view.LatestCode.Code != "77" {
		t.Errorf("expected latest code 77, got %+v", view.LatestCode)
	}

	if _, err := svc.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := newTestService(t, &fakeProvider{}, brokenStore{}).Get(ctx, e.ID); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestService_HealthCheck(t *testing.T) {
	if err := newTestService(t, &fakeProvider{}, NewMemStore()).HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}
	err := newTestService(t, &fakeProvider{err: errors.New("down")}, NewMemStore()).HealthCheck(context.Background())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}
