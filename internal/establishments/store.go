package establishments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/glitchcodes/restroom-backend/internal/geo"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflicting write")
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrReadOnly marks an establishment that only a read-only tier holds
	// and that cannot be copied into a writable one.
	ErrReadOnly = errors.New("establishment is read-only")
)

// UpsertInput is what the resolver writes for a provider place. It never
// carries restroom availability; that flag is owned by the store.
type UpsertInput struct {
	// ID, when set, becomes the id of a newly inserted row. An existing row
	// keeps its own id.
	ID         uuid.UUID
	ExternalID string
	Name       string
	Address    string
	Lat        float64
	Lng        float64
	Types      []string
}

// Store is the durable collaborator behind the resolver, the nearest search
// and submissions. Implementations must make UpsertByExternalID atomic and
// AppendSubmission all-or-nothing.
type Store interface {
	// UpsertByExternalID inserts a new establishment or updates name,
	// address, coordinate and types of the existing one, keeping its id.
	UpsertByExternalID(ctx context.Context, in UpsertInput) (Establishment, error)

	GetByID(ctx context.Context, id uuid.UUID) (Establishment, error)
	GetByExternalID(ctx context.Context, externalID string) (Establishment, error)

	// ListEstablishments returns every establishment inside box, or all of
	// them when box is nil.
	ListEstablishments(ctx context.Context, box *geo.Box) ([]Establishment, error)

	SetRestroomAvailable(ctx context.Context, id uuid.UUID, available bool) error

	// AppendSubmission inserts sub and marks its establishment as having a
	// restroom in one step.
	AppendSubmission(ctx context.Context, sub CodeSubmission) (CodeSubmission, error)

	ListSubmissions(ctx context.Context, establishmentIDs []uuid.UUID) ([]CodeSubmission, error)

	InsertReport(ctx context.Context, rep CodeReport) (CodeReport, error)
	CountReportsSince(ctx context.Context, establishmentID uuid.UUID, since time.Time) (int64, error)
}
