package establishments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glitchcodes/restroom-backend/internal/geo"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// GormStore persists establishments in Postgres under the restroom schema.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) UpsertByExternalID(ctx context.Context, in UpsertInput) (Establishment, error) {
	if in.ExternalID == "" {
		return Establishment{}, fmt.Errorf("%w: external id is required", ErrInvalidInput)
	}

	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	e := Establishment{
		ID:         id,
		ExternalID: strPtr(in.ExternalID),
		Name:       in.Name,
		Address:    in.Address,
		Lat:        in.Lat,
		Lng:        in.Lng,
		PlaceTypes: pq.StringArray(in.Types),
	}

	// RETURNING * hands back the surviving row, so on conflict e.ID and
	// e.RestroomAvailable reflect what was already stored.
	err := s.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "external_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "address", "lat", "lng", "place_types", "updated_at",
				}),
			},
			clause.Returning{},
		).
		Create(&e).Error
	if err != nil {
		return Establishment{}, mapStoreError(err)
	}
	return e, nil
}

func (s *GormStore) GetByID(ctx context.Context, id uuid.UUID) (Establishment, error) {
	var e Establishment
	if err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return Establishment{}, mapStoreError(err)
	}
	return e, nil
}

func (s *GormStore) GetByExternalID(ctx context.Context, externalID string) (Establishment, error) {
	var e Establishment
	if err := s.db.WithContext(ctx).First(&e, "external_id = ?", externalID).Error; err != nil {
		return Establishment{}, mapStoreError(err)
	}
	return e, nil
}

func (s *GormStore) ListEstablishments(ctx context.Context, box *geo.Box) ([]Establishment, error) {
	q := s.db.WithContext(ctx).Model(&Establishment{})
	if box != nil {
		q = q.Where("lat BETWEEN ? AND ?", box.MinLat, box.MaxLat).
			Where("lng BETWEEN ? AND ?", box.MinLng, box.MaxLng)
	}

	var out []Establishment
	if err := q.Order("id").Find(&out).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return out, nil
}

func (s *GormStore) SetRestroomAvailable(ctx context.Context, id uuid.UUID, available bool) error {
	res := s.db.WithContext(ctx).
		Model(&Establishment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"restroom_available": available,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return mapStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AppendSubmission(ctx context.Context, sub CodeSubmission) (CodeSubmission, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Establishment{}).
			Where("id = ?", sub.EstablishmentID).
			Updates(map[string]interface{}{
				"restroom_available": true,
				"updated_at":         time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(&sub).Error
	})
	if err != nil {
		return CodeSubmission{}, mapStoreError(err)
	}
	return sub, nil
}

func (s *GormStore) ListSubmissions(ctx context.Context, establishmentIDs []uuid.UUID) ([]CodeSubmission, error) {
	if len(establishmentIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(establishmentIDs))
	for i, id := range establishmentIDs {
		ids[i] = id.String()
	}

	var out []CodeSubmission
	if err := s.db.WithContext(ctx).
		Where("establishment_id = ANY(?::uuid[])", pq.Array(ids)).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return out, nil
}

func (s *GormStore) InsertReport(ctx context.Context, rep CodeReport) (CodeReport, error) {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(&rep).Error; err != nil {
		return CodeReport{}, mapStoreError(err)
	}
	return rep, nil
}

func (s *GormStore) CountReportsSince(ctx context.Context, establishmentID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).
		Model(&CodeReport{}).
		Where("establishment_id = ? AND created_at >= ?", establishmentID, since).
		Count(&n).Error; err != nil {
		return 0, mapStoreError(err)
	}
	return n, nil
}

// mapStoreError translates driver errors into the package sentinels.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
