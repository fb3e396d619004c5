package establishments

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/glitchcodes/restroom-backend/internal/geo"
)

// Establishment is the canonical record for one physical place.
type Establishment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID *string   `gorm:"uniqueIndex" json:"external_id,omitempty"` // provider place id, dedup key
	Name       string    `gorm:"not null" json:"name"`
	Address    string    `json:"address"`
	Lat        float64   `gorm:"not null;index:idx_establishment_lat_lng" json:"lat"`
	Lng        float64   `gorm:"not null;index:idx_establishment_lat_lng" json:"lng"`

	// nil means unknown. Only submissions and admins change it.
	RestroomAvailable *bool `json:"restroom_available"`

	PlaceTypes pq.StringArray `gorm:"type:text[]" json:"place_types,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (Establishment) TableName() string {
	return "restroom.establishments"
}

func (e Establishment) GeoKey() string      { return e.ID.String() }
func (e Establishment) GeoPoint() geo.Point { return geo.Point{Lat: e.Lat, Lng: e.Lng} }

// TrustTier is the credibility of a submitter, fixed at submission time.
type TrustTier string

const (
	TrustStaff TrustTier = "staff"
	TrustCrowd TrustTier = "crowd"
)

// Rank orders tiers so that staff sorts above crowd.
func (t TrustTier) Rank() int {
	if t == TrustStaff {
		return 1
	}
	return 0
}

// TierForRole maps an account role to the tier its submissions carry.
func TierForRole(role string) TrustTier {
	switch role {
	case "staff", "admin":
		return TrustStaff
	default:
		return TrustCrowd
	}
}

// CodeSubmission is one append-only report of a restroom code.
type CodeSubmission struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EstablishmentID uuid.UUID `gorm:"type:uuid;not null;index" json:"establishment_id"`
	Code            string    `gorm:"not null" json:"code"`
	SubmittedBy     string    `json:"submitted_by,omitempty"`
	TrustTier       TrustTier `gorm:"type:text;not null;default:'crowd'" json:"trust_tier"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
}

func (CodeSubmission) TableName() string {
	return "restroom.code_submissions"
}

// ReportCategory classifies a complaint about a code.
type ReportCategory string

const (
	ReportDidntWork  ReportCategory = "didnt_work"
	ReportWrongPlace ReportCategory = "wrong_place"
	ReportOther      ReportCategory = "other"
)

// Valid reports whether c is a known category.
func (c ReportCategory) Valid() bool {
	switch c {
	case ReportDidntWork, ReportWrongPlace, ReportOther:
		return true
	}
	return false
}

// CodeReport is a user complaint that a code did not work.
type CodeReport struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EstablishmentID uuid.UUID      `gorm:"type:uuid;not null;index:idx_report_establishment_created" json:"establishment_id"`
	ReporterID      string         `json:"reporter_id,omitempty"`
	Category        ReportCategory `gorm:"type:text;not null" json:"category"`
	Reason          string         `json:"reason,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index:idx_report_establishment_created" json:"created_at"`
}

func (CodeReport) TableName() string {
	return "restroom.code_reports"
}

// LatestCode is the latest submission as shown to clients.
type LatestCode struct {
	Code      string    `json:"code"`
	UpdatedAt time.Time `json:"code_updated_at"`
	TrustTier TrustTier `json:"trust_tier"`
}

// EstablishmentView is an establishment with its latest code attached.
type EstablishmentView struct {
	Establishment
	LatestCode *LatestCode `json:"latest_code,omitempty"`
}

// NearestResult is one row of a nearest search. DistanceKm is never stored.
type NearestResult struct {
	Establishment EstablishmentView `json:"establishment"`
	DistanceKm    float64           `json:"distance_km"`
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
