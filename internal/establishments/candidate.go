package establishments

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/glitchcodes/restroom-backend/internal/geo"
	"github.com/glitchcodes/restroom-backend/internal/places"
)

var ErrInvalidCandidate = errors.New("invalid candidate")

// Candidate is a not-yet-canonical place, from the provider or the store.
type Candidate struct {
	ExternalID    string     `json:"external_id,omitempty"`
	InternalID    *uuid.UUID `json:"internal_id,omitempty"`
	Name          string     `json:"name"`
	Address       string     `json:"address"`
	Lat           float64    `json:"lat"`
	Lng           float64    `json:"lng"`
	Code          *string    `json:"code,omitempty"`
	CodeUpdatedAt *time.Time `json:"code_updated_at,omitempty"`
	Types         []string   `json:"types,omitempty"`

	// Set when the provider had no geometry and the query origin stood in.
	ApproximateLocation bool `json:"approximate_location,omitempty"`
}

// FromPlace normalizes a provider place. origin, when non-nil, replaces a
// missing or invalid provider location.
func FromPlace(p places.Place, origin *geo.Point) (Candidate, error) {
	name := cleanText(p.Name)
	if name == "" {
		return Candidate{}, fmt.Errorf("%w: place %q has no name", ErrInvalidCandidate, p.PlaceID)
	}

	c := Candidate{
		ExternalID: strings.TrimSpace(p.PlaceID),
		Name:       name,
		Address:    firstNonEmpty(cleanText(p.Vicinity), cleanText(p.FormattedAddress), name),
		Types:      p.Types,
	}

	switch {
	case p.Location != nil && p.Location.Validate() == nil:
		c.Lat, c.Lng = p.Location.Lat, p.Location.Lng
	case origin != nil:
		c.Lat, c.Lng = origin.Lat, origin.Lng
		c.ApproximateLocation = true
	default:
		return Candidate{}, fmt.Errorf("%w: place %q has no location", ErrInvalidCandidate, p.PlaceID)
	}
	return c, nil
}

// FromEstablishment normalizes a store row, attaching latest when present.
func FromEstablishment(e Establishment, latest *CodeSubmission) (Candidate, error) {
	name := cleanText(e.Name)
	if name == "" {
		return Candidate{}, fmt.Errorf("%w: establishment %s has no name", ErrInvalidCandidate, e.ID)
	}
	id := e.ID
	c := Candidate{
		InternalID: &id,
		Name:       name,
		Address:    firstNonEmpty(cleanText(e.Address), name),
		Lat:        e.Lat,
		Lng:        e.Lng,
		Types:      e.PlaceTypes,
	}
	if e.ExternalID != nil {
		c.ExternalID = *e.ExternalID
	}
	if latest != nil {
		code := latest.Code
		at := latest.CreatedAt
		c.Code = &code
		c.CodeUpdatedAt = &at
	}
	return c, nil
}

// NormalizePlaces converts provider places in order, dropping the ones that
// cannot be normalized.
func NormalizePlaces(list []places.Place, origin *geo.Point) []Candidate {
	out := make([]Candidate, 0, len(list))
	for _, p := range list {
		c, err := FromPlace(p, origin)
		if err != nil {
			log.Printf("[resolver] dropping candidate: %v", err)
			continue
		}
		out = append(out, c)
	}
	return out
}

// cleanText applies NFC and collapses runs of whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
