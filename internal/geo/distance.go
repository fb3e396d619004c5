package geo

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports ErrInvalidCoordinate for non-finite or out-of-range values.
func (p Point) Validate() error {
	if !isFinite(p.Lat) || !isFinite(p.Lng) {
		return fmt.Errorf("%w: (%v, %v) is not finite", ErrInvalidCoordinate, p.Lat, p.Lng)
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: (%v, %v) is out of range", ErrInvalidCoordinate, p.Lat, p.Lng)
	}
	return nil
}

// DistanceKm returns the great-circle distance between a and b.
func DistanceKm(a, b Point) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	return haversineKm(a, b), nil
}

func haversineKm(a, b Point) float64 {
	if a == b {
		return 0
	}
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	la1 := toRad(a.Lat)
	la2 := toRad(b.Lat)

	sLat := math.Sin(dLat / 2)
	sLng := math.Sin(dLng / 2)
	s := sLat*sLat + math.Cos(la1)*math.Cos(la2)*sLng*sLng
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(math.Min(1, s)))
}

// Locatable is anything FilterWithinRadius can rank. GeoKey must be stable
// so that equidistant items always come back in the same order.
type Locatable interface {
	GeoKey() string
	GeoPoint() Point
}

// Ranked pairs an item with its distance from the search origin.
type Ranked[T any] struct {
	Item       T
	DistanceKm float64
}

// FilterWithinRadius keeps the items whose distance from origin is at most
// radiusKm, nearest first. Items with invalid coordinates are skipped since
// they cannot be inside any radius.
func FilterWithinRadius[T Locatable](origin Point, items []T, radiusKm float64) ([]Ranked[T], error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if !isFinite(radiusKm) {
		return nil, fmt.Errorf("radius %v is not finite", radiusKm)
	}

	out := make([]Ranked[T], 0, len(items))
	for _, it := range items {
		p := it.GeoPoint()
		if p.Validate() != nil {
			continue
		}
		d := haversineKm(origin, p)
		if d <= radiusKm {
			out = append(out, Ranked[T]{Item: it, DistanceKm: d})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Item.GeoKey() < out[j].Item.GeoKey()
	})
	return out, nil
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
