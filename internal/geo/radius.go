package geo

import (
	"fmt"
	"math"
)

// RadiusBounds holds the configured limits for a search radius in kilometers.
type RadiusBounds struct {
	MinKm     float64
	MaxKm     float64
	DefaultKm float64
}

// Validate checks that the bounds are finite, positive and ordered.
func (b RadiusBounds) Validate() error {
	if !isFinite(b.MinKm) || !isFinite(b.MaxKm) || !isFinite(b.DefaultKm) {
		return fmt.Errorf("radius bounds must be finite: %+v", b)
	}
	if b.MinKm <= 0 || b.MinKm > b.MaxKm {
		return fmt.Errorf("radius bounds must satisfy 0 < min <= max: %+v", b)
	}
	return nil
}

// ClampRadius maps requested into [bounds.MinKm, bounds.MaxKm]. A missing
// request (NaN) or any other non-finite value is replaced by the default
// before clamping.
func ClampRadius(requested float64, bounds RadiusBounds) float64 {
	r := requested
	if !isFinite(r) {
		r = bounds.DefaultKm
	}
	if r < bounds.MinKm {
		return bounds.MinKm
	}
	if r > bounds.MaxKm {
		return bounds.MaxKm
	}
	return r
}

// Box is a lat/lng rectangle used to prefilter store reads. It is always a
// superset of the circle it was built from.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether p lies inside the box, edges included.
func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// BoundingBox returns a box enclosing every point within radiusKm of center.
// Near the poles or across the antimeridian the longitude span widens to the
// full range.
func BoundingBox(center Point, radiusKm float64) (Box, error) {
	if err := center.Validate(); err != nil {
		return Box{}, err
	}
	if !isFinite(radiusKm) || radiusKm < 0 {
		return Box{}, fmt.Errorf("radius %v must be finite and non-negative", radiusKm)
	}

	// small padding so rounding never excludes a point on the circle
	dLat := toDeg(radiusKm/EarthRadiusKm) * 1.01
	box := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}

	cosLat := math.Min(math.Cos(toRad(box.MinLat)), math.Cos(toRad(box.MaxLat)))
	if cosLat <= 1e-6 {
		return box, nil
	}
	dLng := dLat / cosLat
	if dLng >= 180 || center.Lng-dLng < -180 || center.Lng+dLng > 180 {
		return box, nil
	}
	box.MinLng = center.Lng - dLng
	box.MaxLng = center.Lng + dLng
	return box, nil
}
