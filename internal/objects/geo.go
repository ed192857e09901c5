package objects

import (
	"math"

	"github.com/spf13/cast"
)

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate stored as {"lat": .., "lng": ..}.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ToPoint reads a point from a stored value.
func ToPoint(v any) (Point, bool) {
	var m map[string]any

	switch val := v.(type) {
	case Point:
		return val, true
	case *Point:
		if val == nil {
			return Point{}, false
		}

		return *val, true
	case map[string]any:
		m = val
	case Document:
		m = val
	default:
		return Point{}, false
	}

	lat, err := cast.ToFloat64E(m["lat"])
	if err != nil {
		return Point{}, false
	}

	lng, err := cast.ToFloat64E(m["lng"])
	if err != nil {
		return Point{}, false
	}

	return Point{Lat: lat, Lng: lng}, true
}

// Point reads a point field.
func (d Document) Point(path string) (Point, bool) {
	v, ok := d.Get(path)
	if !ok {
		return Point{}, false
	}

	return ToPoint(v)
}

// Map renders the point in its stored form.
func (p Point) Map() map[string]any {
	return map[string]any{"lat": p.Lat, "lng": p.Lng}
}

// DistanceKm returns the haversine distance between two points.
func (p Point) DistanceKm(other Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLng := (other.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Coarse rounds both coordinates to the given number of decimals.
func (p Point) Coarse(decimals int) Point {
	scale := math.Pow(10, float64(decimals))

	return Point{
		Lat: math.Round(p.Lat*scale) / scale,
		Lng: math.Round(p.Lng*scale) / scale,
	}
}
