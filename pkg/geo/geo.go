// Package geo holds the geographic coordinate type used to rank test servers
// by their great-circle distance from the client.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is an immutable latitude/longitude pair in degrees.
type Point struct {
	lat float64
	lon float64
}

// New validates lat and lon and returns the corresponding Point.
func New(lat, lon float64) (Point, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return Point{}, fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return Point{}, fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, lon)
	}
	return Point{lat: lat, lon: lon}, nil
}

// Parse builds a Point from the string attributes found in discovery payloads.
func Parse(lat, lon string) (Point, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: latitude %q", ErrInvalidCoordinate, lat)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: longitude %q", ErrInvalidCoordinate, lon)
	}
	return New(la, lo)
}

func (p Point) Lat() float64 { return p.lat }
func (p Point) Lon() float64 { return p.lon }

// DistanceTo returns the great-circle distance to q in kilometers.
func (p Point) DistanceTo(q Point) float64 {
	if p == q {
		return 0
	}
	lat1 := radians(p.lat)
	lat2 := radians(q.lat)
	dLat := lat2 - lat1
	dLon := radians(q.lon - p.lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h slightly outside [0,1] for antipodal points
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

func (p Point) String() string {
	return fmt.Sprintf("[%g, %g]", p.lat, p.lon)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
