// Package geo provides great-circle distance and weekday/clock helpers shared by
// the normalizer and the query engine.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// EarthRadiusKM is the mean Earth radius used by HaversineKM.
const EarthRadiusKM = 6371.0

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat" mapstructure:"lat"`
	Lng float64 `json:"lng" yaml:"lng" mapstructure:"lng"`
}

// HaversineKM returns the great-circle distance between a and b in kilometers.
func HaversineKM(a, b LatLng) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// ParseDecimal parses a decimal coordinate string. Empty strings, NaN and
// infinities are rejected.
func ParseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatDecimal renders a coordinate the way it is persisted.
func FormatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func (p LatLng) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}
