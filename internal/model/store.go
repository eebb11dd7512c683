// Package model defines the canonical store catalog entities.
package model

import (
	"encoding/json"
	"time"

	"github.com/tainan-eats/storedir/internal/geo"
)

// BusinessStatus is the provider-reported trading state of a store.
type BusinessStatus string

const (
	StatusOperational       BusinessStatus = "operational"
	StatusClosedTemporarily BusinessStatus = "closed_temporarily"
	StatusClosedPermanently BusinessStatus = "closed_permanently"
)

// Valid reports whether s is one of the known statuses.
func (s BusinessStatus) Valid() bool {
	switch s {
	case StatusOperational, StatusClosedTemporarily, StatusClosedPermanently:
		return true
	}
	return false
}

// Period is one canonical opening-hours tuple. Open and Close are minutes since
// midnight of Day (0=Sunday). Close may exceed 1440 when the store closes
// after midnight.
type Period struct {
	Day   int `json:"day"`
	Open  int `json:"open"`
	Close int `json:"close"`
}

// StoreRecord is the canonical persisted store.
type StoreRecord struct {
	ProviderID     string         `json:"id"`
	Name           string         `json:"name"`
	Address        string         `json:"address"`
	District       string         `json:"district"`
	Phone          string         `json:"phone,omitempty"`
	RatingTenths   *int           `json:"rating_tenths,omitempty"`
	ReviewCount    int            `json:"review_count"`
	Lat            *string        `json:"lat,omitempty"`
	Lng            *string        `json:"lng,omitempty"`
	OpeningHours   []Period       `json:"opening_hours,omitempty"`
	PhotoRef       string         `json:"photo_ref,omitempty"`
	MapsURL        string         `json:"maps_url,omitempty"`
	Website        string         `json:"website,omitempty"`
	PriceLevel     *int           `json:"price_level,omitempty"`
	BusinessStatus BusinessStatus `json:"business_status"`
	Active         bool           `json:"active"`
	LastUpdated    time.Time      `json:"last_updated"`
	CreatedAt      time.Time      `json:"created_at,omitempty"`

	// RawHours is the opening-hours column as stored. It is set on reads and
	// may hold either the canonical tuples or legacy weekday strings.
	RawHours json.RawMessage `json:"-"`
}

// Coordinates returns the parsed location when both lat and lng are present
// and valid.
func (s StoreRecord) Coordinates() (geo.LatLng, bool) {
	if s.Lat == nil || s.Lng == nil {
		return geo.LatLng{}, false
	}
	lat, ok := geo.ParseDecimal(*s.Lat)
	if !ok {
		return geo.LatLng{}, false
	}
	lng, ok := geo.ParseDecimal(*s.Lng)
	if !ok {
		return geo.LatLng{}, false
	}
	p := geo.LatLng{Lat: lat, Lng: lng}
	if !p.Valid() {
		return geo.LatLng{}, false
	}
	return p, true
}

// HoursJSON returns the JSON column value for the store's opening hours. An
// empty schedule encodes as an empty array.
func (s StoreRecord) HoursJSON() ([]byte, error) {
	if len(s.OpeningHours) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(s.OpeningHours)
}

// RatingTenthsOrZero returns the stored rating or 0 when absent.
func (s StoreRecord) RatingTenthsOrZero() int {
	if s.RatingTenths == nil {
		return 0
	}
	return *s.RatingTenths
}

// ExposeRating converts a tenths rating to the 0.0-5.0 decimal shown to
// consumers.
func ExposeRating(tenths *int) *float64 {
	if tenths == nil {
		return nil
	}
	v := float64(*tenths) / 10
	return &v
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }
