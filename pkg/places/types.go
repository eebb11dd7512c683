package places

import (
	"encoding/json"
	"strconv"
)

// Provider response statuses.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusNotFound       = "NOT_FOUND"
	StatusUnknownError   = "UNKNOWN_ERROR"
)

// Provider business_status values.
const (
	BusinessOperational       = "OPERATIONAL"
	BusinessClosedTemporarily = "CLOSED_TEMPORARILY"
	BusinessClosedPermanently = "CLOSED_PERMANENTLY"
)

// Place is a place record as returned by the search and details endpoints.
// Search results carry a subset of the fields.
type Place struct {
	PlaceID              string        `json:"place_id"`
	Name                 string        `json:"name"`
	FormattedAddress     string        `json:"formatted_address,omitempty"`
	Vicinity             string        `json:"vicinity,omitempty"`
	Geometry             *Geometry     `json:"geometry,omitempty"`
	Rating               *float64      `json:"rating,omitempty"`
	UserRatingsTotal     int           `json:"user_ratings_total,omitempty"`
	BusinessStatus       string        `json:"business_status,omitempty"`
	OpeningHours         *OpeningHours `json:"opening_hours,omitempty"`
	Photos               []Photo       `json:"photos,omitempty"`
	Reviews              []Review      `json:"reviews,omitempty"`
	URL                  string        `json:"url,omitempty"`
	FormattedPhoneNumber string        `json:"formatted_phone_number,omitempty"`
	Website              string        `json:"website,omitempty"`
	PriceLevel           *int          `json:"price_level,omitempty"`
}

// Address returns the formatted address, falling back to the vicinity that
// nearby search returns instead.
func (p Place) Address() string {
	if p.FormattedAddress != "" {
		return p.FormattedAddress
	}
	return p.Vicinity
}

// LatLng is a coordinate pair in provider shape.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geometry wraps a place location. A malformed location decodes to a nil
// Location instead of failing the whole response.
type Geometry struct {
	Location *LatLng `json:"location,omitempty"`
}

// UnmarshalJSON tolerates string coordinates and malformed geometry.
func (g *Geometry) UnmarshalJSON(b []byte) error {
	g.Location = nil

	var raw struct {
		Location map[string]json.RawMessage `json:"location"`
	}
	if err := json.Unmarshal(b, &raw); err != nil || raw.Location == nil {
		return nil
	}

	lat, ok := decodeCoord(raw.Location["lat"])
	if !ok {
		return nil
	}
	lng, ok := decodeCoord(raw.Location["lng"])
	if !ok {
		return nil
	}
	g.Location = &LatLng{Lat: lat, Lng: lng}
	return nil
}

func decodeCoord(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// OpeningHours is the provider's weekly schedule.
type OpeningHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	Periods     []Period `json:"periods,omitempty"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

// Period is one open/close pair. Either side may be missing.
type Period struct {
	Open  *DayTime `json:"open,omitempty"`
	Close *DayTime `json:"close,omitempty"`
}

// DayTime is a day (0=Sunday) and a zero-padded "HHMM" time.
type DayTime struct {
	Day  int    `json:"day"`
	Time string `json:"time"`
}

// Photo is a provider photo reference.
type Photo struct {
	PhotoReference string `json:"photo_reference"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

// Review is an inline review snippet from the details endpoint.
type Review struct {
	AuthorName              string  `json:"author_name"`
	Rating                  float64 `json:"rating"`
	Text                    string  `json:"text"`
	Time                    int64   `json:"time,omitempty"`
	RelativeTimeDescription string  `json:"relative_time_description,omitempty"`
	Language                string  `json:"language,omitempty"`
}

// SearchResponse is one page of text or nearby search results.
type SearchResponse struct {
	Results       []Place `json:"results"`
	NextPageToken string  `json:"next_page_token,omitempty"`
	Status        string  `json:"status"`
	ErrorMessage  string  `json:"error_message,omitempty"`
}

// DetailsResponse is the details endpoint response.
type DetailsResponse struct {
	Result       Place  `json:"result"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TextSearchRequest is a text search query or a follow-up page.
type TextSearchRequest struct {
	Query     string
	PageToken string
}

// NearbySearchRequest searches around a centre point.
type NearbySearchRequest struct {
	Location  LatLng
	RadiusM   int
	Keyword   string
	PageToken string
}

// DetailsRequest fetches one place. Fields defaults to DefaultDetailFields.
type DetailsRequest struct {
	PlaceID string
	Fields  []string
}

// DefaultDetailFields is the field mask requested from the details endpoint.
var DefaultDetailFields = []string{
	"place_id", "name", "formatted_address", "geometry", "rating",
	"user_ratings_total", "business_status", "opening_hours", "photos",
	"reviews", "url", "formatted_phone_number", "website", "price_level",
}
