package model

import "time"

// Caps on related rows per store.
const (
	MaxReviewsPerStore = 5
	MaxPhotosPerStore  = 10
)

// Review is a provider review snippet attached to a store.
type Review struct {
	ID                int64      `json:"id,omitempty"`
	StoreID           string     `json:"store_id"`
	AuthorName        string     `json:"author_name"`
	RatingStars       int        `json:"rating"`
	Text              string     `json:"text"`
	ObservedAt        *time.Time `json:"observed_at,omitempty"`
	RelativeTimeLabel string     `json:"relative_time,omitempty"`
}

// Photo holds an opaque provider photo token. URL is resolved at read time.
type Photo struct {
	ID       int64  `json:"id,omitempty"`
	StoreID  string `json:"store_id"`
	PhotoRef string `json:"photo_ref"`
	Width    *int   `json:"width,omitempty"`
	Height   *int   `json:"height,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Confidence grades a menu item extracted by the enrichment process.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is a known confidence grade.
func (c Confidence) Valid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

// MenuItem is a dish offered by a store.
type MenuItem struct {
	ID          int64      `json:"id,omitempty"`
	StoreID     string     `json:"store_id"`
	Name        string     `json:"name"`
	Price       *int       `json:"price,omitempty"`
	Description string     `json:"description,omitempty"`
	Confidence  Confidence `json:"confidence"`
}
