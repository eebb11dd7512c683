package model

import "time"

// Outcome is the reconciliation result for one provider id.
type Outcome string

const (
	OutcomeInserted      Outcome = "inserted"
	OutcomeUpdated       Outcome = "updated"
	OutcomeStatusUpdated Outcome = "status_updated"
	OutcomeRetired       Outcome = "retired"
	OutcomeUnchanged     Outcome = "unchanged"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeFailed        Outcome = "failed"
)

// StrategyReport summarizes one acquisition strategy within a run.
type StrategyReport struct {
	Name    string `json:"name"`
	Records int    `json:"records"`
	Dropped int    `json:"dropped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StoreChange records the before/after of an updated store.
type StoreChange struct {
	ProviderID     string         `json:"id"`
	Name           string         `json:"name"`
	OldRating      *float64       `json:"old_rating,omitempty"`
	NewRating      *float64       `json:"new_rating,omitempty"`
	OldReviewCount int            `json:"old_review_count"`
	NewReviewCount int            `json:"new_review_count"`
	OldStatus      BusinessStatus `json:"old_status"`
	NewStatus      BusinessStatus `json:"new_status"`
}

// ImportStats counts related-entity inserts.
type ImportStats struct {
	ReviewsInserted int `json:"reviews_inserted"`
	ReviewsFailed   int `json:"reviews_failed"`
	PhotosInserted  int `json:"photos_inserted"`
	PhotosFailed    int `json:"photos_failed"`
}

// Add accumulates o into s.
func (s *ImportStats) Add(o ImportStats) {
	s.ReviewsInserted += o.ReviewsInserted
	s.ReviewsFailed += o.ReviewsFailed
	s.PhotosInserted += o.PhotosInserted
	s.PhotosFailed += o.PhotosFailed
}

// RunReport is the persisted summary of one ingestion run.
type RunReport struct {
	ID         string           `json:"id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Strategies []StrategyReport `json:"strategies"`
	Merged     int              `json:"merged"`
	Duplicates int              `json:"duplicates"`
	Outcomes   map[Outcome]int  `json:"outcomes"`
	Imports    ImportStats      `json:"imports"`
	NewStores  []string         `json:"new_stores,omitempty"`
	Changes    []StoreChange    `json:"changes,omitempty"`
	Retired    []string         `json:"retired,omitempty"`
}

// Total returns the number of provider ids processed.
func (r *RunReport) Total() int {
	n := 0
	for _, c := range r.Outcomes {
		n += c
	}
	return n
}
