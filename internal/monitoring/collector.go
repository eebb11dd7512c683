// Package monitoring watches ingestion run reports and raises alerts when a
// window of runs looks unhealthy.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tainan-eats/storedir/internal/model"
)

// collectDepth bounds how many recent runs a snapshot reads.
const collectDepth = 500

// MetricsSnapshot holds a point-in-time view of ingestion health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	Runs           int     `json:"runs"`
	Processed      int     `json:"processed"`
	Failed         int     `json:"failed"`
	FailRate       float64 `json:"fail_rate"`
	Inserted       int     `json:"inserted"`
	Retired        int     `json:"retired"`
	StrategyErrors int     `json:"strategy_errors"`
	ImportFailures int     `json:"import_failures"`

	// LastRunAt is the start of the newest run ever recorded, zero if none.
	LastRunAt time.Time `json:"last_run_at"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the store surface the collector needs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]model.RunReport, error)
}

// Collector gathers metrics from persisted run reports.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: func() time.Time { return time.Now().UTC() }}
}

// Collect gathers a snapshot of runs started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	runs, err := c.runs.ListRuns(ctx, collectDepth)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	now := c.now()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	var window []model.RunReport
	for _, r := range runs {
		if !r.StartedAt.Before(cutoff) {
			window = append(window, r)
		}
	}

	snap := Summarize(window)
	snap.LookbackHours = lookbackHours
	snap.CollectedAt = now
	for _, r := range runs {
		if r.StartedAt.After(snap.LastRunAt) {
			snap.LastRunAt = r.StartedAt
		}
	}
	return snap, nil
}

// Summarize folds run reports into a snapshot. Lookback and collection time
// are left for the caller.
func Summarize(runs []model.RunReport) *MetricsSnapshot {
	snap := &MetricsSnapshot{Runs: len(runs)}
	for i := range runs {
		r := &runs[i]
		snap.Processed += r.Total()
		snap.Failed += r.Outcomes[model.OutcomeFailed]
		snap.Inserted += r.Outcomes[model.OutcomeInserted]
		snap.Retired += r.Outcomes[model.OutcomeRetired]
		snap.ImportFailures += r.Imports.ReviewsFailed + r.Imports.PhotosFailed
		for _, s := range r.Strategies {
			if s.Error != "" {
				snap.StrategyErrors++
			}
		}
		if r.StartedAt.After(snap.LastRunAt) {
			snap.LastRunAt = r.StartedAt
		}
	}
	if snap.Processed > 0 {
		snap.FailRate = float64(snap.Failed) / float64(snap.Processed)
	}
	return snap
}
