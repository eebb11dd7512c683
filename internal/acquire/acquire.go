// Package acquire implements the retrieval strategies that produce raw place
// records keyed by provider id: district keyword search, proximity search,
// bulk text search and historical snapshots.
package acquire

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/pkg/places"
)

// Strategy produces raw place records.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context) (Source, error)
}

// Source is the output of one strategy. Order keeps first-seen order so that
// downstream processing is deterministic.
type Source struct {
	Name     string
	Snapshot bool
	Records  map[string]places.Place
	Order    []string
	Dropped  int
}

// NewSource creates an empty source.
func NewSource(name string) Source {
	return Source{Name: name, Records: make(map[string]places.Place)}
}

// Add stores p under its place id, replacing any earlier record with the same
// id. Records without an id are counted as dropped.
func (s *Source) Add(p places.Place) bool {
	id := strings.TrimSpace(p.PlaceID)
	if id == "" {
		s.Dropped++
		return false
	}
	p.PlaceID = id
	if s.Records == nil {
		s.Records = make(map[string]places.Place)
	}
	if _, ok := s.Records[id]; !ok {
		s.Order = append(s.Order, id)
	}
	s.Records[id] = p
	return true
}

// Len returns the number of distinct records.
func (s Source) Len() int {
	return len(s.Records)
}

// Result pairs a strategy's source with its first error. A non-nil Err does
// not invalidate Source; it holds whatever was collected before the failure.
type Result struct {
	Source   Source
	Err      error
	Duration time.Duration
}

// RunAll executes strategies one after another in order. A failing strategy
// never stops the ones after it.
func RunAll(ctx context.Context, strategies []Strategy) []Result {
	log := zap.L().With(zap.String("component", "acquire"))

	results := make([]Result, 0, len(strategies))
	for _, s := range strategies {
		if ctx.Err() != nil {
			log.Warn("acquire: context done, skipping remaining strategies", zap.String("strategy", s.Name()))
			results = append(results, Result{Source: NewSource(s.Name()), Err: ctx.Err()})
			continue
		}

		start := time.Now()
		src, err := s.Acquire(ctx)
		if src.Name == "" {
			src.Name = s.Name()
		}
		res := Result{Source: src, Err: err, Duration: time.Since(start)}
		if err != nil {
			log.Warn("strategy finished with errors",
				zap.String("strategy", s.Name()),
				zap.Int("records", src.Len()),
				zap.Error(err),
			)
		} else {
			log.Info("strategy complete",
				zap.String("strategy", s.Name()),
				zap.Int("records", src.Len()),
				zap.Duration("elapsed", res.Duration),
			)
		}
		results = append(results, res)
	}
	return results
}

// MergeOrder returns the sources with snapshots first and live strategies
// after, each group keeping its relative order. Later sources win on merge,
// so live data takes precedence over history.
func MergeOrder(results []Result) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		if r.Source.Snapshot {
			out = append(out, r.Source)
		}
	}
	for _, r := range results {
		if !r.Source.Snapshot {
			out = append(out, r.Source)
		}
	}
	return out
}
