// Package ingest runs one batch: acquire, merge, fetch details, normalize and
// reconcile, then record a run report.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tainan-eats/storedir/internal/acquire"
	"github.com/tainan-eats/storedir/internal/catalog"
	"github.com/tainan-eats/storedir/internal/merge"
	"github.com/tainan-eats/storedir/internal/model"
	"github.com/tainan-eats/storedir/internal/normalize"
	"github.com/tainan-eats/storedir/internal/reconcile"
	"github.com/tainan-eats/storedir/internal/resilience"
	"github.com/tainan-eats/storedir/pkg/places"
)

// ErrMissingAPIKey aborts a run that needs the provider but has no key.
var ErrMissingAPIKey = eris.New("ingest: places API key is not configured")

// Options tune a Pipeline.
type Options struct {
	APIKey       string
	FetchDetails bool
	// Workers bounds concurrent detail/reconcile work. Default 1.
	Workers int

	PerSecond float64
	PageDelay time.Duration
	MaxPages  int

	// DetailPerSecond throttles detail lookups. Defaults to PerSecond.
	DetailPerSecond float64
	DetailFields    []string

	Guard *resilience.Guard
	Now   func() time.Time
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	store  catalog.Store
	client places.Client
	plan   *acquire.Plan
	opts   Options

	engine   *reconcile.Engine
	throttle *acquire.Throttle
	log      *zap.Logger
}

// New creates a Pipeline. A nil plan uses acquire.DefaultPlan.
func New(store catalog.Store, client places.Client, plan *acquire.Plan, opts Options) *Pipeline {
	if plan == nil {
		plan = acquire.DefaultPlan()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if len(opts.DetailFields) == 0 {
		opts.DetailFields = places.DefaultDetailFields
	}
	detailRate := opts.DetailPerSecond
	if detailRate <= 0 {
		detailRate = opts.PerSecond
	}
	return &Pipeline{
		store:    store,
		client:   client,
		plan:     plan,
		opts:     opts,
		engine:   reconcile.NewEngine(store, reconcile.NewLocker()),
		throttle: acquire.NewThrottle(detailRate, 0),
		log:      zap.L().With(zap.String("component", "ingest")),
	}
}

// NeedsProvider reports whether the run will call the places provider.
func (p *Pipeline) NeedsProvider() bool {
	return p.plan.HasLive() || p.opts.FetchDetails
}

type itemResult struct {
	id       string
	decision reconcile.Decision
	name     string
	err      error
}

// Run executes one ingestion batch. The report is returned even when saving
// it fails.
func (p *Pipeline) Run(ctx context.Context) (*model.RunReport, error) {
	if p.NeedsProvider() && p.opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	report := &model.RunReport{
		ID:        uuid.New().String(),
		StartedAt: p.opts.Now(),
		Outcomes:  map[model.Outcome]int{},
	}
	log := p.log.With(zap.String("run_id", report.ID))

	registry := acquire.NewRegistry(p.client, p.opts.PerSecond, p.opts.PageDelay, p.opts.MaxPages)
	strategies, err := registry.Build(p.plan)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: build strategies")
	}

	log.Info("acquiring", zap.Int("strategies", len(strategies)))
	results := acquire.RunAll(ctx, strategies)
	for _, r := range results {
		sr := model.StrategyReport{Name: r.Source.Name, Records: r.Source.Len(), Dropped: r.Source.Dropped}
		if r.Err != nil {
			sr.Error = r.Err.Error()
		}
		report.Strategies = append(report.Strategies, sr)
	}

	merged := merge.Merge(acquire.MergeOrder(results)...)
	report.Merged = len(merged.Records)
	report.Duplicates = merged.Duplicates
	log.Info("merged sources",
		zap.Int("records", report.Merged),
		zap.Int("duplicates", report.Duplicates),
	)

	items := p.process(ctx, merged)
	for _, it := range items {
		report.Outcomes[it.decision.Outcome]++
		report.Imports.Add(it.decision.Imports)
		switch it.decision.Outcome {
		case model.OutcomeInserted:
			report.NewStores = append(report.NewStores, it.name)
		case model.OutcomeRetired:
			report.Retired = append(report.Retired, it.name)
		}
		if it.decision.Change != nil {
			report.Changes = append(report.Changes, *it.decision.Change)
		}
	}

	report.FinishedAt = p.opts.Now()
	log.Info("ingest complete",
		zap.Int("inserted", report.Outcomes[model.OutcomeInserted]),
		zap.Int("updated", report.Outcomes[model.OutcomeUpdated]),
		zap.Int("status_updated", report.Outcomes[model.OutcomeStatusUpdated]),
		zap.Int("retired", report.Outcomes[model.OutcomeRetired]),
		zap.Int("unchanged", report.Outcomes[model.OutcomeUnchanged]),
		zap.Int("failed", report.Outcomes[model.OutcomeFailed]),
	)

	if err := p.store.SaveRun(ctx, report); err != nil {
		log.Error("failed to save run report", zap.Error(err))
		return report, eris.Wrap(err, "ingest: save run")
	}
	return report, nil
}

// process handles every merged id with a bounded worker pool. Results keep
// merge order regardless of completion order.
func (p *Pipeline) process(ctx context.Context, merged merge.Result) []itemResult {
	out := make([]itemResult, len(merged.Order))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	var mu sync.Mutex
	done := 0
	for i, id := range merged.Order {
		raw := merged.Records[id]
		g.Go(func() error {
			res := p.processOne(gCtx, id, raw)
			out[i] = res

			mu.Lock()
			done++
			if done%50 == 0 {
				p.log.Info("progress", zap.Int("done", done), zap.Int("total", len(merged.Order)))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) processOne(ctx context.Context, id string, raw places.Place) itemResult {
	log := p.log.With(zap.String("place_id", id))
	fail := func(err error, msg string) itemResult {
		log.Warn(msg, zap.Error(err))
		return itemResult{id: id, name: raw.Name, decision: reconcile.Decision{Outcome: model.OutcomeFailed}, err: err}
	}

	place := raw
	if p.opts.FetchDetails {
		detailed, err := p.details(ctx, id)
		if err != nil {
			return fail(err, "detail fetch failed, skipping")
		}
		place = detailed
	}

	res, err := normalize.Normalize(place, p.opts.Now())
	if err != nil {
		return fail(err, "normalize failed, skipping")
	}

	d, err := p.engine.Reconcile(ctx, res)
	if err != nil {
		log.Error("reconcile failed", zap.Error(err))
		return itemResult{id: id, name: res.Store.Name, decision: reconcile.Decision{Outcome: model.OutcomeFailed}, err: err}
	}
	return itemResult{id: id, name: res.Store.Name, decision: d}
}

func (p *Pipeline) details(ctx context.Context, id string) (places.Place, error) {
	if err := p.throttle.Wait(ctx); err != nil {
		return places.Place{}, err
	}
	resp, err := resilience.Call(ctx, p.opts.Guard, "details", func(ctx context.Context) (*places.DetailsResponse, error) {
		return p.client.Details(ctx, places.DetailsRequest{PlaceID: id, Fields: p.opts.DetailFields})
	})
	if err != nil {
		return places.Place{}, eris.Wrapf(err, "ingest: details %s", id)
	}
	if resp == nil || resp.Status == places.StatusZeroResults {
		return places.Place{}, eris.Errorf("ingest: details %s: no result", id)
	}
	place := resp.Result
	if place.PlaceID == "" {
		place.PlaceID = id
	}
	return place, nil
}
