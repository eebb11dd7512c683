package query

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/catalog"
	"github.com/tainan-eats/storedir/internal/district"
)

// ErrUnavailable marks a search that could not read the catalog.
var ErrUnavailable = eris.New("query: catalog unavailable")

// Result is the outcome of Service.Search. Unavailable is set, with no
// stores, when the catalog could not be read.
type Result struct {
	Stores      []Ranked
	Unavailable bool
	Err         error
}

// Service runs queries against the persisted catalog.
type Service struct {
	store catalog.Store
	log   *zap.Logger
}

// NewService creates a Service reading through store.
func NewService(store catalog.Store) *Service {
	return &Service{store: store, log: zap.L().With(zap.String("component", "query"))}
}

// Search loads the active catalog and filters it. District and rating are
// pushed down to the store; the rest is evaluated in memory.
func (s *Service) Search(ctx context.Context, q Query) Result {
	recs, err := s.store.ListStores(ctx, catalog.StoreFilter{
		District:        q.District,
		MinRatingTenths: q.MinRatingTenths,
	})
	if err != nil {
		s.log.Error("catalog read failed", zap.Error(err))
		return Result{Stores: []Ranked{}, Unavailable: true, Err: eris.Wrapf(ErrUnavailable, "list stores: %v", err)}
	}
	return Result{Stores: Filter(recs, q)}
}

// Districts returns per-district counts of the active catalog.
func (s *Service) Districts(ctx context.Context) ([]DistrictCount, error) {
	counts, err := s.store.DistrictCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "query: district counts")
	}
	return CountsFromMap(counts, district.Table), nil
}
