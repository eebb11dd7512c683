package acquire

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/district"
	"github.com/tainan-eats/storedir/internal/geo"
	"github.com/tainan-eats/storedir/pkg/places"
)

// Strategy names accepted by the registry.
const (
	KindDistrictKeyword = "district_keyword"
	KindProximity       = "proximity"
	KindBulkText        = "bulk_text"
	KindSnapshot        = "snapshot"
)

// Defaults for the live strategies.
var (
	DefaultDistrictTemplates = []string{"台南%s 牛肉湯", "台南%s 溫體牛肉湯"}
	DefaultBulkKeywords      = []string{"牛肉湯 台南", "溫體牛肉湯 台南", "牛肉店 台南"}
	DefaultCenter            = geo.LatLng{Lat: 22.9971, Lng: 120.2133}
)

const (
	DefaultRadiusM          = 15000
	DefaultProximityKeyword = "牛肉湯"
)

type pageFetcher func(ctx context.Context, pageToken string) (*places.SearchResponse, error)

// paginate follows next_page_token up to maxPages, adding every result to src.
// Records collected before an error stay in src.
func paginate(ctx context.Context, th *Throttle, maxPages int, src *Source, fetch pageFetcher) (int, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var (
		token string
		calls int
	)
	for page := 0; page < maxPages; page++ {
		wait := th.Wait
		if page > 0 {
			wait = th.WaitPage
		}
		if err := wait(ctx); err != nil {
			return calls, err
		}

		resp, err := fetch(ctx, token)
		calls++
		if err != nil {
			return calls, err
		}
		for _, p := range resp.Results {
			src.Add(p)
		}

		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}
	return calls, nil
}

// DistrictKeywordStrategy runs keyword text searches for every district.
type DistrictKeywordStrategy struct {
	name      string
	client    places.Client
	throttle  *Throttle
	districts []string
	templates []string
	maxPages  int
}

// NewDistrictKeywordStrategy creates the per-district search. Empty districts
// means the full table; empty templates uses DefaultDistrictTemplates. A
// template without a %s verb gets the district prefixed.
func NewDistrictKeywordStrategy(client places.Client, th *Throttle, districts, templates []string, maxPages int) *DistrictKeywordStrategy {
	if len(districts) == 0 {
		districts = district.Names()
	}
	if len(templates) == 0 {
		templates = DefaultDistrictTemplates
	}
	return &DistrictKeywordStrategy{
		name:      KindDistrictKeyword,
		client:    client,
		throttle:  th,
		districts: districts,
		templates: templates,
		maxPages:  maxPages,
	}
}

// Name implements Strategy.
func (s *DistrictKeywordStrategy) Name() string { return s.name }

// Queries returns the text queries in execution order.
func (s *DistrictKeywordStrategy) Queries() []string {
	out := make([]string, 0, len(s.districts)*len(s.templates))
	for _, d := range s.districts {
		for _, tmpl := range s.templates {
			out = append(out, districtQuery(tmpl, d))
		}
	}
	return out
}

func districtQuery(tmpl, name string) string {
	if strings.Contains(tmpl, "%s") {
		return fmt.Sprintf(tmpl, name)
	}
	return name + " " + tmpl
}

// Acquire implements Strategy.
func (s *DistrictKeywordStrategy) Acquire(ctx context.Context) (Source, error) {
	return runTextQueries(ctx, s.name, s.client, s.throttle, s.maxPages, s.Queries())
}

// BulkTextStrategy runs free-form city-wide text searches.
type BulkTextStrategy struct {
	name     string
	client   places.Client
	throttle *Throttle
	keywords []string
	maxPages int
}

// NewBulkTextStrategy creates a bulk text search over keywords.
func NewBulkTextStrategy(client places.Client, th *Throttle, keywords []string, maxPages int) *BulkTextStrategy {
	if len(keywords) == 0 {
		keywords = DefaultBulkKeywords
	}
	return &BulkTextStrategy{name: KindBulkText, client: client, throttle: th, keywords: keywords, maxPages: maxPages}
}

// Name implements Strategy.
func (s *BulkTextStrategy) Name() string { return s.name }

// Acquire implements Strategy.
func (s *BulkTextStrategy) Acquire(ctx context.Context) (Source, error) {
	return runTextQueries(ctx, s.name, s.client, s.throttle, s.maxPages, s.keywords)
}

func runTextQueries(ctx context.Context, name string, client places.Client, th *Throttle, maxPages int, queries []string) (Source, error) {
	log := zap.L().With(zap.String("strategy", name))
	src := NewSource(name)

	var (
		firstErr error
		calls    int
	)
	for _, q := range queries {
		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = eris.Wrap(ctx.Err(), "acquire: "+name)
			}
			break
		}

		before := src.Len()
		n, err := paginate(ctx, th, maxPages, &src, func(ctx context.Context, token string) (*places.SearchResponse, error) {
			return client.TextSearch(ctx, places.TextSearchRequest{Query: q, PageToken: token})
		})
		calls += n
		if err != nil {
			log.Warn("query failed, keeping partial results", zap.String("query", q), zap.Error(err))
			if firstErr == nil {
				firstErr = eris.Wrapf(err, "acquire: %s query %q", name, q)
			}
			continue
		}
		log.Debug("query complete", zap.String("query", q), zap.Int("new", src.Len()-before))
	}

	log.Info("text queries complete",
		zap.Int("queries", len(queries)),
		zap.Int("api_calls", calls),
		zap.Int("records", src.Len()),
	)
	return src, firstErr
}

// ProximityStrategy runs one paginated nearby search around a centre point.
type ProximityStrategy struct {
	name     string
	client   places.Client
	throttle *Throttle
	center   geo.LatLng
	radiusM  int
	keyword  string
	maxPages int
}

// NewProximityStrategy creates a nearby search. Zero values use the city
// centroid, DefaultRadiusM and DefaultProximityKeyword.
func NewProximityStrategy(client places.Client, th *Throttle, center *geo.LatLng, radiusM int, keyword string, maxPages int) *ProximityStrategy {
	c := DefaultCenter
	if center != nil {
		c = *center
	}
	if radiusM <= 0 {
		radiusM = DefaultRadiusM
	}
	if keyword == "" {
		keyword = DefaultProximityKeyword
	}
	return &ProximityStrategy{
		name:     KindProximity,
		client:   client,
		throttle: th,
		center:   c,
		radiusM:  radiusM,
		keyword:  keyword,
		maxPages: maxPages,
	}
}

// Name implements Strategy.
func (s *ProximityStrategy) Name() string { return s.name }

// Acquire implements Strategy.
func (s *ProximityStrategy) Acquire(ctx context.Context) (Source, error) {
	log := zap.L().With(zap.String("strategy", s.name))
	src := NewSource(s.name)

	calls, err := paginate(ctx, s.throttle, s.maxPages, &src, func(ctx context.Context, token string) (*places.SearchResponse, error) {
		return s.client.NearbySearch(ctx, places.NearbySearchRequest{
			Location:  places.LatLng{Lat: s.center.Lat, Lng: s.center.Lng},
			RadiusM:   s.radiusM,
			Keyword:   s.keyword,
			PageToken: token,
		})
	})
	if err != nil {
		log.Warn("nearby search failed, keeping partial results", zap.Error(err))
		return src, eris.Wrap(err, "acquire: proximity search")
	}

	log.Info("nearby search complete", zap.Int("api_calls", calls), zap.Int("records", src.Len()))
	return src, nil
}
