// Package catalog persists the store catalog and its related rows, and exposes
// the read path used by the query engine and the HTTP API.
package catalog

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/tainan-eats/storedir/internal/model"
)

// ErrNotFound is returned by writes that target a store id that does not exist.
var ErrNotFound = eris.New("catalog: store not found")

// Store is the persistence interface for the catalog. GetStore returns nil
// without error when the id is unknown.
type Store interface {
	GetStore(ctx context.Context, id string) (*model.StoreRecord, error)
	InsertStore(ctx context.Context, s model.StoreRecord) error
	UpdateStore(ctx context.Context, s model.StoreRecord) error
	UpdateStatus(ctx context.Context, id string, status model.BusinessStatus, active bool, at time.Time) error
	Touch(ctx context.Context, id string, at time.Time) error
	DeleteStoreCascade(ctx context.Context, id string) (*CascadeResult, error)

	InsertReview(ctx context.Context, r model.Review) error
	InsertPhoto(ctx context.Context, p model.Photo) error
	InsertMenuItem(ctx context.Context, m model.MenuItem) error

	ListStores(ctx context.Context, filter StoreFilter) ([]model.StoreRecord, error)
	ListReviews(ctx context.Context, storeID string, limit int) ([]model.Review, error)
	ListPhotos(ctx context.Context, storeID string, limit int) ([]model.Photo, error)
	ListMenuItems(ctx context.Context, storeID string) ([]model.MenuItem, error)
	DistrictCounts(ctx context.Context) (map[string]int, error)

	SaveRun(ctx context.Context, r *model.RunReport) error
	ListRuns(ctx context.Context, limit int) ([]model.RunReport, error)

	Migrate(ctx context.Context) error
	Close() error
}

// StoreFilter narrows ListStores. Zero values mean no constraint. District
// values "all" and "nearby" match every district.
type StoreFilter struct {
	District        string
	MinRatingTenths int
	NameContains    string
	IncludeInactive bool
	Limit           int
}

// districtConstraint returns the district to filter on, or "".
func (f StoreFilter) districtConstraint() string {
	switch f.District {
	case "", "all", "nearby":
		return ""
	}
	return f.District
}

// CascadeResult counts rows removed by DeleteStoreCascade.
type CascadeResult struct {
	Reviews   int64
	Photos    int64
	MenuItems int64
	Stores    int64
}

// runsDefaultLimit bounds ListRuns when no limit is given.
const runsDefaultLimit = 20

// Read limits for related rows.
const (
	DefaultRelatedLimit = 10
	MaxReviewLimit      = 50
	MaxPhotoLimit       = 50
)

func clampLimit(limit, ceiling int) int {
	if limit <= 0 {
		return DefaultRelatedLimit
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}

// buildListStores renders the catalog listing query for either dialect.
func buildListStores(sb sq.StatementBuilderType, f StoreFilter) sq.SelectBuilder {
	q := sb.Select(storeColumns()...).From("stores").OrderBy("created_at", "id")
	if !f.IncludeInactive {
		q = q.Where(sq.Eq{"is_active": true}).
			Where(sq.NotEq{"business_status": string(model.StatusClosedPermanently)})
	}
	if d := f.districtConstraint(); d != "" {
		q = q.Where(sq.Eq{"district": d})
	}
	if f.MinRatingTenths > 0 {
		q = q.Where(sq.Expr("COALESCE(rating, 0) >= ?", f.MinRatingTenths))
	}
	if name := strings.TrimSpace(f.NameContains); name != "" {
		q = q.Where(sq.Like{"name": "%" + name + "%"})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q
}

// decodePeriods reads canonical tuples from the hours column. Columns in the
// legacy string shape yield nil; the raw bytes are kept on the record.
func decodePeriods(raw []byte) []model.Period {
	if len(raw) == 0 {
		return nil
	}
	var out []model.Period
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func storeColumns() []string {
	return []string{
		"id", "name", "address", "district", "phone", "rating", "review_count",
		"lat", "lng", "opening_hours", "photo_ref", "maps_url", "website",
		"price_level", "business_status", "is_active", "last_updated", "created_at",
	}
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringOrNil(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
