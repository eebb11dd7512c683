package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/tainan-eats/storedir/internal/db"
	"github.com/tainan-eats/storedir/internal/model"
)

// PostgresStore implements Store using pgxpool. Store coordinates are kept
// both as decimal text and as a PostGIS point.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	sb      sq.StatementBuilderType
}

const (
	sqlGetStore = `SELECT id, name, address, district, phone, rating, review_count, lat, lng, ` +
		`opening_hours, photo_ref, maps_url, website, price_level, business_status, is_active, ` +
		`last_updated, created_at FROM stores WHERE id = $1`
	sqlInsertStore = `INSERT INTO stores (id, name, address, district, phone, rating, review_count, lat, lng, ` +
		`location, opening_hours, photo_ref, maps_url, website, price_level, business_status, is_active, ` +
		`last_updated, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, ST_GeomFromEWKB($10), $11, ` +
		`$12, $13, $14, $15, $16, $17, $18, $19)`
	sqlUpdateStore = `UPDATE stores SET name = $1, address = $2, district = $3, phone = $4, rating = $5, ` +
		`review_count = $6, lat = $7, lng = $8, location = ST_GeomFromEWKB($9), opening_hours = $10, ` +
		`photo_ref = $11, maps_url = $12, website = $13, price_level = $14, business_status = $15, ` +
		`is_active = $16, last_updated = $17 WHERE id = $18`
	sqlUpdateStatus  = `UPDATE stores SET business_status = $1, is_active = $2, last_updated = $3 WHERE id = $4`
	sqlTouch         = `UPDATE stores SET last_updated = $1 WHERE id = $2`
	sqlInsertReview  = `INSERT INTO reviews (store_id, author_name, rating, text, observed_at, relative_time) VALUES ($1, $2, $3, $4, $5, $6)`
	sqlInsertPhoto   = `INSERT INTO store_photos (store_id, photo_ref, width, height) VALUES ($1, $2, $3, $4)`
	sqlInsertMenu    = `INSERT INTO menu_items (store_id, name, price, description, confidence) VALUES ($1, $2, $3, $4, $5)`
	sqlListReviews   = `SELECT id, store_id, author_name, rating, text, observed_at, relative_time FROM reviews WHERE store_id = $1 ORDER BY id LIMIT $2`
	sqlListPhotos    = `SELECT id, store_id, photo_ref, width, height FROM store_photos WHERE store_id = $1 ORDER BY id LIMIT $2`
	sqlListMenu      = `SELECT id, store_id, name, price, description, confidence FROM menu_items WHERE store_id = $1 ORDER BY id`
	sqlDistricts     = `SELECT district, COUNT(*) FROM stores WHERE is_active GROUP BY district`
	sqlInsertRun     = `INSERT INTO ingest_runs (id, started_at, finished_at, report) VALUES ($1, $2, $3, $4)`
	sqlListRuns      = `SELECT report FROM ingest_runs ORDER BY started_at DESC LIMIT $1`
	sqlDeleteReviews = `DELETE FROM reviews WHERE store_id = $1`
	sqlDeletePhotos  = `DELETE FROM store_photos WHERE store_id = $1`
	sqlDeleteMenu    = `DELETE FROM menu_items WHERE store_id = $1`
	sqlDeleteStore   = `DELETE FROM stores WHERE id = $1`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_store":      sqlGetStore,
	"insert_store":   sqlInsertStore,
	"update_store":   sqlUpdateStore,
	"update_status":  sqlUpdateStatus,
	"touch_store":    sqlTouch,
	"insert_review":  sqlInsertReview,
	"insert_photo":   sqlInsertPhoto,
	"insert_menu":    sqlInsertMenu,
	"list_reviews":   sqlListReviews,
	"list_photos":    sqlListPhotos,
	"list_menu":      sqlListMenu,
	"district_count": sqlDistricts,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, connString, poolCfg, preparedStatements)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	s := newPostgresStore(pool)
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS stores (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	address         TEXT NOT NULL DEFAULT '',
	district        TEXT NOT NULL DEFAULT '未知',
	phone           TEXT NOT NULL DEFAULT '',
	rating          INTEGER,
	review_count    INTEGER NOT NULL DEFAULT 0,
	lat             TEXT,
	lng             TEXT,
	location        geometry(Point, 4326),
	opening_hours   JSONB NOT NULL DEFAULT '[]',
	photo_ref       TEXT NOT NULL DEFAULT '',
	maps_url        TEXT NOT NULL DEFAULT '',
	website         TEXT NOT NULL DEFAULT '',
	price_level     INTEGER,
	business_status TEXT NOT NULL DEFAULT 'operational',
	is_active       BOOLEAN NOT NULL DEFAULT true,
	last_updated    TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reviews (
	id            BIGSERIAL PRIMARY KEY,
	store_id      TEXT NOT NULL REFERENCES stores(id),
	author_name   TEXT NOT NULL,
	rating        INTEGER NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	observed_at   TIMESTAMPTZ,
	relative_time TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS store_photos (
	id        BIGSERIAL PRIMARY KEY,
	store_id  TEXT NOT NULL REFERENCES stores(id),
	photo_ref TEXT NOT NULL,
	width     INTEGER,
	height    INTEGER
);

CREATE TABLE IF NOT EXISTS menu_items (
	id          BIGSERIAL PRIMARY KEY,
	store_id    TEXT NOT NULL REFERENCES stores(id),
	name        TEXT NOT NULL,
	price       INTEGER,
	description TEXT NOT NULL DEFAULT '',
	confidence  TEXT NOT NULL DEFAULT 'medium'
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	report      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stores_district ON stores(district);
CREATE INDEX IF NOT EXISTS idx_stores_active ON stores(is_active);
CREATE INDEX IF NOT EXISTS idx_stores_location ON stores USING GIST(location);
CREATE INDEX IF NOT EXISTS idx_reviews_store_id ON reviews(store_id);
CREATE INDEX IF NOT EXISTS idx_store_photos_store_id ON store_photos(store_id);
CREATE INDEX IF NOT EXISTS idx_menu_items_store_id ON menu_items(store_id);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// encodeLocation renders the record's coordinates as an EWKB point, or nil
// when either coordinate is missing.
func encodeLocation(rec model.StoreRecord) ([]byte, error) {
	ll, ok := rec.Coordinates()
	if !ok {
		return nil, nil
	}
	pt := geom.NewPointFlat(geom.XY, []float64{ll.Lng, ll.Lat}).SetSRID(4326)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode location")
	}
	return data, nil
}

func (s *PostgresStore) GetStore(ctx context.Context, id string) (*model.StoreRecord, error) {
	rec, err := scanStorePG(s.pool.QueryRow(ctx, sqlGetStore, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get store %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) InsertStore(ctx context.Context, rec model.StoreRecord) error {
	hours, err := rec.HoursJSON()
	if err != nil {
		return eris.Wrap(err, "postgres: marshal hours")
	}
	loc, err := encodeLocation(rec)
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = rec.LastUpdated
	}

	_, err = s.pool.Exec(ctx, sqlInsertStore,
		rec.ProviderID, rec.Name, rec.Address, rec.District, rec.Phone, rec.RatingTenths,
		rec.ReviewCount, rec.Lat, rec.Lng, loc, hours, rec.PhotoRef, rec.MapsURL, rec.Website,
		rec.PriceLevel, string(rec.BusinessStatus), rec.Active, rec.LastUpdated.UTC(), created.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert store %s", rec.ProviderID)
}

func (s *PostgresStore) UpdateStore(ctx context.Context, rec model.StoreRecord) error {
	hours, err := rec.HoursJSON()
	if err != nil {
		return eris.Wrap(err, "postgres: marshal hours")
	}
	loc, err := encodeLocation(rec)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, sqlUpdateStore,
		rec.Name, rec.Address, rec.District, rec.Phone, rec.RatingTenths, rec.ReviewCount,
		rec.Lat, rec.Lng, loc, hours, rec.PhotoRef, rec.MapsURL, rec.Website, rec.PriceLevel,
		string(rec.BusinessStatus), rec.Active, rec.LastUpdated.UTC(), rec.ProviderID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update store %s", rec.ProviderID)
	}
	return checkTag(tag, rec.ProviderID)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status model.BusinessStatus, active bool, at time.Time) error {
	tag, err := s.pool.Exec(ctx, sqlUpdateStatus, string(status), active, at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", id)
	}
	return checkTag(tag, id)
}

func (s *PostgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, sqlTouch, at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch %s", id)
	}
	return checkTag(tag, id)
}

func (s *PostgresStore) DeleteStoreCascade(ctx context.Context, id string) (*CascadeResult, error) {
	var out CascadeResult
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		steps := []struct {
			sql string
			n   *int64
		}{
			{sqlDeleteReviews, &out.Reviews},
			{sqlDeletePhotos, &out.Photos},
			{sqlDeleteMenu, &out.MenuItems},
			{sqlDeleteStore, &out.Stores},
		}
		for _, step := range steps {
			tag, err := tx.Exec(ctx, step.sql, id)
			if err != nil {
				return eris.Wrapf(err, "postgres: cascade delete %s", id)
			}
			*step.n = tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) InsertReview(ctx context.Context, r model.Review) error {
	var observed *time.Time
	if r.ObservedAt != nil {
		t := r.ObservedAt.UTC()
		observed = &t
	}
	_, err := s.pool.Exec(ctx, sqlInsertReview,
		r.StoreID, r.AuthorName, r.RatingStars, r.Text, observed, r.RelativeTimeLabel,
	)
	return eris.Wrapf(err, "postgres: insert review for %s", r.StoreID)
}

func (s *PostgresStore) InsertPhoto(ctx context.Context, p model.Photo) error {
	_, err := s.pool.Exec(ctx, sqlInsertPhoto, p.StoreID, p.PhotoRef, p.Width, p.Height)
	return eris.Wrapf(err, "postgres: insert photo for %s", p.StoreID)
}

func (s *PostgresStore) InsertMenuItem(ctx context.Context, m model.MenuItem) error {
	_, err := s.pool.Exec(ctx, sqlInsertMenu, m.StoreID, m.Name, m.Price, m.Description, string(m.Confidence))
	return eris.Wrapf(err, "postgres: insert menu item for %s", m.StoreID)
}

func (s *PostgresStore) ListStores(ctx context.Context, filter StoreFilter) ([]model.StoreRecord, error) {
	q, args, err := buildListStores(s.sb, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list stores")
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stores")
	}
	defer rows.Close()

	var out []model.StoreRecord
	for rows.Next() {
		rec, err := scanStorePG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan store")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list stores iterate")
}

func (s *PostgresStore) ListReviews(ctx context.Context, storeID string, limit int) ([]model.Review, error) {
	rows, err := s.pool.Query(ctx, sqlListReviews, storeID, clampLimit(limit, MaxReviewLimit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	var out []model.Review
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(&r.ID, &r.StoreID, &r.AuthorName, &r.RatingStars, &r.Text, &r.ObservedAt, &r.RelativeTimeLabel); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reviews iterate")
}

func (s *PostgresStore) ListPhotos(ctx context.Context, storeID string, limit int) ([]model.Photo, error) {
	rows, err := s.pool.Query(ctx, sqlListPhotos, storeID, clampLimit(limit, MaxPhotoLimit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list photos")
	}
	defer rows.Close()

	var out []model.Photo
	for rows.Next() {
		var p model.Photo
		if err := rows.Scan(&p.ID, &p.StoreID, &p.PhotoRef, &p.Width, &p.Height); err != nil {
			return nil, eris.Wrap(err, "postgres: scan photo")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list photos iterate")
}

func (s *PostgresStore) ListMenuItems(ctx context.Context, storeID string) ([]model.MenuItem, error) {
	rows, err := s.pool.Query(ctx, sqlListMenu, storeID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list menu items")
	}
	defer rows.Close()

	var out []model.MenuItem
	for rows.Next() {
		var m model.MenuItem
		var conf string
		if err := rows.Scan(&m.ID, &m.StoreID, &m.Name, &m.Price, &m.Description, &conf); err != nil {
			return nil, eris.Wrap(err, "postgres: scan menu item")
		}
		m.Confidence = model.Confidence(conf)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list menu items iterate")
}

func (s *PostgresStore) DistrictCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, sqlDistricts)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: district counts")
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan district count")
		}
		out[d] = n
	}
	return out, eris.Wrap(rows.Err(), "postgres: district counts iterate")
}

func (s *PostgresStore) SaveRun(ctx context.Context, r *model.RunReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run report")
	}
	_, err = s.pool.Exec(ctx, sqlInsertRun, r.ID, r.StartedAt.UTC(), r.FinishedAt.UTC(), body)
	return eris.Wrapf(err, "postgres: insert run %s", r.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunReport, error) {
	if limit <= 0 {
		limit = runsDefaultLimit
	}
	rows, err := s.pool.Query(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.RunReport
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var r model.RunReport
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run report")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func checkTag(tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: %s", id)
	}
	return nil
}

func scanStorePG(row pgx.Row) (*model.StoreRecord, error) {
	var (
		rec    model.StoreRecord
		hours  []byte
		status string
	)
	err := row.Scan(
		&rec.ProviderID, &rec.Name, &rec.Address, &rec.District, &rec.Phone, &rec.RatingTenths,
		&rec.ReviewCount, &rec.Lat, &rec.Lng, &hours, &rec.PhotoRef, &rec.MapsURL, &rec.Website,
		&rec.PriceLevel, &status, &rec.Active, &rec.LastUpdated, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.BusinessStatus = model.BusinessStatus(status)
	rec.RawHours = json.RawMessage(hours)
	rec.OpeningHours = decodePeriods(rec.RawHours)
	return &rec, nil
}
