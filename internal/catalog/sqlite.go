package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tainan-eats/storedir/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
}

const sqliteMigration = `
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
	opening_hours   TEXT NOT NULL DEFAULT '[]',
	photo_ref       TEXT NOT NULL DEFAULT '',
	maps_url        TEXT NOT NULL DEFAULT '',
	website         TEXT NOT NULL DEFAULT '',
	price_level     INTEGER,
	business_status TEXT NOT NULL DEFAULT 'operational',
	is_active       INTEGER NOT NULL DEFAULT 1,
	last_updated    DATETIME NOT NULL DEFAULT (datetime('now')),
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reviews (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	store_id      TEXT NOT NULL REFERENCES stores(id),
	author_name   TEXT NOT NULL,
	rating        INTEGER NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	observed_at   DATETIME,
	relative_time TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS store_photos (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	store_id  TEXT NOT NULL REFERENCES stores(id),
	photo_ref TEXT NOT NULL,
	width     INTEGER,
	height    INTEGER
);

CREATE TABLE IF NOT EXISTS menu_items (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	store_id    TEXT NOT NULL REFERENCES stores(id),
	name        TEXT NOT NULL,
	price       INTEGER,
	description TEXT NOT NULL DEFAULT '',
	confidence  TEXT NOT NULL DEFAULT 'medium'
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	report      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stores_district ON stores(district);
CREATE INDEX IF NOT EXISTS idx_stores_active ON stores(is_active);
CREATE INDEX IF NOT EXISTS idx_reviews_store_id ON reviews(store_id);
CREATE INDEX IF NOT EXISTS idx_store_photos_store_id ON store_photos(store_id);
CREATE INDEX IF NOT EXISTS idx_menu_items_store_id ON menu_items(store_id);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetStore(ctx context.Context, id string) (*model.StoreRecord, error) {
	q, args, err := s.sb.Select(storeColumns()...).From("stores").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get store")
	}
	rec, err := scanStoreSQL(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get store %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) InsertStore(ctx context.Context, rec model.StoreRecord) error {
	hours, err := rec.HoursJSON()
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal hours")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = rec.LastUpdated
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stores (id, name, address, district, phone, rating, review_count, lat, lng,
			opening_hours, photo_ref, maps_url, website, price_level, business_status, is_active,
			last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ProviderID, rec.Name, rec.Address, rec.District, rec.Phone, intOrNil(rec.RatingTenths),
		rec.ReviewCount, stringOrNil(rec.Lat), stringOrNil(rec.Lng), string(hours), rec.PhotoRef,
		rec.MapsURL, rec.Website, intOrNil(rec.PriceLevel), string(rec.BusinessStatus), rec.Active,
		rec.LastUpdated.UTC(), created.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert store %s", rec.ProviderID)
}

func (s *SQLiteStore) UpdateStore(ctx context.Context, rec model.StoreRecord) error {
	hours, err := rec.HoursJSON()
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal hours")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE stores SET name = ?, address = ?, district = ?, phone = ?, rating = ?, review_count = ?,
			lat = ?, lng = ?, opening_hours = ?, photo_ref = ?, maps_url = ?, website = ?,
			price_level = ?, business_status = ?, is_active = ?, last_updated = ?
		WHERE id = ?`,
		rec.Name, rec.Address, rec.District, rec.Phone, intOrNil(rec.RatingTenths), rec.ReviewCount,
		stringOrNil(rec.Lat), stringOrNil(rec.Lng), string(hours), rec.PhotoRef, rec.MapsURL, rec.Website,
		intOrNil(rec.PriceLevel), string(rec.BusinessStatus), rec.Active, rec.LastUpdated.UTC(),
		rec.ProviderID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update store %s", rec.ProviderID)
	}
	return checkRowsAffected(res, rec.ProviderID)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status model.BusinessStatus, active bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stores SET business_status = ?, is_active = ?, last_updated = ? WHERE id = ?`,
		string(status), active, at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE stores SET last_updated = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) DeleteStoreCascade(ctx context.Context, id string) (*CascadeResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin cascade")
	}
	defer tx.Rollback() //nolint:errcheck

	var out CascadeResult
	steps := []struct {
		sql string
		n   *int64
	}{
		{`DELETE FROM reviews WHERE store_id = ?`, &out.Reviews},
		{`DELETE FROM store_photos WHERE store_id = ?`, &out.Photos},
		{`DELETE FROM menu_items WHERE store_id = ?`, &out.MenuItems},
		{`DELETE FROM stores WHERE id = ?`, &out.Stores},
	}
	for _, step := range steps {
		res, err := tx.ExecContext(ctx, step.sql, id)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: cascade delete %s", id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: rows affected")
		}
		*step.n = n
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit cascade")
	}
	return &out, nil
}

func (s *SQLiteStore) InsertReview(ctx context.Context, r model.Review) error {
	var observed any
	if r.ObservedAt != nil {
		observed = r.ObservedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (store_id, author_name, rating, text, observed_at, relative_time) VALUES (?, ?, ?, ?, ?, ?)`,
		r.StoreID, r.AuthorName, r.RatingStars, r.Text, observed, r.RelativeTimeLabel,
	)
	return eris.Wrapf(err, "sqlite: insert review for %s", r.StoreID)
}

func (s *SQLiteStore) InsertPhoto(ctx context.Context, p model.Photo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO store_photos (store_id, photo_ref, width, height) VALUES (?, ?, ?, ?)`,
		p.StoreID, p.PhotoRef, intOrNil(p.Width), intOrNil(p.Height),
	)
	return eris.Wrapf(err, "sqlite: insert photo for %s", p.StoreID)
}

func (s *SQLiteStore) InsertMenuItem(ctx context.Context, m model.MenuItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO menu_items (store_id, name, price, description, confidence) VALUES (?, ?, ?, ?, ?)`,
		m.StoreID, m.Name, intOrNil(m.Price), m.Description, string(m.Confidence),
	)
	return eris.Wrapf(err, "sqlite: insert menu item for %s", m.StoreID)
}

func (s *SQLiteStore) ListStores(ctx context.Context, filter StoreFilter) ([]model.StoreRecord, error) {
	q, args, err := buildListStores(s.sb, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list stores")
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stores")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StoreRecord
	for rows.Next() {
		rec, err := scanStoreSQL(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan store")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list stores iterate")
}

func (s *SQLiteStore) ListReviews(ctx context.Context, storeID string, limit int) ([]model.Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, store_id, author_name, rating, text, observed_at, relative_time
		FROM reviews WHERE store_id = ? ORDER BY id LIMIT ?`,
		storeID, clampLimit(limit, MaxReviewLimit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Review
	for rows.Next() {
		var r model.Review
		var observed sql.NullTime
		if err := rows.Scan(&r.ID, &r.StoreID, &r.AuthorName, &r.RatingStars, &r.Text, &observed, &r.RelativeTimeLabel); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review")
		}
		if observed.Valid {
			t := observed.Time
			r.ObservedAt = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reviews iterate")
}

func (s *SQLiteStore) ListPhotos(ctx context.Context, storeID string, limit int) ([]model.Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, store_id, photo_ref, width, height FROM store_photos WHERE store_id = ? ORDER BY id LIMIT ?`,
		storeID, clampLimit(limit, MaxPhotoLimit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list photos")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Photo
	for rows.Next() {
		var p model.Photo
		var w, h sql.NullInt64
		if err := rows.Scan(&p.ID, &p.StoreID, &p.PhotoRef, &w, &h); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan photo")
		}
		p.Width = nullIntPtr(w)
		p.Height = nullIntPtr(h)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list photos iterate")
}

func (s *SQLiteStore) ListMenuItems(ctx context.Context, storeID string) ([]model.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, store_id, name, price, description, confidence FROM menu_items WHERE store_id = ? ORDER BY id`,
		storeID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list menu items")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.MenuItem
	for rows.Next() {
		var m model.MenuItem
		var price sql.NullInt64
		if err := rows.Scan(&m.ID, &m.StoreID, &m.Name, &price, &m.Description, &m.Confidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan menu item")
		}
		m.Price = nullIntPtr(price)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list menu items iterate")
}

func (s *SQLiteStore) DistrictCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT district, COUNT(*) FROM stores WHERE is_active = 1 GROUP BY district`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: district counts")
	}
	defer rows.Close() //nolint:errcheck

	out := map[string]int{}
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan district count")
		}
		out[d] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: district counts iterate")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, r *model.RunReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, started_at, finished_at, report) VALUES (?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC(), r.FinishedAt.UTC(), string(body),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", r.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunReport, error) {
	if limit <= 0 {
		limit = runsDefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RunReport
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var r model.RunReport
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run report")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanStoreSQL(row scannable) (*model.StoreRecord, error) {
	var (
		rec                model.StoreRecord
		rating, priceLevel sql.NullInt64
		lat, lng           sql.NullString
		hours              string
		status             string
	)
	err := row.Scan(
		&rec.ProviderID, &rec.Name, &rec.Address, &rec.District, &rec.Phone, &rating, &rec.ReviewCount,
		&lat, &lng, &hours, &rec.PhotoRef, &rec.MapsURL, &rec.Website, &priceLevel, &status,
		&rec.Active, &rec.LastUpdated, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.RatingTenths = nullIntPtr(rating)
	rec.PriceLevel = nullIntPtr(priceLevel)
	if lat.Valid {
		rec.Lat = &lat.String
	}
	if lng.Valid {
		rec.Lng = &lng.String
	}
	rec.BusinessStatus = model.BusinessStatus(status)
	rec.RawHours = json.RawMessage(hours)
	rec.OpeningHours = decodePeriods(rec.RawHours)
	return &rec, nil
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
