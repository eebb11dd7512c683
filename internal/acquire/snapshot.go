package acquire

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/fetcher"
	"github.com/tainan-eats/storedir/pkg/places"
)

// SnapshotStrategy replays previously captured datasets as a raw source. Each
// path is a JSON array in either the provider shape or the flattened shape the
// older crawl scripts wrote. Paths may be local files, http(s) URLs, or zip
// archives of JSON files.
type SnapshotStrategy struct {
	name   string
	paths  []string
	opener *fetcher.Opener
}

// NewSnapshotStrategy creates a snapshot source over paths, applied in order.
func NewSnapshotStrategy(paths ...string) *SnapshotStrategy {
	return &SnapshotStrategy{name: KindSnapshot, paths: paths, opener: fetcher.NewOpener(nil)}
}

// Name implements Strategy.
func (s *SnapshotStrategy) Name() string { return s.name }

// Acquire implements Strategy. Unreadable files are logged and skipped.
func (s *SnapshotStrategy) Acquire(ctx context.Context) (Source, error) {
	log := zap.L().With(zap.String("strategy", s.name))
	src := NewSource(s.name)
	src.Snapshot = true

	var firstErr error
	for _, path := range s.paths {
		if ctx.Err() != nil {
			break
		}
		n, err := s.load(ctx, path, &src)
		if err != nil {
			log.Warn("snapshot unreadable, skipping", zap.String("path", path), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Info("snapshot loaded", zap.String("path", path), zap.Int("records", n))
	}

	if src.Dropped > 0 {
		log.Warn("snapshot rows without place id dropped", zap.Int("dropped", src.Dropped))
	}
	return src, firstErr
}

func (s *SnapshotStrategy) load(ctx context.Context, path string, src *Source) (int, error) {
	total := 0
	err := s.opener.Each(ctx, path, func(name string, r io.Reader) error {
		n, err := DecodeSnapshot(r, src)
		total += n
		if err != nil {
			return eris.Wrapf(err, "acquire: snapshot %s", name)
		}
		return nil
	})
	return total, err
}

// DecodeSnapshot reads a JSON array of place records from r into src. Elements
// that are not objects or have no place id are counted in src.Dropped.
func DecodeSnapshot(r io.Reader, src *Source) (int, error) {
	var rows []json.RawMessage
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return 0, eris.Wrap(err, "acquire: decode snapshot")
	}

	added := 0
	for _, raw := range rows {
		p, ok := decodeSnapshotRow(raw)
		if !ok {
			src.Dropped++
			continue
		}
		if src.Add(p) {
			added++
		}
	}
	return added, nil
}

// flatRow holds the fields of the flattened historical shape that differ from
// the provider shape.
type flatRow struct {
	Address   string          `json:"address"`
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	Phone     string          `json:"phone"`
	Rating    json.RawMessage `json:"rating"`
}

func decodeSnapshotRow(raw json.RawMessage) (places.Place, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return places.Place{}, false
	}

	// Decode the provider-shaped fields one at a time so a single malformed
	// value only loses itself.
	var p places.Place
	decodeField(probe, "place_id", &p.PlaceID)
	decodeField(probe, "name", &p.Name)
	decodeField(probe, "formatted_address", &p.FormattedAddress)
	decodeField(probe, "vicinity", &p.Vicinity)
	decodeField(probe, "geometry", &p.Geometry)
	decodeField(probe, "user_ratings_total", &p.UserRatingsTotal)
	decodeField(probe, "business_status", &p.BusinessStatus)
	decodeField(probe, "opening_hours", &p.OpeningHours)
	decodeField(probe, "photos", &p.Photos)
	decodeField(probe, "reviews", &p.Reviews)
	decodeField(probe, "url", &p.URL)
	decodeField(probe, "formatted_phone_number", &p.FormattedPhoneNumber)
	decodeField(probe, "website", &p.Website)
	decodeField(probe, "price_level", &p.PriceLevel)

	var flat flatRow
	decodeField(probe, "address", &flat.Address)
	decodeField(probe, "phone", &flat.Phone)
	flat.Latitude = probe["latitude"]
	flat.Longitude = probe["longitude"]
	flat.Rating = probe["rating"]

	if p.FormattedAddress == "" {
		p.FormattedAddress = flat.Address
	}
	if p.FormattedPhoneNumber == "" {
		p.FormattedPhoneNumber = flat.Phone
	}
	if r, ok := looseFloat(flat.Rating); ok {
		p.Rating = &r
	}
	if p.Geometry == nil || p.Geometry.Location == nil {
		lat, okLat := looseFloat(flat.Latitude)
		lng, okLng := looseFloat(flat.Longitude)
		if okLat && okLng {
			p.Geometry = &places.Geometry{Location: &places.LatLng{Lat: lat, Lng: lng}}
		}
	}
	return p, true
}

func decodeField(probe map[string]json.RawMessage, key string, dst any) {
	raw, ok := probe[key]
	if !ok || len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dst) //nolint:errcheck
}

// looseFloat accepts a JSON number or a numeric string.
func looseFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
