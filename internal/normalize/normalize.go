// Package normalize converts raw provider place records into canonical store
// records with their capped review and photo lists.
package normalize

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/district"
	"github.com/tainan-eats/storedir/internal/geo"
	"github.com/tainan-eats/storedir/internal/model"
	"github.com/tainan-eats/storedir/pkg/places"
)

// ErrNoProviderID is returned for records without a place id. It is the only
// reason a record is rejected.
var ErrNoProviderID = eris.New("normalize: record has no provider id")

// DefaultAuthor replaces empty review author names.
const DefaultAuthor = "匿名"

// Result is one normalized store with its related rows.
type Result struct {
	Store   model.StoreRecord
	Reviews []model.Review
	Photos  []model.Photo
}

// Normalize maps p onto the canonical shape. now becomes the record's
// LastUpdated timestamp.
func Normalize(p places.Place, now time.Time) (Result, error) {
	id := strings.TrimSpace(p.PlaceID)
	if id == "" {
		return Result{}, ErrNoProviderID
	}
	log := zap.L().With(zap.String("component", "normalize"), zap.String("place_id", id))

	status := MapStatus(p.BusinessStatus)
	address := strings.TrimSpace(p.Address())

	store := model.StoreRecord{
		ProviderID:     id,
		Name:           strings.TrimSpace(p.Name),
		Address:        address,
		District:       district.Resolve(address),
		Phone:          strings.TrimSpace(p.FormattedPhoneNumber),
		RatingTenths:   RatingTenths(p.Rating, log),
		ReviewCount:    max(p.UserRatingsTotal, 0),
		MapsURL:        p.URL,
		Website:        p.Website,
		PriceLevel:     priceLevel(p.PriceLevel),
		BusinessStatus: status,
		Active:         status == model.StatusOperational,
		LastUpdated:    now,
	}

	if lat, lng, ok := coordinates(p.Geometry); ok {
		store.Lat = &lat
		store.Lng = &lng
	}

	if p.OpeningHours != nil {
		store.OpeningHours = Hours(p.OpeningHours.Periods)
	}

	photos := Photos(id, p.Photos)
	if len(photos) > 0 {
		store.PhotoRef = photos[0].PhotoRef
	}

	res := Result{Store: store}
	if status == model.StatusClosedPermanently {
		return res, nil
	}
	res.Reviews = Reviews(id, p.Reviews)
	res.Photos = photos
	return res, nil
}

// MapStatus maps the provider business_status onto BusinessStatus. Empty and
// unrecognised values are treated as operational.
func MapStatus(s string) model.BusinessStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case places.BusinessClosedTemporarily:
		return model.StatusClosedTemporarily
	case places.BusinessClosedPermanently:
		return model.StatusClosedPermanently
	default:
		return model.StatusOperational
	}
}

// RatingTenths rescales a 0.0-5.0 rating to tenths. Values in (5, 50] are
// already tenths from a previously rescaled dataset and pass through rounded.
// Anything else outside the range is discarded.
func RatingTenths(r *float64, log *zap.Logger) *int {
	if r == nil || math.IsNaN(*r) {
		return nil
	}
	v := *r
	switch {
	case v < 0:
		log.Warn("normalize: negative rating discarded", zap.Float64("rating", v))
		return nil
	case v <= 5:
		t := int(math.Round(v * 10))
		return &t
	case v <= 50:
		log.Warn("normalize: rating already rescaled", zap.Float64("rating", v))
		t := int(math.Round(v))
		return &t
	default:
		log.Warn("normalize: rating out of range discarded", zap.Float64("rating", v))
		return nil
	}
}

func priceLevel(p *int) *int {
	if p == nil || *p < 1 || *p > 4 {
		return nil
	}
	v := *p
	return &v
}

func coordinates(g *places.Geometry) (string, string, bool) {
	if g == nil || g.Location == nil {
		return "", "", false
	}
	loc := geo.LatLng{Lat: g.Location.Lat, Lng: g.Location.Lng}
	if !loc.Valid() {
		return "", "", false
	}
	return geo.FormatDecimal(loc.Lat), geo.FormatDecimal(loc.Lng), true
}

// Hours reshapes provider periods into at most one canonical tuple per day,
// sorted by day. Pairs missing either side or with unparseable times are
// dropped. A close on a later day is expressed as minutes past 1440.
func Hours(periods []places.Period) []model.Period {
	byDay := map[int]model.Period{}
	for _, p := range periods {
		if p.Open == nil || p.Close == nil {
			continue
		}
		if !geo.ValidDay(p.Open.Day) || !geo.ValidDay(p.Close.Day) {
			continue
		}
		open, ok := geo.ParseProviderTime(p.Open.Time)
		if !ok {
			continue
		}
		closeMin, ok := geo.ParseProviderTime(p.Close.Time)
		if !ok {
			continue
		}
		if p.Close.Day != p.Open.Day || closeMin < open {
			closeMin += geo.MinutesPerDay
		}

		cur, seen := byDay[p.Open.Day]
		if !seen {
			byDay[p.Open.Day] = model.Period{Day: p.Open.Day, Open: open, Close: closeMin}
			continue
		}
		cur.Open = min(cur.Open, open)
		cur.Close = max(cur.Close, closeMin)
		byDay[p.Open.Day] = cur
	}

	if len(byDay) == 0 {
		return nil
	}
	out := make([]model.Period, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// Reviews keeps the first MaxReviewsPerStore reviews with a 1-5 star rating.
func Reviews(storeID string, in []places.Review) []model.Review {
	var out []model.Review
	for _, r := range in {
		if len(out) == model.MaxReviewsPerStore {
			break
		}
		stars := int(math.Round(r.Rating))
		if stars < 1 || stars > 5 {
			continue
		}
		author := strings.TrimSpace(r.AuthorName)
		if author == "" {
			author = DefaultAuthor
		}
		rv := model.Review{
			StoreID:           storeID,
			AuthorName:        author,
			RatingStars:       stars,
			Text:              r.Text,
			RelativeTimeLabel: r.RelativeTimeDescription,
		}
		if r.Time > 0 {
			ts := time.Unix(r.Time, 0).UTC()
			rv.ObservedAt = &ts
		}
		out = append(out, rv)
	}
	return out
}

// Photos keeps the first MaxPhotosPerStore non-empty references.
func Photos(storeID string, in []places.Photo) []model.Photo {
	var out []model.Photo
	for _, p := range in {
		if len(out) == model.MaxPhotosPerStore {
			break
		}
		ref := strings.TrimSpace(p.PhotoReference)
		if ref == "" {
			continue
		}
		ph := model.Photo{StoreID: storeID, PhotoRef: ref}
		if p.Width > 0 {
			ph.Width = model.IntPtr(p.Width)
		}
		if p.Height > 0 {
			ph.Height = model.IntPtr(p.Height)
		}
		out = append(out, ph)
	}
	return out
}
