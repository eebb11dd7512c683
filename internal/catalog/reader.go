package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tainan-eats/storedir/internal/model"
	"github.com/tainan-eats/storedir/pkg/places"
)

// PhotoConfig controls how photo references become URLs on the read path.
type PhotoConfig struct {
	BaseURL  string
	Key      string
	MaxWidth int
}

// StoreView is the consumer shape of a store. Ratings are 0.0-5.0 decimals.
type StoreView struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Address        string          `json:"address"`
	District       string          `json:"district"`
	Phone          string          `json:"phone,omitempty"`
	Rating         *float64        `json:"rating"`
	ReviewCount    int             `json:"reviewCount"`
	Lat            *string         `json:"lat"`
	Lng            *string         `json:"lng"`
	OpeningHours   json.RawMessage `json:"openingHours"`
	PhotoURL       string          `json:"photoUrl,omitempty"`
	MapsURL        string          `json:"mapsUrl,omitempty"`
	Website        string          `json:"website,omitempty"`
	PriceLevel     *int            `json:"priceLevel,omitempty"`
	BusinessStatus string          `json:"businessStatus"`
	Active         bool            `json:"isActive"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

// ReviewView is the consumer shape of a review.
type ReviewView struct {
	AuthorName   string     `json:"authorName"`
	Rating       int        `json:"rating"`
	Text         string     `json:"text"`
	Time         *time.Time `json:"time,omitempty"`
	RelativeTime string     `json:"relativeTime,omitempty"`
}

// PhotoView is the consumer shape of a photo with its resolved URL.
type PhotoView struct {
	PhotoRef string `json:"photoRef"`
	Width    *int   `json:"width,omitempty"`
	Height   *int   `json:"height,omitempty"`
	URL      string `json:"url"`
}

// Reader is the read path over a Store used by the query layer and the API.
type Reader struct {
	store  Store
	photos PhotoConfig
}

// NewReader wraps a Store for consumers.
func NewReader(store Store, photos PhotoConfig) *Reader {
	if photos.BaseURL == "" {
		photos.BaseURL = places.DefaultBaseURL
	}
	return &Reader{store: store, photos: photos}
}

// Store returns the store with the given id, or nil when it does not exist.
func (r *Reader) Store(ctx context.Context, id string) (*StoreView, error) {
	rec, err := r.store.GetStore(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "reader: get store")
	}
	if rec == nil {
		return nil, nil
	}
	v := r.View(*rec)
	return &v, nil
}

// Stores lists stores matching filter in catalog order.
func (r *Reader) Stores(ctx context.Context, filter StoreFilter) ([]StoreView, error) {
	recs, err := r.store.ListStores(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "reader: list stores")
	}
	return r.Views(recs), nil
}

// Views converts records to consumer views.
func (r *Reader) Views(recs []model.StoreRecord) []StoreView {
	out := make([]StoreView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, r.View(rec))
	}
	return out
}

// Reviews returns up to limit reviews for a store.
func (r *Reader) Reviews(ctx context.Context, storeID string, limit int) ([]ReviewView, error) {
	rows, err := r.store.ListReviews(ctx, storeID, clampLimit(limit, MaxReviewLimit))
	if err != nil {
		return nil, eris.Wrap(err, "reader: list reviews")
	}
	out := make([]ReviewView, 0, len(rows))
	for _, rv := range rows {
		out = append(out, ReviewView{
			AuthorName:   rv.AuthorName,
			Rating:       rv.RatingStars,
			Text:         rv.Text,
			Time:         rv.ObservedAt,
			RelativeTime: rv.RelativeTimeLabel,
		})
	}
	return out, nil
}

// Photos returns up to limit photos for a store with URLs resolved.
func (r *Reader) Photos(ctx context.Context, storeID string, limit int) ([]PhotoView, error) {
	rows, err := r.store.ListPhotos(ctx, storeID, clampLimit(limit, MaxPhotoLimit))
	if err != nil {
		return nil, eris.Wrap(err, "reader: list photos")
	}
	out := make([]PhotoView, 0, len(rows))
	for _, p := range rows {
		out = append(out, PhotoView{
			PhotoRef: p.PhotoRef,
			Width:    p.Width,
			Height:   p.Height,
			URL:      r.photoURL(p.PhotoRef),
		})
	}
	return out, nil
}

// MenuItems returns the imported menu for a store.
func (r *Reader) MenuItems(ctx context.Context, storeID string) ([]model.MenuItem, error) {
	items, err := r.store.ListMenuItems(ctx, storeID)
	if err != nil {
		return nil, eris.Wrap(err, "reader: list menu items")
	}
	if items == nil {
		items = []model.MenuItem{}
	}
	return items, nil
}

func (r *Reader) photoURL(ref string) string {
	if ref == "" {
		return ""
	}
	return places.PhotoURL(r.photos.BaseURL, ref, r.photos.Key, r.photos.MaxWidth)
}

// View converts one record to its consumer shape.
func (r *Reader) View(rec model.StoreRecord) StoreView {
	hours := rec.RawHours
	if len(hours) == 0 {
		if b, err := rec.HoursJSON(); err == nil {
			hours = b
		}
	}
	return StoreView{
		ID:             rec.ProviderID,
		Name:           rec.Name,
		Address:        rec.Address,
		District:       rec.District,
		Phone:          rec.Phone,
		Rating:         model.ExposeRating(rec.RatingTenths),
		ReviewCount:    rec.ReviewCount,
		Lat:            rec.Lat,
		Lng:            rec.Lng,
		OpeningHours:   hours,
		PhotoURL:       r.photoURL(rec.PhotoRef),
		MapsURL:        rec.MapsURL,
		Website:        rec.Website,
		PriceLevel:     rec.PriceLevel,
		BusinessStatus: string(rec.BusinessStatus),
		Active:         rec.Active,
		LastUpdated:    rec.LastUpdated,
	}
}
