package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/model"
)

// RelatedWriter is the subset of catalog.Store used by the importer.
type RelatedWriter interface {
	InsertReview(ctx context.Context, r model.Review) error
	InsertPhoto(ctx context.Context, p model.Photo) error
}

// Importer appends reviews and photos for a store. Items are written
// independently and a failed item never stops the rest.
type Importer struct {
	w   RelatedWriter
	log *zap.Logger
}

// NewImporter creates an Importer over w.
func NewImporter(w RelatedWriter) *Importer {
	return &Importer{w: w, log: zap.L().With(zap.String("component", "importer"))}
}

// Import writes at most five reviews and ten photos for storeID.
func (im *Importer) Import(ctx context.Context, storeID string, reviews []model.Review, photos []model.Photo) model.ImportStats {
	var stats model.ImportStats

	if len(reviews) > model.MaxReviewsPerStore {
		reviews = reviews[:model.MaxReviewsPerStore]
	}
	for i, r := range reviews {
		r.StoreID = storeID
		if err := im.w.InsertReview(ctx, r); err != nil {
			im.log.Warn("review insert failed",
				zap.String("store_id", storeID), zap.Int("index", i), zap.Error(err))
			stats.ReviewsFailed++
			continue
		}
		stats.ReviewsInserted++
	}

	if len(photos) > model.MaxPhotosPerStore {
		photos = photos[:model.MaxPhotosPerStore]
	}
	for i, p := range photos {
		p.StoreID = storeID
		if err := im.w.InsertPhoto(ctx, p); err != nil {
			im.log.Warn("photo insert failed",
				zap.String("store_id", storeID), zap.Int("index", i), zap.Error(err))
			stats.PhotosFailed++
			continue
		}
		stats.PhotosInserted++
	}

	return stats
}
