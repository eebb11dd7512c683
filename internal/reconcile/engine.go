// Package reconcile applies normalized records to the persisted catalog:
// insert, update, status change or retirement per provider id.
package reconcile

import (
	"bytes"
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/catalog"
	"github.com/tainan-eats/storedir/internal/model"
	"github.com/tainan-eats/storedir/internal/normalize"
)

// Decision is the outcome of reconciling one record.
type Decision struct {
	Outcome model.Outcome
	Imports model.ImportStats
	// Change is set for updated and status_updated outcomes.
	Change *model.StoreChange
	// Cascade is set when a store was retired.
	Cascade *catalog.CascadeResult
}

// Engine runs the reconciliation decision table against a catalog store.
type Engine struct {
	store    catalog.Store
	importer *Importer
	locker   *Locker
	log      *zap.Logger
}

// NewEngine creates an Engine. A nil locker gets a private one.
func NewEngine(store catalog.Store, locker *Locker) *Engine {
	if locker == nil {
		locker = NewLocker()
	}
	return &Engine{
		store:    store,
		importer: NewImporter(store),
		locker:   locker,
		log:      zap.L().With(zap.String("component", "reconcile")),
	}
}

// Reconcile looks up res.Store by provider id and applies the matching write.
// Permanent closure is checked before any attribute comparison.
func (e *Engine) Reconcile(ctx context.Context, res normalize.Result) (Decision, error) {
	in := res.Store
	if in.ProviderID == "" {
		return Decision{Outcome: model.OutcomeFailed}, normalize.ErrNoProviderID
	}

	unlock := e.locker.Lock(in.ProviderID)
	defer unlock()

	log := e.log.With(zap.String("place_id", in.ProviderID))

	existing, err := e.store.GetStore(ctx, in.ProviderID)
	if err != nil {
		return Decision{Outcome: model.OutcomeFailed}, eris.Wrap(err, "reconcile: lookup")
	}

	if existing == nil {
		if in.BusinessStatus == model.StatusClosedPermanently {
			log.Debug("skipping permanently closed store not in catalog")
			return Decision{Outcome: model.OutcomeSkipped}, nil
		}
		if in.CreatedAt.IsZero() {
			in.CreatedAt = in.LastUpdated
		}
		if err := e.store.InsertStore(ctx, in); err != nil {
			return Decision{Outcome: model.OutcomeFailed}, eris.Wrap(err, "reconcile: insert")
		}
		stats := e.importer.Import(ctx, in.ProviderID, res.Reviews, res.Photos)
		log.Info("store inserted",
			zap.String("name", in.Name),
			zap.Int("reviews", stats.ReviewsInserted),
			zap.Int("photos", stats.PhotosInserted),
		)
		return Decision{Outcome: model.OutcomeInserted, Imports: stats}, nil
	}

	switch in.BusinessStatus {
	case model.StatusClosedPermanently:
		cascade, err := e.store.DeleteStoreCascade(ctx, in.ProviderID)
		if err != nil {
			return Decision{Outcome: model.OutcomeFailed}, eris.Wrap(err, "reconcile: retire")
		}
		log.Info("store retired",
			zap.String("name", existing.Name),
			zap.Int64("reviews", cascade.Reviews),
			zap.Int64("photos", cascade.Photos),
		)
		return Decision{Outcome: model.OutcomeRetired, Cascade: cascade}, nil

	case model.StatusClosedTemporarily:
		if err := e.store.UpdateStatus(ctx, in.ProviderID, model.StatusClosedTemporarily, false, in.LastUpdated); err != nil {
			return Decision{Outcome: model.OutcomeFailed}, eris.Wrap(err, "reconcile: update status")
		}
		return Decision{Outcome: model.OutcomeStatusUpdated, Change: changeOf(*existing, in)}, nil
	}

	in.Active = true
	if !Differs(*existing, in) {
		if err := e.store.Touch(ctx, in.ProviderID, in.LastUpdated); err != nil {
			return Decision{Outcome: model.OutcomeFailed}, eris.Wrap(err, "reconcile: touch")
		}
		return Decision{Outcome: model.OutcomeUnchanged}, nil
	}

	in.CreatedAt = existing.CreatedAt
	if err := e.store.UpdateStore(ctx, in); err != nil {
		return Decision{Outcome: model.OutcomeFailed}, eris.Wrap(err, "reconcile: update")
	}
	log.Debug("store updated", zap.String("name", in.Name))
	return Decision{Outcome: model.OutcomeUpdated, Change: changeOf(*existing, in)}, nil
}

// Differs reports whether any persisted attribute of next differs from cur.
// LastUpdated and CreatedAt are ignored.
func Differs(cur, next model.StoreRecord) bool {
	if cur.Name != next.Name ||
		cur.Address != next.Address ||
		cur.District != next.District ||
		cur.Phone != next.Phone ||
		cur.ReviewCount != next.ReviewCount ||
		cur.PhotoRef != next.PhotoRef ||
		cur.MapsURL != next.MapsURL ||
		cur.Website != next.Website ||
		cur.BusinessStatus != next.BusinessStatus ||
		cur.Active != next.Active {
		return true
	}
	if !eqPtr(cur.RatingTenths, next.RatingTenths) ||
		!eqPtr(cur.PriceLevel, next.PriceLevel) ||
		!eqPtr(cur.Lat, next.Lat) ||
		!eqPtr(cur.Lng, next.Lng) {
		return true
	}
	return !sameHours(cur, next)
}

// sameHours compares schedules. A stored column in the legacy shape never
// matches, so the next update rewrites it canonically.
func sameHours(cur, next model.StoreRecord) bool {
	if cur.OpeningHours == nil && len(cur.RawHours) > 0 && !isEmptyArray(cur.RawHours) {
		return false
	}
	if len(cur.OpeningHours) == 0 && len(next.OpeningHours) == 0 {
		return true
	}
	return slices.Equal(cur.OpeningHours, next.OpeningHours)
}

func isEmptyArray(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return bytes.Equal(t, []byte("[]")) || bytes.Equal(t, []byte("null"))
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func changeOf(cur, next model.StoreRecord) *model.StoreChange {
	return &model.StoreChange{
		ProviderID:     next.ProviderID,
		Name:           next.Name,
		OldRating:      model.ExposeRating(cur.RatingTenths),
		NewRating:      model.ExposeRating(next.RatingTenths),
		OldReviewCount: cur.ReviewCount,
		NewReviewCount: next.ReviewCount,
		OldStatus:      cur.BusinessStatus,
		NewStatus:      next.BusinessStatus,
	}
}
