package reconcile

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tainan-eats/storedir/internal/catalog"
	"github.com/tainan-eats/storedir/internal/model"
	"github.com/tainan-eats/storedir/internal/normalize"
	"github.com/tainan-eats/storedir/pkg/places"
)

var t0 = time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *catalog.SQLiteStore {
	t.Helper()
	s, err := catalog.NewSQLite(filepath.Join(t.TempDir(), "reconcile.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func rawPlace(id, status string, rating float64, reviews int) places.Place {
	p := places.Place{
		PlaceID:          id,
		Name:             "阿村牛肉湯",
		FormattedAddress: "700台灣台南市中西區保安路41號",
		Geometry:         &places.Geometry{Location: &places.LatLng{Lat: 22.9926, Lng: 120.2012}},
		Rating:           &rating,
		UserRatingsTotal: 1200,
		BusinessStatus:   status,
		OpeningHours: &places.OpeningHours{Periods: []places.Period{
			{Open: &places.DayTime{Day: 1, Time: "0450"}, Close: &places.DayTime{Day: 1, Time: "1230"}},
		}},
		Photos: []places.Photo{{PhotoReference: "ph-1", Width: 800, Height: 600}},
	}
	for i := 0; i < reviews; i++ {
		p.Reviews = append(p.Reviews, places.Review{AuthorName: "客人", Rating: 5, Text: "好喝", Time: t0.Unix()})
	}
	return p
}

func normalized(t *testing.T, p places.Place, at time.Time) normalize.Result {
	t.Helper()
	res, err := normalize.Normalize(p, at)
	require.NoError(t, err)
	return res
}

func TestReconcile_InsertThenUnchanged(t *testing.T) {
	s := newStore(t)
	e := NewEngine(s, nil)
	ctx := context.Background()
	p := rawPlace("X1", places.BusinessOperational, 4.5, 3)

	d, err := e.Reconcile(ctx, normalized(t, p, t0))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeInserted, d.Outcome)
	assert.Equal(t, 3, d.Imports.ReviewsInserted)
	assert.Equal(t, 1, d.Imports.PhotosInserted)

	d, err = e.Reconcile(ctx, normalized(t, p, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeUnchanged, d.Outcome)

	got, err := s.GetStore(ctx, "X1")
	require.NoError(t, err)
	assert.True(t, got.LastUpdated.Equal(t0.Add(time.Hour)))
	assert.Equal(t, 45, *got.RatingTenths)

	reviews, err := s.ListReviews(ctx, "X1", 50)
	require.NoError(t, err)
	assert.Len(t, reviews, 3)
}

func TestReconcile_UpdateLeavesRelatedRows(t *testing.T) {
	s := newStore(t)
	e := NewEngine(s, nil)
	ctx := context.Background()

	_, err := e.Reconcile(ctx, normalized(t, rawPlace("X1", places.BusinessOperational, 4.5, 2), t0))
	require.NoError(t, err)

	d, err := e.Reconcile(ctx, normalized(t, rawPlace("X1", places.BusinessOperational, 4.7, 5), t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeUpdated, d.Outcome)
	require.NotNil(t, d.Change)
	assert.InDelta(t, 4.5, *d.Change.OldRating, 1e-9)
	assert.InDelta(t, 4.7, *d.Change.NewRating, 1e-9)
	assert.Zero(t, d.Imports.ReviewsInserted)

	got, err := s.GetStore(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, 47, *got.RatingTenths)
	assert.True(t, got.CreatedAt.Equal(t0))

	reviews, err := s.ListReviews(ctx, "X1", 50)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)
}

func TestReconcile_PermanentClosureRetires(t *testing.T) {
	s := newStore(t)
	e := NewEngine(s, nil)
	ctx := context.Background()

	_, err := e.Reconcile(ctx, normalized(t, rawPlace("X1", places.BusinessOperational, 4.5, 3), t0))
	require.NoError(t, err)

	closed := rawPlace("X1", places.BusinessClosedPermanently, 3.9, 0)
	closed.Name = "renamed"
	d, err := e.Reconcile(ctx, normalized(t, closed, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRetired, d.Outcome)
	require.NotNil(t, d.Cascade)
	assert.EqualValues(t, 3, d.Cascade.Reviews)
	assert.EqualValues(t, 1, d.Cascade.Stores)

	got, err := s.GetStore(ctx, "X1")
	require.NoError(t, err)
	assert.Nil(t, got)
	reviews, err := s.ListReviews(ctx, "X1", 50)
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestReconcile_PermanentClosureUnknownIsSkipped(t *testing.T) {
	s := newStore(t)
	e := NewEngine(s, nil)

	d, err := e.Reconcile(context.Background(), normalized(t, rawPlace("ghost", places.BusinessClosedPermanently, 4, 0), t0))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSkipped, d.Outcome)

	all, err := s.ListStores(context.Background(), catalog.StoreFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReconcile_TemporaryClosureOnlyTouchesStatus(t *testing.T) {
	s := newStore(t)
	e := NewEngine(s, nil)
	ctx := context.Background()

	_, err := e.Reconcile(ctx, normalized(t, rawPlace("X1", places.BusinessOperational, 4.5, 0), t0))
	require.NoError(t, err)

	tmp := rawPlace("X1", places.BusinessClosedTemporarily, 2.0, 0)
	tmp.Name = "should not be written"
	d, err := e.Reconcile(ctx, normalized(t, tmp, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeStatusUpdated, d.Outcome)

	got, err := s.GetStore(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosedTemporarily, got.BusinessStatus)
	assert.False(t, got.Active)
	assert.Equal(t, "阿村牛肉湯", got.Name)
	assert.Equal(t, 45, *got.RatingTenths)

	d, err = e.Reconcile(ctx, normalized(t, rawPlace("X1", places.BusinessOperational, 4.5, 0), t0.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeUpdated, d.Outcome)
	got, err = s.GetStore(ctx, "X1")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, model.StatusOperational, got.BusinessStatus)
}

func TestReconcile_NewTemporarilyClosedStoreIsInserted(t *testing.T) {
	s := newStore(t)
	e := NewEngine(s, nil)

	d, err := e.Reconcile(context.Background(), normalized(t, rawPlace("X1", places.BusinessClosedTemporarily, 4.1, 1), t0))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeInserted, d.Outcome)

	got, err := s.GetStore(context.Background(), "X1")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestReconcile_LegacyHoursAreRewritten(t *testing.T) {
	next := normalized(t, rawPlace("X1", places.BusinessOperational, 4.5, 0), t0).Store
	cur := next
	cur.OpeningHours = nil
	cur.RawHours = []byte(`["星期一: 05:00–12:30"]`)
	assert.True(t, Differs(cur, next))

	cur.RawHours = []byte(`[]`)
	next.OpeningHours = nil
	assert.False(t, Differs(cur, next))
}

func TestReconcile_MissingID(t *testing.T) {
	e := NewEngine(newStore(t), nil)
	d, err := e.Reconcile(context.Background(), normalize.Result{})
	assert.ErrorIs(t, err, normalize.ErrNoProviderID)
	assert.Equal(t, model.OutcomeFailed, d.Outcome)
}

func TestDiffers(t *testing.T) {
	base := model.StoreRecord{
		ProviderID: "X1", Name: "a", RatingTenths: model.IntPtr(45),
		Lat: model.StringPtr("22.99"), Lng: model.StringPtr("120.2"),
		OpeningHours:   []model.Period{{Day: 1, Open: 290, Close: 750}},
		BusinessStatus: model.StatusOperational, Active: true, LastUpdated: t0,
	}
	same := base
	same.LastUpdated = t0.Add(time.Hour)
	assert.False(t, Differs(base, same))

	rating := base
	rating.RatingTenths = nil
	assert.True(t, Differs(base, rating))

	hours := base
	hours.OpeningHours = []model.Period{{Day: 1, Open: 300, Close: 750}}
	assert.True(t, Differs(base, hours))

	emptyHours := base
	emptyHours.OpeningHours = nil
	cur := base
	cur.OpeningHours = []model.Period{}
	assert.False(t, Differs(cur, emptyHours))
}

func TestLocker_SerialisesPerID(t *testing.T) {
	l := NewLocker()
	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("X1")
			mu.Lock()
			inside++
			maxInside = max(maxInside, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
	assert.Zero(t, l.Len())
}

func TestLocker_IndependentIDs(t *testing.T) {
	l := NewLocker()
	unlockA := l.Lock("A")
	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("B")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on B blocked behind A")
	}
	unlockA()
}
