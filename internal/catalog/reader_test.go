package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tainan-eats/storedir/internal/model"
)

func TestReader_StoreView(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	rec := sampleStore("X1", "阿村牛肉湯", "中西區", 46, 0)
	rec.PhotoRef = "ref-main"
	require.NoError(t, s.InsertStore(ctx, rec))

	r := NewReader(s, PhotoConfig{BaseURL: "https://img.test/place", Key: "k"})
	v, err := r.Store(ctx, "X1")
	require.NoError(t, err)
	require.NotNil(t, v)
	require.NotNil(t, v.Rating)
	assert.InDelta(t, 4.6, *v.Rating, 1e-9)
	assert.Equal(t, "https://img.test/place/photo?key=k&maxwidth=800&photo_reference=ref-main", v.PhotoURL)
	assert.JSONEq(t, `[{"day":1,"open":290,"close":750}]`, string(v.OpeningHours))

	missing, err := r.Store(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReader_PhotosAndReviews(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.InsertStore(ctx, sampleStore("X1", "a", "東區", 40, 0)))
	for i := 0; i < 12; i++ {
		require.NoError(t, s.InsertPhoto(ctx, model.Photo{StoreID: "X1", PhotoRef: "p"}))
		require.NoError(t, s.InsertReview(ctx, model.Review{StoreID: "X1", AuthorName: "a", RatingStars: 5}))
	}

	r := NewReader(s, PhotoConfig{Key: "k", MaxWidth: 400})
	photos, err := r.Photos(ctx, "X1", 0)
	require.NoError(t, err)
	assert.Len(t, photos, DefaultRelatedLimit)
	assert.Contains(t, photos[0].URL, "maxwidth=400")

	reviews, err := r.Reviews(ctx, "X1", 500)
	require.NoError(t, err)
	assert.Len(t, reviews, 12)

	menu, err := r.MenuItems(ctx, "X1")
	require.NoError(t, err)
	assert.NotNil(t, menu)
	assert.Empty(t, menu)
}

func TestReader_Stores(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	rec := sampleStore("X1", "a", "東區", 40, 0)
	rec.RatingTenths = nil
	require.NoError(t, s.InsertStore(ctx, rec))

	views, err := NewReader(s, PhotoConfig{}).Stores(ctx, StoreFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Nil(t, views[0].Rating)
	assert.Empty(t, views[0].PhotoURL)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultRelatedLimit, clampLimit(0, 50))
	assert.Equal(t, DefaultRelatedLimit, clampLimit(-3, 50))
	assert.Equal(t, 7, clampLimit(7, 50))
	assert.Equal(t, 50, clampLimit(99, 50))
}
