package normalize

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/model"
	"github.com/tainan-eats/storedir/pkg/places"
)

var fixedNow = time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

func samplePlace() places.Place {
	return places.Place{
		PlaceID:              "X1",
		Name:                 " 阿村牛肉湯 ",
		FormattedAddress:     "700台灣台南市中西區保安路41號",
		Geometry:             &places.Geometry{Location: &places.LatLng{Lat: 22.9897, Lng: 120.1978}},
		Rating:               fptr(4.5),
		UserRatingsTotal:     8123,
		BusinessStatus:       "OPERATIONAL",
		FormattedPhoneNumber: "06 229 1075",
		URL:                  "https://maps.google.com/?cid=1",
		OpeningHours: &places.OpeningHours{Periods: []places.Period{
			{Open: &places.DayTime{Day: 1, Time: "0450"}, Close: &places.DayTime{Day: 1, Time: "1230"}},
		}},
		Photos: []places.Photo{{PhotoReference: "ph-1", Width: 800, Height: 600}},
		Reviews: []places.Review{
			{AuthorName: "小明", Rating: 5, Text: "好喝", Time: 1700000000, RelativeTimeDescription: "1 週前"},
		},
	}
}

func TestNormalize(t *testing.T) {
	res, err := Normalize(samplePlace(), fixedNow)
	require.NoError(t, err)

	s := res.Store
	assert.Equal(t, "X1", s.ProviderID)
	assert.Equal(t, "阿村牛肉湯", s.Name)
	assert.Equal(t, "中西區", s.District)
	require.NotNil(t, s.RatingTenths)
	assert.Equal(t, 45, *s.RatingTenths)
	assert.Equal(t, 8123, s.ReviewCount)
	require.NotNil(t, s.Lat)
	assert.Equal(t, "22.9897", *s.Lat)
	assert.Equal(t, "120.1978", *s.Lng)
	assert.Equal(t, model.StatusOperational, s.BusinessStatus)
	assert.True(t, s.Active)
	assert.Equal(t, []model.Period{{Day: 1, Open: 290, Close: 750}}, s.OpeningHours)
	assert.Equal(t, "ph-1", s.PhotoRef)
	assert.Equal(t, fixedNow, s.LastUpdated)

	require.Len(t, res.Reviews, 1)
	assert.Equal(t, "X1", res.Reviews[0].StoreID)
	require.NotNil(t, res.Reviews[0].ObservedAt)
	assert.Equal(t, int64(1700000000), res.Reviews[0].ObservedAt.Unix())
	require.Len(t, res.Photos, 1)
	assert.Equal(t, 800, *res.Photos[0].Width)
}

func TestNormalize_MissingID(t *testing.T) {
	_, err := Normalize(places.Place{Name: "no id"}, fixedNow)
	assert.ErrorIs(t, err, ErrNoProviderID)

	_, err = Normalize(places.Place{PlaceID: "  "}, fixedNow)
	assert.ErrorIs(t, err, ErrNoProviderID)
}

func TestNormalize_MalformedFieldsDegrade(t *testing.T) {
	p := places.Place{
		PlaceID:  "X2",
		Geometry: &places.Geometry{Location: &places.LatLng{Lat: 190, Lng: 0}},
	}
	res, err := Normalize(p, fixedNow)
	require.NoError(t, err)
	assert.Nil(t, res.Store.Lat)
	assert.Nil(t, res.Store.Lng)
	assert.Nil(t, res.Store.RatingTenths)
	assert.Empty(t, res.Store.OpeningHours)
	assert.Equal(t, "未知", res.Store.District)
	assert.Equal(t, model.StatusOperational, res.Store.BusinessStatus)
}

func TestNormalize_ClosedPermanently(t *testing.T) {
	p := samplePlace()
	p.BusinessStatus = "CLOSED_PERMANENTLY"

	res, err := Normalize(p, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosedPermanently, res.Store.BusinessStatus)
	assert.False(t, res.Store.Active)
	assert.Nil(t, res.Reviews)
	assert.Nil(t, res.Photos)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, model.StatusOperational, MapStatus("OPERATIONAL"))
	assert.Equal(t, model.StatusClosedTemporarily, MapStatus("CLOSED_TEMPORARILY"))
	assert.Equal(t, model.StatusClosedPermanently, MapStatus("closed_permanently"))
	assert.Equal(t, model.StatusOperational, MapStatus(""))
	assert.Equal(t, model.StatusOperational, MapStatus("SOMETHING_NEW"))
}

func TestRatingTenths(t *testing.T) {
	log := zap.NewNop()
	tests := []struct {
		name string
		in   *float64
		want *int
	}{
		{"absent", nil, nil},
		{"zero", fptr(0), model.IntPtr(0)},
		{"typical", fptr(4.5), model.IntPtr(45)},
		{"rounding", fptr(4.26), model.IntPtr(43)},
		{"max", fptr(5), model.IntPtr(50)},
		{"already tenths", fptr(42), model.IntPtr(42)},
		{"too large", fptr(51), nil},
		{"negative", fptr(-1), nil},
		{"nan", fptr(math.NaN()), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RatingTenths(tt.in, log))
		})
	}
}

func TestRatingTenths_RoundTrip(t *testing.T) {
	log := zap.NewNop()
	for i := 0; i <= 50; i++ {
		r := float64(i) / 10
		got := model.ExposeRating(RatingTenths(&r, log))
		require.NotNil(t, got)
		assert.InDelta(t, r, *got, 0.05)
	}
}

func TestHours(t *testing.T) {
	dt := func(day int, tm string) *places.DayTime { return &places.DayTime{Day: day, Time: tm} }

	tests := []struct {
		name string
		in   []places.Period
		want []model.Period
	}{
		{
			name: "sorted by day",
			in: []places.Period{
				{Open: dt(3, "0600"), Close: dt(3, "1300")},
				{Open: dt(0, "0500"), Close: dt(0, "1200")},
			},
			want: []model.Period{{Day: 0, Open: 300, Close: 720}, {Day: 3, Open: 360, Close: 780}},
		},
		{
			name: "missing side dropped",
			in: []places.Period{
				{Open: dt(1, "0600")},
				{Close: dt(2, "1300")},
			},
			want: nil,
		},
		{
			name: "overnight",
			in:   []places.Period{{Open: dt(5, "1800"), Close: dt(6, "0200")}},
			want: []model.Period{{Day: 5, Open: 1080, Close: 1560}},
		},
		{
			name: "saturday into sunday",
			in:   []places.Period{{Open: dt(6, "2200"), Close: dt(0, "0100")}},
			want: []model.Period{{Day: 6, Open: 1320, Close: 1500}},
		},
		{
			name: "split shift merged",
			in: []places.Period{
				{Open: dt(2, "1700"), Close: dt(2, "2100")},
				{Open: dt(2, "0500"), Close: dt(2, "1100")},
			},
			want: []model.Period{{Day: 2, Open: 300, Close: 1260}},
		},
		{
			name: "unparseable time dropped",
			in:   []places.Period{{Open: dt(1, "5am"), Close: dt(1, "1200")}},
			want: nil,
		},
		{
			name: "invalid day dropped",
			in:   []places.Period{{Open: dt(7, "0500"), Close: dt(7, "1200")}},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Hours(tt.in))
		})
	}
}

func TestReviews_CapAndFilter(t *testing.T) {
	in := []places.Review{
		{AuthorName: "", Rating: 4, Text: "a"},
		{AuthorName: "b", Rating: 0, Text: "dropped"},
		{AuthorName: "c", Rating: 7, Text: "dropped"},
	}
	for i := 0; i < 10; i++ {
		in = append(in, places.Review{AuthorName: "x", Rating: 3, Text: "more"})
	}

	out := Reviews("S", in)
	require.Len(t, out, model.MaxReviewsPerStore)
	assert.Equal(t, DefaultAuthor, out[0].AuthorName)
	assert.Nil(t, out[0].ObservedAt)
	for _, r := range out {
		assert.GreaterOrEqual(t, r.RatingStars, 1)
		assert.LessOrEqual(t, r.RatingStars, 5)
		assert.Equal(t, "S", r.StoreID)
	}
}

func TestPhotos_CapAndFilter(t *testing.T) {
	in := []places.Photo{{PhotoReference: ""}}
	for i := 0; i < 15; i++ {
		in = append(in, places.Photo{PhotoReference: "ref"})
	}

	out := Photos("S", in)
	assert.Len(t, out, model.MaxPhotosPerStore)
	assert.Nil(t, out[0].Width)
}
