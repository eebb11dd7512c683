package acquire

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tainan-eats/storedir/pkg/places"
	"github.com/tainan-eats/storedir/pkg/places/mocks"
)

func fastThrottle() *Throttle {
	return NewThrottle(1000, 0)
}

func place(id, name string) places.Place {
	return places.Place{PlaceID: id, Name: name}
}

func TestSource_Add(t *testing.T) {
	src := NewSource("s")
	assert.True(t, src.Add(place("A", "first")))
	assert.True(t, src.Add(place("B", "b")))
	assert.True(t, src.Add(place("A", "second")))
	assert.False(t, src.Add(place(" ", "no id")))

	assert.Equal(t, 2, src.Len())
	assert.Equal(t, []string{"A", "B"}, src.Order)
	assert.Equal(t, "second", src.Records["A"].Name)
	assert.Equal(t, 1, src.Dropped)
}

func TestDistrictKeywordStrategy_Queries(t *testing.T) {
	s := NewDistrictKeywordStrategy(nil, fastThrottle(), []string{"東區", "北區"}, []string{"台南%s 牛肉湯", "溫體"}, 1)
	assert.Equal(t, []string{"台南東區 牛肉湯", "東區 溫體", "台南北區 牛肉湯", "北區 溫體"}, s.Queries())

	all := NewDistrictKeywordStrategy(nil, fastThrottle(), nil, nil, 1)
	assert.Len(t, all.Queries(), 37*2)
}

func TestDistrictKeywordStrategy_Paginates(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, places.TextSearchRequest{Query: "台南東區 牛肉湯"}).
		Return(&places.SearchResponse{Status: "OK", Results: []places.Place{place("A", "a")}, NextPageToken: "p2"}, nil).Once()
	client.On("TextSearch", mock.Anything, places.TextSearchRequest{Query: "台南東區 牛肉湯", PageToken: "p2"}).
		Return(&places.SearchResponse{Status: "OK", Results: []places.Place{place("B", "b")}}, nil).Once()

	s := NewDistrictKeywordStrategy(client, fastThrottle(), []string{"東區"}, []string{"台南%s 牛肉湯"}, 3)
	src, err := s.Acquire(context.Background())

	require.NoError(t, err)
	assert.Equal(t, KindDistrictKeyword, src.Name)
	assert.Equal(t, []string{"A", "B"}, src.Order)
}

func TestDistrictKeywordStrategy_MaxPages(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return(&places.SearchResponse{Status: "OK", Results: []places.Place{place("A", "a")}, NextPageToken: "again"}, nil).Times(2)

	s := NewDistrictKeywordStrategy(client, fastThrottle(), []string{"東區"}, []string{"%s"}, 2)
	_, err := s.Acquire(context.Background())
	require.NoError(t, err)
}

func TestDistrictKeywordStrategy_PartialFailure(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, places.TextSearchRequest{Query: "東區"}).
		Return(&places.SearchResponse{Status: "OK", Results: []places.Place{place("A", "a")}, NextPageToken: "p2"}, nil).Once()
	client.On("TextSearch", mock.Anything, places.TextSearchRequest{Query: "東區", PageToken: "p2"}).
		Return(nil, &places.StatusError{Status: places.StatusRequestDenied}).Once()
	client.On("TextSearch", mock.Anything, places.TextSearchRequest{Query: "北區"}).
		Return(&places.SearchResponse{Status: "OK", Results: []places.Place{place("B", "b")}}, nil).Once()

	s := NewDistrictKeywordStrategy(client, fastThrottle(), []string{"東區", "北區"}, []string{"%s"}, 3)
	src, err := s.Acquire(context.Background())

	require.Error(t, err)
	var se *places.StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"A", "B"}, src.Order)
}

func TestProximityStrategy(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("NearbySearch", mock.Anything, places.NearbySearchRequest{
		Location: places.LatLng{Lat: 22.9971, Lng: 120.2133},
		RadiusM:  15000,
		Keyword:  "牛肉湯",
	}).Return(&places.SearchResponse{Status: "OK", Results: []places.Place{place("N1", "n")}}, nil).Once()

	s := NewProximityStrategy(client, fastThrottle(), nil, 0, "", 3)
	src, err := s.Acquire(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, src.Len())
}

func TestProximityStrategy_ErrorKeepsNothingLost(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("NearbySearch", mock.Anything, mock.Anything).
		Return(nil, errors.New("boom")).Once()

	s := NewProximityStrategy(client, fastThrottle(), nil, 0, "", 3)
	src, err := s.Acquire(context.Background())

	require.Error(t, err)
	assert.Equal(t, 0, src.Len())
	assert.Equal(t, KindProximity, src.Name)
}

func TestBulkTextStrategy_Defaults(t *testing.T) {
	client := mocks.NewMockClient(t)
	for _, kw := range DefaultBulkKeywords {
		client.On("TextSearch", mock.Anything, places.TextSearchRequest{Query: kw}).
			Return(&places.SearchResponse{Status: "ZERO_RESULTS"}, nil).Once()
	}

	s := NewBulkTextStrategy(client, fastThrottle(), nil, 3)
	src, err := s.Acquire(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, src.Len())
}

func TestSnapshot_BothShapes(t *testing.T) {
	data := `[
		{"place_id": "P1", "name": "provider", "formatted_address": "台南市東區", "rating": 4.1,
		 "geometry": {"location": {"lat": 22.98, "lng": 120.22}}, "business_status": "OPERATIONAL",
		 "opening_hours": {"periods": [{"open": {"day": 1, "time": "0500"}, "close": {"day": 1, "time": "1200"}}]}},
		{"place_id": "P2", "name": "flat", "address": "台南市北區", "latitude": 23.01, "longitude": "120.20",
		 "user_ratings_total": 12, "phone": "06-1234567", "rating": null, "opening_hours": {}},
		{"name": "no id"},
		"not an object",
		{"place_id": "P3", "name": "bad geometry", "geometry": "oops", "rating": "3.9"}
	]`

	src := NewSource("snap")
	n, err := DecodeSnapshot(strings.NewReader(data), &src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, src.Dropped)

	p1 := src.Records["P1"]
	require.NotNil(t, p1.Rating)
	assert.InDelta(t, 4.1, *p1.Rating, 1e-9)
	require.NotNil(t, p1.OpeningHours)
	assert.Len(t, p1.OpeningHours.Periods, 1)

	p2 := src.Records["P2"]
	assert.Equal(t, "台南市北區", p2.Address())
	assert.Equal(t, "06-1234567", p2.FormattedPhoneNumber)
	assert.Nil(t, p2.Rating)
	require.NotNil(t, p2.Geometry)
	require.NotNil(t, p2.Geometry.Location)
	assert.InDelta(t, 120.20, p2.Geometry.Location.Lng, 1e-9)
	assert.Equal(t, 12, p2.UserRatingsTotal)

	p3 := src.Records["P3"]
	require.NotNil(t, p3.Rating)
	assert.InDelta(t, 3.9, *p3.Rating, 1e-9)
	assert.True(t, p3.Geometry == nil || p3.Geometry.Location == nil)
}

func TestSnapshotStrategy_Files(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "older.json")
	newer := filepath.Join(dir, "newer.json")
	require.NoError(t, os.WriteFile(older, []byte(`[{"place_id":"A","name":"old"},{"place_id":"B","name":"b"}]`), 0o600))
	require.NoError(t, os.WriteFile(newer, []byte(`[{"place_id":"A","name":"new"}]`), 0o600))

	s := NewSnapshotStrategy(older, filepath.Join(dir, "missing.json"), newer)
	src, err := s.Acquire(context.Background())

	require.Error(t, err)
	assert.True(t, src.Snapshot)
	assert.Equal(t, "new", src.Records["A"].Name)
	assert.Equal(t, []string{"A", "B"}, src.Order)
}

func TestSnapshotStrategy_ZIPArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, body := range map[string]string{
		"a.json": `[{"place_id":"A","name":"a"}]`,
		"b.json": `[{"place_id":"B","name":"b"},{"name":"no id"}]`,
	} {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	src, err := NewSnapshotStrategy(path).Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())
	assert.Equal(t, 1, src.Dropped)
}

type stubStrategy struct {
	name string
	src  Source
	err  error
	ran  *[]string
}

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) Acquire(context.Context) (Source, error) {
	*s.ran = append(*s.ran, s.name)
	return s.src, s.err
}

func TestRunAll_SequentialAndTolerant(t *testing.T) {
	var ran []string
	a := NewSource("a")
	a.Add(place("X1", "a"))
	strategies := []Strategy{
		stubStrategy{name: "a", src: a, ran: &ran},
		stubStrategy{name: "b", err: errors.New("failed"), ran: &ran},
		stubStrategy{name: "c", src: NewSource("c"), ran: &ran},
	}

	results := RunAll(context.Background(), strategies)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Equal(t, "b", results[1].Source.Name)
	assert.Equal(t, 1, results[0].Source.Len())
}

func TestMergeOrder(t *testing.T) {
	live := NewSource("live")
	snap := NewSource("snap")
	snap.Snapshot = true
	live2 := NewSource("live2")

	out := MergeOrder([]Result{{Source: live}, {Source: snap}, {Source: live2}})
	names := []string{out[0].Name, out[1].Name, out[2].Name}
	assert.Equal(t, []string{"snap", "live", "live2"}, names)
}
