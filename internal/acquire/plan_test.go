package acquire

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tainan-eats/storedir/pkg/places/mocks"
)

func writePlan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPlan(t *testing.T) {
	path := writePlan(t, `
strategies:
  - name: snapshot
    snapshots: [data/2024.json, data/2025.json]
  - name: district_keyword
    keywords: ["台南%s 牛肉湯"]
    per_second: 2
  - name: proximity
    label: anping
    radius_m: 5000
    center: {lat: 23.0011, lng: 120.1650}
    keywords: [牛肉湯]
`)

	p, err := LoadPlan(path)
	require.NoError(t, err)
	require.Len(t, p.Strategies, 3)
	assert.Equal(t, []string{"data/2024.json", "data/2025.json"}, p.Strategies[0].Snapshots)
	assert.InDelta(t, 2.0, p.Strategies[1].PerSecond, 1e-9)
	require.NotNil(t, p.Strategies[2].Center)
	assert.InDelta(t, 23.0011, p.Strategies[2].Center.Lat, 1e-9)
	assert.True(t, p.HasLive())
}

func TestLoadPlan_Invalid(t *testing.T) {
	_, err := LoadPlan(writePlan(t, "strategies:\n  - name: teleport\n"))
	assert.Error(t, err)

	_, err = LoadPlan(writePlan(t, "strategies:\n  - name: snapshot\n"))
	assert.Error(t, err)

	_, err = LoadPlan(writePlan(t, "strategies: []\n"))
	assert.Error(t, err)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPlan_Filter(t *testing.T) {
	p := &Plan{Strategies: []Spec{
		{Name: KindDistrictKeyword},
		{Name: KindProximity, Label: "anping"},
		{Name: KindBulkText},
	}}

	assert.Same(t, p, p.Filter(nil))

	got := p.Filter([]string{"anping", KindBulkText})
	require.Len(t, got.Strategies, 2)
	assert.Equal(t, KindProximity, got.Strategies[0].Name)

	snapOnly := &Plan{Strategies: []Spec{{Name: KindSnapshot, Snapshots: []string{"x"}}}}
	assert.False(t, snapOnly.HasLive())
}

func TestRegistry_Build(t *testing.T) {
	client := mocks.NewMockClient(t)
	reg := NewRegistry(client, 5, 0, 3)

	p := &Plan{Strategies: []Spec{
		{Name: KindSnapshot, Snapshots: []string{"a.json"}},
		{Name: KindDistrictKeyword, PerSecond: 2},
		{Name: KindProximity, Label: "anping"},
		{Name: KindBulkText},
	}}
	strategies, err := reg.Build(p)
	require.NoError(t, err)
	require.Len(t, strategies, 4)

	assert.Equal(t, KindSnapshot, strategies[0].Name())
	assert.Equal(t, "anping", strategies[2].Name())

	dk, ok := strategies[1].(*DistrictKeywordStrategy)
	require.True(t, ok)
	assert.InDelta(t, 2.0, dk.throttle.Limit(), 1e-9)

	bulk, ok := strategies[3].(*BulkTextStrategy)
	require.True(t, ok)
	assert.InDelta(t, 5.0, bulk.throttle.Limit(), 1e-9)
}

func TestRegistry_LiveNeedsClient(t *testing.T) {
	reg := NewRegistry(nil, 5, 0, 3)
	_, err := reg.Build(DefaultPlan())
	assert.Error(t, err)

	strategies, err := reg.Build(&Plan{Strategies: []Spec{{Name: KindSnapshot, Snapshots: []string{"a.json"}}}})
	require.NoError(t, err)
	assert.Len(t, strategies, 1)
}
