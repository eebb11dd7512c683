package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKM(t *testing.T) {
	tainanStation := LatLng{Lat: 22.9971, Lng: 120.2133}
	anping := LatLng{Lat: 23.0011, Lng: 120.1650}

	d := HaversineKM(tainanStation, anping)
	assert.InDelta(t, 4.96, d, 0.1)

	assert.InDelta(t, 0, HaversineKM(tainanStation, tainanStation), 0.0001)
	assert.InDelta(t, d, HaversineKM(anping, tainanStation), 0.0001)
}

func TestHaversineKM_LongDistance(t *testing.T) {
	// Austin to Dallas, roughly 292 km.
	d := HaversineKM(LatLng{30.2672, -97.7431}, LatLng{32.7767, -96.7970})
	assert.InDelta(t, 292, d, 5)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"06:00", 360, true},
		{"6:00", 360, true},
		{"0450", 290, true},
		{"12:30", 750, true},
		{"24:00", 1440, true},
		{"5:00 AM", 300, true},
		{"12:30 PM", 750, true},
		{"12:00 am", 0, true},
		{"11:15 pm", 1395, true},
		{"13:00 PM", 0, false},
		{"25:00", 0, false},
		{"06:75", 0, false},
		{"", 0, false},
		{"noon", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseClock(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseProviderTime(t *testing.T) {
	m, ok := ParseProviderTime("0450")
	assert.True(t, ok)
	assert.Equal(t, 290, m)

	_, ok = ParseProviderTime("450")
	assert.False(t, ok)
	_, ok = ParseProviderTime("04:5")
	assert.False(t, ok)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "04:50", FormatClock(290))
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "24:00", FormatClock(1440))
}

func TestWeekdayAndClock(t *testing.T) {
	// 2026-10-12 is a Monday.
	ts := time.Date(2026, 10, 12, 6, 15, 0, 0, time.UTC)
	assert.Equal(t, 1, Weekday(ts))
	assert.Equal(t, 375, Clock(ts))
	assert.True(t, ValidDay(0))
	assert.False(t, ValidDay(7))
}

func TestParseDecimal(t *testing.T) {
	v, ok := ParseDecimal(" 22.9971 ")
	assert.True(t, ok)
	assert.InDelta(t, 22.9971, v, 1e-9)

	_, ok = ParseDecimal("")
	assert.False(t, ok)
	_, ok = ParseDecimal("NaN")
	assert.False(t, ok)
	_, ok = ParseDecimal("north")
	assert.False(t, ok)

	assert.Equal(t, "120.2133", FormatDecimal(120.2133))
}
