// Package query filters and ranks the active catalog for consumers.
package query

import (
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/tainan-eats/storedir/internal/district"
	"github.com/tainan-eats/storedir/internal/geo"
	"github.com/tainan-eats/storedir/internal/model"
)

// TimeMode selects how opening hours constrain a query.
type TimeMode string

const (
	TimeAll    TimeMode = "all"
	TimeNow    TimeMode = "now"
	TimeCustom TimeMode = "custom"
)

// DefaultZone is the local zone used for "now" queries.
const DefaultZone = "Asia/Taipei"

// Query describes one consumer search. Zero values mean no constraint.
type Query struct {
	SearchText      string
	District        string
	MinRatingTenths int
	TimeMode        TimeMode

	// DayOfWeek (0=Sunday) and TimeOfDay ("HH:MM") apply to TimeCustom.
	DayOfWeek int
	TimeOfDay string

	// Now and Location apply to TimeNow. Now defaults to time.Now and
	// Location to DefaultZone.
	Now      time.Time
	Location *time.Location

	UserLocation *geo.LatLng
}

// Ranked is one surviving store with its distance from the user, when known.
type Ranked struct {
	Store      model.StoreRecord
	DistanceKM *float64
}

var folder = cases.Fold()

// Filter applies every predicate of q to stores and ranks the survivors. The
// input slice is not modified.
func Filter(stores []model.StoreRecord, q Query) []Ranked {
	needle := folder.String(strings.TrimSpace(q.SearchText))
	day, minute, timed := q.moment()

	out := make([]Ranked, 0, len(stores))
	for _, s := range stores {
		if needle != "" && !strings.Contains(folder.String(s.Name), needle) {
			continue
		}
		if !matchDistrict(q.District, s.District) {
			continue
		}
		if s.RatingTenthsOrZero() < q.MinRatingTenths {
			continue
		}
		if timed && !scheduleOf(s).OpenAt(day, minute) {
			continue
		}
		out = append(out, Ranked{Store: s})
	}

	if q.UserLocation != nil {
		rank(out, *q.UserLocation)
	}
	return out
}

func matchDistrict(want, got string) bool {
	switch want {
	case "", "all", "nearby":
		return true
	}
	return want == got
}

// moment resolves the day and minute to evaluate hours at. ok is false when
// hours do not constrain the query, including an unparseable custom time.
func (q Query) moment() (day, minute int, ok bool) {
	switch q.TimeMode {
	case TimeNow:
		now := q.Now
		if now.IsZero() {
			now = time.Now()
		}
		now = now.In(q.zone())
		return geo.Weekday(now), geo.Clock(now), true
	case TimeCustom:
		m, parsed := geo.ParseClock(q.TimeOfDay)
		if !parsed || !geo.ValidDay(q.DayOfWeek) {
			return 0, 0, false
		}
		return q.DayOfWeek, m, true
	}
	return 0, 0, false
}

func (q Query) zone() *time.Location {
	if q.Location != nil {
		return q.Location
	}
	return taipei
}

var taipei = loadZone(DefaultZone)

func loadZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// rank sorts by ascending distance from user. Stores without coordinates sort
// last and keep their relative order.
func rank(rs []Ranked, user geo.LatLng) {
	for i := range rs {
		if p, ok := rs[i].Store.Coordinates(); ok {
			d := geo.HaversineKM(user, p)
			rs[i].DistanceKM = &d
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		return distanceOf(rs[i]) < distanceOf(rs[j])
	})
}

func distanceOf(r Ranked) float64 {
	if r.DistanceKM == nil {
		return math.Inf(1)
	}
	return *r.DistanceKM
}

// DistrictCount is one row of DistrictCounts.
type DistrictCount struct {
	District string `json:"district"`
	Count    int    `json:"count"`
}

// DistrictCounts tallies stores per district in table order. Districts not in
// table are counted under district.Unknown, which is always last.
func DistrictCounts(stores []model.StoreRecord, table []district.District) []DistrictCount {
	counts := make(map[string]int, len(table)+1)
	for _, s := range stores {
		counts[s.District]++
	}
	return countsInOrder(counts, table)
}

// CountsFromMap orders precomputed per-district counts the same way
// DistrictCounts does.
func CountsFromMap(counts map[string]int, table []district.District) []DistrictCount {
	return countsInOrder(counts, table)
}

func countsInOrder(counts map[string]int, table []district.District) []DistrictCount {
	out := make([]DistrictCount, 0, len(table)+1)
	known := make(map[string]bool, len(table))
	for _, d := range table {
		known[d.Name] = true
		out = append(out, DistrictCount{District: d.Name, Count: counts[d.Name]})
	}
	unknown := 0
	for name, n := range counts {
		if !known[name] {
			unknown += n
		}
	}
	return append(out, DistrictCount{District: district.Unknown, Count: unknown})
}
