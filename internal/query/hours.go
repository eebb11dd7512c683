package query

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tainan-eats/storedir/internal/geo"
	"github.com/tainan-eats/storedir/internal/model"
)

// Schedule answers whether a store is open at a day and minute of day.
type Schedule interface {
	OpenAt(day, minute int) bool
}

// AlwaysOpen is used when no usable hours exist.
type AlwaysOpen struct{}

func (AlwaysOpen) OpenAt(int, int) bool { return true }

// Canonical evaluates day/open/close tuples. A close past 1440 spills into
// the next day.
type Canonical []model.Period

// OpenAt implements Schedule. A day without a tuple counts as open.
func (c Canonical) OpenAt(day, minute int) bool {
	prev := (day + 6) % 7
	found := false
	for _, p := range c {
		if p.Day == prev && p.Close > geo.MinutesPerDay && minute+geo.MinutesPerDay <= p.Close {
			return true
		}
		if p.Day != day {
			continue
		}
		found = true
		if minute >= p.Open && minute <= p.Close {
			return true
		}
	}
	return !found
}

// legacyDay is one parsed weekday line of the free-text schedule.
type legacyDay struct {
	closed  bool
	allDay  bool
	unknown bool
	ranges  [][2]int
}

// Legacy evaluates the weekday-prefixed strings stored by older imports.
// Index 0 is Sunday. A nil entry means no line for that day.
type Legacy [7]*legacyDay

// OpenAt implements Schedule.
func (l Legacy) OpenAt(day, minute int) bool {
	if day < 0 || day > 6 {
		return true
	}
	d := l[day]
	switch {
	case d == nil, d.unknown, d.allDay:
		return true
	case d.closed:
		return false
	}
	for _, r := range d.ranges {
		if minute >= r[0] && minute <= r[1] {
			return true
		}
	}
	return false
}

// DecodeHours inspects the stored JSON and returns the matching evaluator.
// Anything unrecognised is always open.
func DecodeHours(raw json.RawMessage) Schedule {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return AlwaysOpen{}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return AlwaysOpen{}
	}

	switch bytes.TrimSpace(items[0])[0] {
	case '{':
		return decodeCanonical(items)
	case '"':
		var lines []string
		for _, it := range items {
			var s string
			if json.Unmarshal(it, &s) == nil {
				lines = append(lines, s)
			}
		}
		return ParseLegacy(lines)
	}
	return AlwaysOpen{}
}

// scheduleOf picks the evaluator for a store record.
func scheduleOf(s model.StoreRecord) Schedule {
	if len(s.RawHours) > 0 {
		return DecodeHours(s.RawHours)
	}
	if len(s.OpeningHours) > 0 {
		return Canonical(s.OpeningHours)
	}
	return AlwaysOpen{}
}

type rawTuple struct {
	Day   json.RawMessage `json:"day"`
	Open  json.RawMessage `json:"open"`
	Close json.RawMessage `json:"close"`
}

func decodeCanonical(items []json.RawMessage) Schedule {
	var out Canonical
	for _, it := range items {
		var t rawTuple
		if json.Unmarshal(it, &t) != nil {
			continue
		}
		day, ok := tupleDay(t.Day)
		if !ok {
			continue
		}
		open, openDay, ok := tupleMinute(t.Open)
		if !ok {
			continue
		}
		closeMin, closeDay, ok := tupleMinute(t.Close)
		if !ok {
			continue
		}
		if openDay >= 0 && closeDay >= 0 && closeDay != openDay {
			closeMin += geo.MinutesPerDay
		} else if closeMin < open {
			closeMin += geo.MinutesPerDay
		}
		out = append(out, model.Period{Day: day, Open: open, Close: closeMin})
	}
	if len(out) == 0 {
		return AlwaysOpen{}
	}
	return out
}

func tupleDay(raw json.RawMessage) (int, bool) {
	var n int
	if json.Unmarshal(raw, &n) == nil && geo.ValidDay(n) {
		return n, true
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && geo.ValidDay(n) {
			return n, true
		}
	}
	return 0, false
}

// tupleMinute reads an integer minute, or a "d:HHMM" / "HHMM" / "HH:MM"
// string. day is -1 when the value carries no day.
func tupleMinute(raw json.RawMessage) (minute, day int, ok bool) {
	var n int
	if json.Unmarshal(raw, &n) == nil {
		return n, -1, n >= 0 && n <= 2*geo.MinutesPerDay
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return 0, -1, false
	}
	s = strings.TrimSpace(s)
	day = -1
	if d, rest, found := strings.Cut(s, ":"); found && len(d) == 1 && len(rest) == 4 {
		v, err := strconv.Atoi(d)
		if err != nil || !geo.ValidDay(v) {
			return 0, -1, false
		}
		day, s = v, rest
	}
	m, ok := geo.ParseClock(s)
	return m, day, ok
}

var (
	rangeRe    = regexp.MustCompile(`(\d{1,2}:?\d{2}\s*(?i:am|pm)?)\s*[–—\-~〜至到]\s*(\d{1,2}:?\d{2}\s*(?i:am|pm)?)`)
	meridiemRe = regexp.MustCompile(`(上午|凌晨|早上|中午|下午|晚上)\s*(\d{1,2}:\d{2})`)
	closedRe   = regexp.MustCompile(`(?i)休息|公休|休業|店休|closed`)
	allDayRe   = regexp.MustCompile(`(?i)24\s*小時|open 24 hours|24 hours`)
)

var weekdayPrefixes = []struct {
	prefix string
	day    int
}{
	{"星期日", 0}, {"星期天", 0}, {"星期一", 1}, {"星期二", 2}, {"星期三", 3},
	{"星期四", 4}, {"星期五", 5}, {"星期六", 6},
	{"週日", 0}, {"週一", 1}, {"週二", 2}, {"週三", 3}, {"週四", 4}, {"週五", 5}, {"週六", 6},
	{"sunday", 0}, {"monday", 1}, {"tuesday", 2}, {"wednesday", 3},
	{"thursday", 4}, {"friday", 5}, {"saturday", 6},
}

// ParseLegacy builds a Legacy schedule from free-text weekday lines. A line
// without a weekday prefix applies to every day not named elsewhere.
func ParseLegacy(lines []string) Legacy {
	var out Legacy
	var everyDay *legacyDay
	for _, line := range lines {
		day, body := splitWeekday(line)
		parsed := parseLegacyBody(body)
		if day < 0 {
			everyDay = parsed
			continue
		}
		out[day] = parsed
	}
	if everyDay != nil {
		for d := range out {
			if out[d] == nil {
				out[d] = everyDay
			}
		}
	}
	return out
}

func splitWeekday(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)
	for _, w := range weekdayPrefixes {
		if strings.HasPrefix(lower, w.prefix) {
			rest := trimmed[len(w.prefix):]
			rest = strings.TrimLeft(rest, " :：")
			return w.day, rest
		}
	}
	return -1, trimmed
}

func parseLegacyBody(body string) *legacyDay {
	switch {
	case allDayRe.MatchString(body):
		return &legacyDay{allDay: true}
	case closedRe.MatchString(body):
		return &legacyDay{closed: true}
	}

	body = meridiemRe.ReplaceAllStringFunc(body, func(m string) string {
		sub := meridiemRe.FindStringSubmatch(m)
		switch sub[1] {
		case "上午", "凌晨", "早上":
			return sub[2] + " AM"
		}
		return sub[2] + " PM"
	})

	d := &legacyDay{}
	for _, m := range rangeRe.FindAllStringSubmatch(body, -1) {
		open, ok1 := geo.ParseClock(m[1])
		closeMin, ok2 := geo.ParseClock(m[2])
		if !ok1 || !ok2 {
			continue
		}
		if closeMin < open {
			closeMin += geo.MinutesPerDay
		}
		d.ranges = append(d.ranges, [2]int{open, closeMin})
	}
	if len(d.ranges) == 0 {
		d.unknown = true
	}
	return d
}
