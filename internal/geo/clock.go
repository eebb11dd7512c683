package geo

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a minute-of-day value, with
// 1440 itself accepted as "end of day".
const MinutesPerDay = 24 * 60

var clockRe = regexp.MustCompile(`^(\d{1,2}):?(\d{2})\s*(?i:(am|pm))?$`)

// ParseClock parses "HH:MM", "H:MM" or "HHMM", optionally followed by AM/PM,
// into a minute of day. "24:00" is accepted as 1440.
func ParseClock(s string) (int, bool) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, false
	}

	switch strings.ToLower(m[3]) {
	case "am":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 1 || h > 12 {
			return 0, false
		}
		if h != 12 {
			h += 12
		}
	}

	total := h*60 + mm
	if total > MinutesPerDay {
		return 0, false
	}
	return total, true
}

// ParseProviderTime parses the provider's zero-padded "HHMM" time.
func ParseProviderTime(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	return ParseClock(s)
}

// FormatClock renders a minute of day as "HH:MM".
func FormatClock(minute int) string {
	if minute < 0 {
		minute = 0
	}
	return twoDigit(minute/60) + ":" + twoDigit(minute%60)
}

func twoDigit(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// Weekday returns the day of week of t with 0=Sunday.
func Weekday(t time.Time) int {
	return int(t.Weekday())
}

// Clock returns the minute of day of t.
func Clock(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ValidDay reports whether d is a 0=Sunday day-of-week value.
func ValidDay(d int) bool {
	return d >= 0 && d <= 6
}
