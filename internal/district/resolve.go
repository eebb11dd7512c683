package district

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// City qualifier followed directly by a district token.
	cityDistrictRe = regexp.MustCompile(`[台臺]南市(.{1,3}?區)`)
	// Postal code, optional country, city qualifier, district token.
	postalCityRe = regexp.MustCompile(`\d{3,6}\s*(?:台灣|臺灣)?\s*[台臺]南市(.{1,3}?區)`)

	leadingDigitsRe = regexp.MustCompile(`^\s*(\d{3})`)
	digitRunRe      = regexp.MustCompile(`\d{3,6}`)
)

// Resolve returns the district of addr, or Unknown. It always returns a
// member of Table or Unknown.
func Resolve(addr string) string {
	addr = strings.TrimSpace(norm.NFKC.String(addr))
	if addr == "" {
		return Unknown
	}

	if name, ok := matchDistrict(cityDistrictRe, addr); ok {
		return name
	}
	if name, ok := matchDistrict(postalCityRe, addr); ok {
		return name
	}

	if m := leadingDigitsRe.FindStringSubmatch(addr); m != nil {
		if name, ok := ByPostal(m[1]); ok {
			return name
		}
	}
	for _, run := range digitRunRe.FindAllString(addr, -1) {
		if name, ok := ByPostal(run[:3]); ok {
			return name
		}
	}
	return Unknown
}

func matchDistrict(re *regexp.Regexp, addr string) (string, bool) {
	for _, m := range re.FindAllStringSubmatch(addr, -1) {
		if IsKnown(m[1]) {
			return m[1], true
		}
	}
	return "", false
}
