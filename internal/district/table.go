// Package district maps free-text addresses onto the fixed set of Tainan City
// administrative districts.
package district

import "github.com/tainan-eats/storedir/internal/geo"

// Unknown is the label for addresses that match no district in Table.
const Unknown = "未知"

// District is one administrative district with its postal prefixes and an
// approximate centre used by the acquisition strategies.
type District struct {
	Name           string
	PostalPrefixes []string
	Center         geo.LatLng
}

// Table lists every district in canonical order. All components share it.
var Table = []District{
	{Name: "中西區", PostalPrefixes: []string{"700"}, Center: geo.LatLng{Lat: 22.9908, Lng: 120.2026}},
	{Name: "東區", PostalPrefixes: []string{"701"}, Center: geo.LatLng{Lat: 22.9856, Lng: 120.2244}},
	{Name: "南區", PostalPrefixes: []string{"702"}, Center: geo.LatLng{Lat: 22.9583, Lng: 120.1875}},
	{Name: "北區", PostalPrefixes: []string{"704"}, Center: geo.LatLng{Lat: 23.0108, Lng: 120.2053}},
	{Name: "安平區", PostalPrefixes: []string{"708"}, Center: geo.LatLng{Lat: 23.0011, Lng: 120.1650}},
	{Name: "安南區", PostalPrefixes: []string{"709"}, Center: geo.LatLng{Lat: 23.0489, Lng: 120.1864}},
	{Name: "永康區", PostalPrefixes: []string{"710"}, Center: geo.LatLng{Lat: 23.0264, Lng: 120.2571}},
	{Name: "歸仁區", PostalPrefixes: []string{"711"}, Center: geo.LatLng{Lat: 22.9661, Lng: 120.2933}},
	{Name: "新化區", PostalPrefixes: []string{"712"}, Center: geo.LatLng{Lat: 23.0386, Lng: 120.3108}},
	{Name: "左鎮區", PostalPrefixes: []string{"713"}, Center: geo.LatLng{Lat: 23.0567, Lng: 120.4067}},
	{Name: "玉井區", PostalPrefixes: []string{"714"}, Center: geo.LatLng{Lat: 23.1242, Lng: 120.4608}},
	{Name: "楠西區", PostalPrefixes: []string{"715"}, Center: geo.LatLng{Lat: 23.1742, Lng: 120.4856}},
	{Name: "南化區", PostalPrefixes: []string{"716"}, Center: geo.LatLng{Lat: 23.0417, Lng: 120.4778}},
	{Name: "仁德區", PostalPrefixes: []string{"717"}, Center: geo.LatLng{Lat: 22.9711, Lng: 120.2500}},
	{Name: "關廟區", PostalPrefixes: []string{"718"}, Center: geo.LatLng{Lat: 22.9608, Lng: 120.3253}},
	{Name: "龍崎區", PostalPrefixes: []string{"719"}, Center: geo.LatLng{Lat: 22.9667, Lng: 120.3667}},
	{Name: "官田區", PostalPrefixes: []string{"720"}, Center: geo.LatLng{Lat: 23.1933, Lng: 120.3169}},
	{Name: "麻豆區", PostalPrefixes: []string{"721"}, Center: geo.LatLng{Lat: 23.1814, Lng: 120.2475}},
	{Name: "佳里區", PostalPrefixes: []string{"722"}, Center: geo.LatLng{Lat: 23.1653, Lng: 120.1775}},
	{Name: "西港區", PostalPrefixes: []string{"723"}, Center: geo.LatLng{Lat: 23.1253, Lng: 120.2042}},
	{Name: "七股區", PostalPrefixes: []string{"724"}, Center: geo.LatLng{Lat: 23.1411, Lng: 120.1419}},
	{Name: "將軍區", PostalPrefixes: []string{"725"}, Center: geo.LatLng{Lat: 23.2050, Lng: 120.1489}},
	{Name: "北門區", PostalPrefixes: []string{"727"}, Center: geo.LatLng{Lat: 23.2686, Lng: 120.1253}},
	{Name: "學甲區", PostalPrefixes: []string{"726"}, Center: geo.LatLng{Lat: 23.2344, Lng: 120.1806}},
	{Name: "新營區", PostalPrefixes: []string{"730"}, Center: geo.LatLng{Lat: 23.3106, Lng: 120.3167}},
	{Name: "後壁區", PostalPrefixes: []string{"731"}, Center: geo.LatLng{Lat: 23.3667, Lng: 120.3667}},
	{Name: "白河區", PostalPrefixes: []string{"732"}, Center: geo.LatLng{Lat: 23.3525, Lng: 120.4308}},
	{Name: "東山區", PostalPrefixes: []string{"733"}, Center: geo.LatLng{Lat: 23.3264, Lng: 120.4028}},
	{Name: "六甲區", PostalPrefixes: []string{"734"}, Center: geo.LatLng{Lat: 23.2333, Lng: 120.3500}},
	{Name: "下營區", PostalPrefixes: []string{"735"}, Center: geo.LatLng{Lat: 23.2356, Lng: 120.2639}},
	{Name: "柳營區", PostalPrefixes: []string{"736"}, Center: geo.LatLng{Lat: 23.2778, Lng: 120.3139}},
	{Name: "鹽水區", PostalPrefixes: []string{"737"}, Center: geo.LatLng{Lat: 23.3200, Lng: 120.2667}},
	{Name: "善化區", PostalPrefixes: []string{"741"}, Center: geo.LatLng{Lat: 23.1325, Lng: 120.2969}},
	{Name: "大內區", PostalPrefixes: []string{"742"}, Center: geo.LatLng{Lat: 23.1167, Lng: 120.3667}},
	{Name: "山上區", PostalPrefixes: []string{"743"}, Center: geo.LatLng{Lat: 23.1044, Lng: 120.3672}},
	{Name: "新市區", PostalPrefixes: []string{"744"}, Center: geo.LatLng{Lat: 23.0786, Lng: 120.2950}},
	{Name: "安定區", PostalPrefixes: []string{"745"}, Center: geo.LatLng{Lat: 23.1217, Lng: 120.2364}},
}

var (
	byName   = make(map[string]District, len(Table))
	byPostal = make(map[string]string, len(Table))
)

func init() {
	for _, d := range Table {
		byName[d.Name] = d
		for _, p := range d.PostalPrefixes {
			byPostal[p] = d.Name
		}
	}
}

// Names returns district names in table order.
func Names() []string {
	out := make([]string, len(Table))
	for i, d := range Table {
		out[i] = d.Name
	}
	return out
}

// Lookup returns the district with the given name.
func Lookup(name string) (District, bool) {
	d, ok := byName[name]
	return d, ok
}

// IsKnown reports whether name is a member of Table.
func IsKnown(name string) bool {
	_, ok := byName[name]
	return ok
}

// ByPostal returns the district for a 3-digit postal prefix.
func ByPostal(prefix string) (string, bool) {
	name, ok := byPostal[prefix]
	return name, ok
}
