// Package merge folds raw-record sources into one set keyed by provider id.
package merge

import (
	"sort"
	"strings"

	"github.com/tainan-eats/storedir/internal/acquire"
	"github.com/tainan-eats/storedir/pkg/places"
)

// Result is the deduplicated record set.
type Result struct {
	Records map[string]places.Place
	// Order is the first-seen order of ids across all sources.
	Order []string
	// Duplicates counts ids that appeared in more than one source.
	Duplicates int
	PerSource  map[string]int
}

// Merge folds sources in order. On collision the later source's record
// replaces the earlier one entirely. Records with an empty id are discarded.
func Merge(sources ...acquire.Source) Result {
	res := Result{
		Records:   make(map[string]places.Place),
		PerSource: make(map[string]int, len(sources)),
	}

	for _, src := range sources {
		ids := src.Order
		if len(ids) != len(src.Records) {
			ids = orderedKeys(src)
		}
		for _, id := range ids {
			p, ok := src.Records[id]
			if !ok {
				continue
			}
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			p.PlaceID = id
			res.PerSource[src.Name]++

			if _, seen := res.Records[id]; seen {
				res.Duplicates++
			} else {
				res.Order = append(res.Order, id)
			}
			res.Records[id] = p
		}
	}
	return res
}

// orderedKeys falls back to Order plus any ids missing from it, for sources
// built without Source.Add.
func orderedKeys(src acquire.Source) []string {
	seen := make(map[string]bool, len(src.Records))
	out := make([]string, 0, len(src.Records))
	for _, id := range src.Order {
		if _, ok := src.Records[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	var rest []string
	for id := range src.Records {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Get returns the merged record for id.
func (r Result) Get(id string) (places.Place, bool) {
	p, ok := r.Records[id]
	return p, ok
}
