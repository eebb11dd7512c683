package reconcile

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/model"
)

// MenuData is the enrichment output file, keyed by provider id.
type MenuData map[string]MenuEntry

// MenuEntry is one store's extracted menu.
type MenuEntry struct {
	StoreName string          `json:"store_name"`
	Items     []MenuEntryItem `json:"items"`
}

// MenuEntryItem is one extracted dish. Price may be a number or a string
// such as "NT$120".
type MenuEntryItem struct {
	Name        string          `json:"name"`
	Price       json.RawMessage `json:"price"`
	Description string          `json:"description"`
	Confidence  string          `json:"confidence"`
}

// MenuStats counts the outcome of a menu import.
type MenuStats struct {
	Stores   int `json:"stores"`
	Inserted int `json:"inserted"`
	Existing int `json:"existing"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// MenuWriter is the store surface the menu importer needs.
type MenuWriter interface {
	ListMenuItems(ctx context.Context, storeID string) ([]model.MenuItem, error)
	InsertMenuItem(ctx context.Context, m model.MenuItem) error
}

// DecodeMenuData reads a menu enrichment file.
func DecodeMenuData(r io.Reader) (MenuData, error) {
	var d MenuData
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, eris.Wrap(err, "reconcile: decode menu data")
	}
	return d, nil
}

// ImportMenu writes every valid item of data. Items with an unknown
// confidence grade or no name are skipped. Items already present for the
// store, by name, are left alone so re-running an import adds nothing.
func ImportMenu(ctx context.Context, w MenuWriter, data MenuData) MenuStats {
	log := zap.L().With(zap.String("component", "menu_import"))

	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var stats MenuStats
	for _, id := range ids {
		entry := data[id]
		stats.Stores++

		existing, err := w.ListMenuItems(ctx, id)
		if err != nil {
			log.Warn("list menu items failed, skipping store", zap.String("store_id", id), zap.Error(err))
			stats.Failed += len(entry.Items)
			continue
		}
		seen := make(map[string]bool, len(existing))
		for _, m := range existing {
			seen[m.Name] = true
		}

		for _, it := range entry.Items {
			name := strings.TrimSpace(it.Name)
			conf := model.Confidence(strings.ToLower(strings.TrimSpace(it.Confidence)))
			if name == "" || !conf.Valid() {
				stats.Skipped++
				continue
			}
			if seen[name] {
				stats.Existing++
				continue
			}
			item := model.MenuItem{
				StoreID:     id,
				Name:        name,
				Price:       parsePrice(it.Price),
				Description: strings.TrimSpace(it.Description),
				Confidence:  conf,
			}
			if err := w.InsertMenuItem(ctx, item); err != nil {
				log.Warn("menu item insert failed",
					zap.String("store_id", id),
					zap.String("item", name),
					zap.Error(err),
				)
				stats.Failed++
				continue
			}
			seen[name] = true
			stats.Inserted++
		}
	}
	return stats
}

var digitsRe = regexp.MustCompile(`\d+`)

func parsePrice(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		if f < 0 {
			return nil
		}
		return model.IntPtr(int(math.Round(f)))
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return nil
	}
	m := digitsRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}
