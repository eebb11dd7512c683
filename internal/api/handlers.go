package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/catalog"
	"github.com/tainan-eats/storedir/internal/geo"
	"github.com/tainan-eats/storedir/internal/query"
)

// StoreResult is one entry of the /stores listing.
type StoreResult struct {
	catalog.StoreView
	DistanceKM *float64 `json:"distanceKm,omitempty"`
}

type storesResponse struct {
	Stores      []StoreResult `json:"stores"`
	Unavailable bool          `json:"unavailable,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listStores(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if q.Location == nil {
		q.Location = h.location
	}

	res := h.search.Search(r.Context(), q)
	if res.Unavailable {
		writeJSON(w, http.StatusServiceUnavailable, storesResponse{Stores: []StoreResult{}, Unavailable: true})
		return
	}

	out := make([]StoreResult, len(res.Stores))
	for i, rk := range res.Stores {
		out[i] = StoreResult{StoreView: h.reader.View(rk.Store), DistanceKM: rk.DistanceKM}
	}
	writeJSON(w, http.StatusOK, storesResponse{Stores: out})
}

func (h *Handler) getStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := h.reader.Store(r.Context(), id)
	if err != nil {
		h.log.Error("get store failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, eris.New("catalog unavailable"))
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, eris.Errorf("store %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reviews, err := h.reader.Reviews(r.Context(), id, limit)
	if err != nil {
		h.log.Error("list reviews failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, eris.New("catalog unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (h *Handler) listPhotos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	photos, err := h.reader.Photos(r.Context(), id, limit)
	if err != nil {
		h.log.Error("list photos failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, eris.New("catalog unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"photos": photos})
}

func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	items, err := h.reader.MenuItems(r.Context(), id)
	if err != nil {
		h.log.Error("list menu failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, eris.New("catalog unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) districts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.search.Districts(r.Context())
	if err != nil {
		h.log.Error("district counts failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, eris.New("catalog unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"districts": counts})
}

// parseQuery maps /stores query parameters onto a query.Query.
func parseQuery(r *http.Request) (query.Query, error) {
	v := r.URL.Query()
	q := query.Query{
		SearchText: strings.TrimSpace(v.Get("q")),
		District:   strings.TrimSpace(v.Get("district")),
		TimeMode:   query.TimeAll,
	}

	if s := v.Get("min_rating"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 || f > 5 {
			return q, eris.Errorf("min_rating must be between 0 and 5, got %q", s)
		}
		q.MinRatingTenths = int(math.Round(f * 10))
	}

	switch mode := query.TimeMode(v.Get("time_mode")); mode {
	case "", query.TimeAll:
	case query.TimeNow:
		q.TimeMode = mode
	case query.TimeCustom:
		q.TimeMode = mode
		day, err := strconv.Atoi(v.Get("day"))
		if err != nil || !geo.ValidDay(day) {
			return q, eris.Errorf("day must be 0-6, got %q", v.Get("day"))
		}
		q.DayOfWeek = day
		q.TimeOfDay = v.Get("time")
	default:
		return q, eris.Errorf("unknown time_mode %q", mode)
	}

	lat, lng := v.Get("lat"), v.Get("lng")
	if lat != "" || lng != "" {
		la, ok1 := geo.ParseDecimal(lat)
		ln, ok2 := geo.ParseDecimal(lng)
		p := geo.LatLng{Lat: la, Lng: ln}
		if !ok1 || !ok2 || !p.Valid() {
			return q, eris.New("lat and lng must both be valid coordinates")
		}
		q.UserLocation = &p
	}
	return q, nil
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
