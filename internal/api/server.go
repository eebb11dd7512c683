// Package api serves the read-only catalog over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/catalog"
	"github.com/tainan-eats/storedir/internal/query"
)

// Config holds the dependencies of the API.
type Config struct {
	Reader         *catalog.Reader
	Search         *query.Service
	AllowedOrigins []string
	// Location is the zone "now" queries are evaluated in.
	Location *time.Location
}

// Handler serves the catalog read endpoints.
type Handler struct {
	reader   *catalog.Reader
	search   *query.Service
	location *time.Location
	log      *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		reader:   cfg.Reader,
		search:   cfg.Search,
		location: cfg.Location,
		log:      zap.L().With(zap.String("component", "api")),
	}
}

// NewRouter builds the chi router with middleware and every route mounted.
func NewRouter(cfg Config) http.Handler {
	h := NewHandler(cfg)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h.Register(r)
	return r
}

// Register mounts the routes onto r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/districts", h.districts)
	r.Route("/stores", func(r chi.Router) {
		r.Get("/", h.listStores)
		r.Get("/{id}", h.getStore)
		r.Get("/{id}/reviews", h.listReviews)
		r.Get("/{id}/photos", h.listPhotos)
		r.Get("/{id}/menu", h.listMenu)
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
