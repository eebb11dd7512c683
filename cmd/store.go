package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tainan-eats/storedir/internal/catalog"
	"github.com/tainan-eats/storedir/internal/config"
	"github.com/tainan-eats/storedir/pkg/places"
)

func initStore(ctx context.Context) (catalog.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		path := cfg.Store.Path
		if path == "" {
			path = "storedir.db"
		}
		return catalog.NewSQLite(path)
	case config.DriverPostgres:
		return catalog.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.PoolConfig())
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens the configured store and applies migrations.
func openStore(ctx context.Context) (catalog.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func initClient() places.Client {
	timeout := time.Duration(cfg.Places.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := []places.Option{
		places.WithHTTPClient(&http.Client{Timeout: timeout}),
		places.WithLanguage(cfg.Places.Language),
		places.WithRegion(cfg.Places.Region),
	}
	if cfg.Places.BaseURL != "" {
		opts = append(opts, places.WithBaseURL(cfg.Places.BaseURL))
	}
	return places.NewClient(cfg.Places.Key, opts...)
}

func photoConfig() catalog.PhotoConfig {
	return catalog.PhotoConfig{
		BaseURL:  cfg.Places.BaseURL,
		Key:      cfg.Places.Key,
		MaxWidth: cfg.Places.PhotoMaxWidth,
	}
}
