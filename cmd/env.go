package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sightings-cli/internal/db"
	"github.com/sells-group/sightings-cli/internal/source"
	"github.com/sells-group/sightings-cli/internal/store"
)

// openStore connects to PostGIS. Failing here is the one fatal condition of
// every command that needs storage.
func openStore(ctx context.Context) (*pgxpool.Pool, *store.PostgresStore, error) {
	pool, err := db.Open(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool())
	if err != nil {
		return nil, nil, eris.Wrap(err, "open store")
	}
	return pool, store.NewPostgres(pool), nil
}

func newSourceClient() (*source.Client, error) {
	sc := cfg.Source
	if sc.ConsumerKey == "" || sc.ConsumerSecret == "" {
		return nil, eris.New("source consumer key and secret are required (SIGHTINGS_SOURCE_CONSUMER_KEY, SIGHTINGS_SOURCE_CONSUMER_SECRET)")
	}
	return source.New(source.Config{
		BaseURL:        sc.BaseURL,
		UserEmail:      sc.UserEmail,
		UserPassword:   sc.UserPassword,
		ConsumerKey:    sc.ConsumerKey,
		ConsumerSecret: sc.ConsumerSecret,
		TaxoGroup:      sc.TaxoGroup,
		Timeout:        time.Duration(sc.TimeoutSecs) * time.Second,
		RatePerSec:     sc.RatePerSec,
		UserAgent:      sc.UserAgent,
	}), nil
}
