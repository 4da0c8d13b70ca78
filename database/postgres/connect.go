// Package postgres is an optional, durable mirror of a pkgs_dir's package
// cache index and a prefix's linked-package records, grounded on
// datastore/postgres's connection/metrics/query-builder shape. condacore
// never requires it: pkgcache and prefix already maintain their own
// authoritative, filesystem-derived indexes, and every solve/link/unlink
// operation works against those. A Store is useful only when an operator
// wants a centrally queryable record of what's installed where, e.g. for
// fleet-wide auditing, and is wired in only by a caller that constructs one
// explicitly (see [Connect]).
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quay/zlog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Connect opens a pgxpool.Pool against connString, tagging it with
// applicationName for server-side observability (pg_stat_activity).
func Connect(ctx context.Context, connString, applicationName string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing connection string: %w", err)
	}
	const appNameKey = "application_name"
	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params[appNameKey]; !ok {
		params[appNameKey] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging connection pool: %w", err)
	}
	return pool, nil
}

// Migrate applies every embedded schema migration to pool, in lexical
// filename order. Migrations are plain idempotent DDL
// ("CREATE TABLE IF NOT EXISTS"), so Migrate is safe to call every time a
// Store is opened rather than requiring a separate migration step.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("postgres: reading embedded migrations: %w", err)
	}
	for _, e := range entries {
		b, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("postgres: reading migration %s: %w", e.Name(), err)
		}
		zlog.Debug(ctx).Str("migration", e.Name()).Msg("applying")
		if _, err := pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("postgres: applying migration %s: %w", e.Name(), err)
		}
	}
	return nil
}
