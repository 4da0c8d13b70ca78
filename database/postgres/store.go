package postgres

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	condacore "github.com/conda-incubator/condacore"
)

var dialect = goqu.Dialect("postgres")

// Store is a durable mirror of one or more prefixes' and pkgs_dirs' package
// indexes, backed by postgres. It is written to by a caller after a
// successful [transaction.Transaction.Execute] or [fetch.Arena.FetchAll];
// condacore's own solve/link/unlink paths never read from it, so a Store
// being unreachable never blocks those operations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool (see [Connect]) as a Store. The
// caller is responsible for calling [Migrate] first.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertPrefixRecords replaces prefix's mirrored set of linked packages with
// recs, inserting any package not already recorded and updating any that
// changed build/version.
func (s *Store) UpsertPrefixRecords(ctx context.Context, prefix string, recs []*condacore.PackageRecord) (err error) {
	q := startQuery("upsert_prefix_records")
	defer q.done(&err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range recs {
		ins := dialect.Insert("prefix_record").
			Rows(goqu.Record{
				"prefix": prefix,
				"name":   r.Name,
				"data":   jsonbRecord(*r),
			}).
			OnConflict(goqu.DoUpdate("prefix,name", goqu.Record{
				"data":       jsonbRecord(*r),
				"updated_at": goqu.L("now()"),
			}))
		sql, args, err := ins.ToSQL()
		if err != nil {
			return fmt.Errorf("postgres: building upsert: %w", err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("postgres: upserting prefix record %s/%s: %w", prefix, r.Name, err)
		}
	}

	names := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		names[r.Name] = struct{}{}
	}
	existing, err := s.prefixRecordNames(ctx, tx, prefix)
	if err != nil {
		return err
	}
	for _, name := range existing {
		if _, ok := names[name]; ok {
			continue
		}
		del := dialect.Delete("prefix_record").Where(goqu.Ex{"prefix": prefix, "name": name})
		sql, args, err := del.ToSQL()
		if err != nil {
			return fmt.Errorf("postgres: building delete: %w", err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("postgres: deleting stale prefix record %s/%s: %w", prefix, name, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) prefixRecordNames(ctx context.Context, tx pgx.Tx, prefix string) ([]string, error) {
	sel := dialect.From("prefix_record").Select("name").Where(goqu.Ex{"prefix": prefix})
	sql, args, err := sel.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("postgres: building select: %w", err)
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing prefix record names: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// PrefixRecords returns prefix's mirrored set of linked packages.
func (s *Store) PrefixRecords(ctx context.Context, prefix string) (recs []*condacore.PackageRecord, err error) {
	q := startQuery("prefix_records")
	defer q.done(&err)

	sel := dialect.From("prefix_record").Select("data").Where(goqu.Ex{"prefix": prefix})
	sql, args, qerr := sel.ToSQL()
	if qerr != nil {
		return nil, fmt.Errorf("postgres: building select: %w", qerr)
	}
	rows, qerr := s.pool.Query(ctx, sql, args...)
	if qerr != nil {
		return nil, fmt.Errorf("postgres: querying prefix records: %w", qerr)
	}
	defer rows.Close()
	for rows.Next() {
		var jr jsonbRecord
		if err := rows.Scan(&jr); err != nil {
			return nil, err
		}
		r := condacore.PackageRecord(jr)
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

// UpsertCacheRecords mirrors pkgsDir's package cache index.
func (s *Store) UpsertCacheRecords(ctx context.Context, pkgsDir string, recs []*condacore.PackageCacheRecord) (err error) {
	q := startQuery("upsert_cache_records")
	defer q.done(&err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range recs {
		ins := dialect.Insert("cache_record").
			Rows(goqu.Record{
				"pkgs_dir": pkgsDir,
				"channel":  r.Channel.Canonical,
				"subdir":   r.Subdir,
				"name":     r.Name,
				"version":  r.Version.String(),
				"build":    r.Build,
				"data":     jsonbRecord(r.PackageRecord),
			}).
			OnConflict(goqu.DoUpdate("pkgs_dir,channel,subdir,name,version,build", goqu.Record{
				"data":       jsonbRecord(r.PackageRecord),
				"updated_at": goqu.L("now()"),
			}))
		sql, args, err := ins.ToSQL()
		if err != nil {
			return fmt.Errorf("postgres: building upsert: %w", err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("postgres: upserting cache record %s/%s: %w", pkgsDir, r.Fn, err)
		}
	}

	return tx.Commit(ctx)
}

// CacheRecords returns pkgsDir's mirrored package cache index.
func (s *Store) CacheRecords(ctx context.Context, pkgsDir string) (recs []*condacore.PackageCacheRecord, err error) {
	q := startQuery("cache_records")
	defer q.done(&err)

	sel := dialect.From("cache_record").Select("data").Where(goqu.Ex{"pkgs_dir": pkgsDir})
	sql, args, qerr := sel.ToSQL()
	if qerr != nil {
		return nil, fmt.Errorf("postgres: building select: %w", qerr)
	}
	rows, qerr := s.pool.Query(ctx, sql, args...)
	if qerr != nil {
		return nil, fmt.Errorf("postgres: querying cache records: %w", qerr)
	}
	defer rows.Close()
	for rows.Next() {
		var jr jsonbRecord
		if err := rows.Scan(&jr); err != nil {
			return nil, err
		}
		recs = append(recs, &condacore.PackageCacheRecord{PackageRecord: condacore.PackageRecord(jr)})
	}
	return recs, rows.Err()
}
