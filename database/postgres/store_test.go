package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/quay/zlog"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/version"
)

const dsnEnv = "CONDACORE_TEST_POSTGRES_DSN"

func testStore(t *testing.T) (context.Context, *Store) {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	ctx := zlog.Test(context.Background(), t)
	pool, err := Connect(ctx, dsn, "condacore-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}
	return ctx, NewStore(pool)
}

func TestPrefixRecordRoundtrip(t *testing.T) {
	t.Parallel()
	ctx, s := testStore(t)

	prefix := t.TempDir()
	rec := &condacore.PackageRecord{
		Name:    "numpy",
		Version: version.MustParse("1.24.0"),
		Build:   "py311h7125741_0",
		Channel: condacore.Channel{Canonical: "conda-forge"},
		Subdir:  "linux-64",
	}

	if err := s.UpsertPrefixRecords(ctx, prefix, []*condacore.PackageRecord{rec}); err != nil {
		t.Fatal(err)
	}
	got, err := s.PrefixRecords(ctx, prefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "numpy" {
		t.Fatalf("unexpected records: %+v", got)
	}

	// Dropping numpy from the upserted set should delete its mirrored row.
	if err := s.UpsertPrefixRecords(ctx, prefix, nil); err != nil {
		t.Fatal(err)
	}
	got, err = s.PrefixRecords(ctx, prefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty prefix after removal, got %+v", got)
	}
}

func TestCacheRecordRoundtrip(t *testing.T) {
	t.Parallel()
	ctx, s := testStore(t)

	dir := t.TempDir()
	rec := &condacore.PackageCacheRecord{
		PackageRecord: condacore.PackageRecord{
			Name:    "numpy",
			Version: version.MustParse("1.24.0"),
			Build:   "py311h7125741_0",
			Channel: condacore.Channel{Canonical: "conda-forge"},
			Subdir:  "linux-64",
		},
	}

	if err := s.UpsertCacheRecords(ctx, dir, []*condacore.PackageCacheRecord{rec}); err != nil {
		t.Fatal(err)
	}
	got, err := s.CacheRecords(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "numpy" {
		t.Fatalf("unexpected records: %+v", got)
	}
}
