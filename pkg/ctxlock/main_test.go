package ctxlock

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/log/testingadapter"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/quay/zlog"
)

// dsnEnv names the environment variable pointing at a scratch PostgreSQL
// instance for pkg/ctxlock's tests. Tests that need a live connection skip
// when it's unset rather than standing up an embedded server.
const dsnEnv = "CONDACORE_TEST_CTXLOCK_DSN"

func basicSetup(t testing.TB) (context.Context, *Locker) {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	ctx := zlog.Test(context.Background(), t)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatal(err)
	}
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   testingadapter.NewLogger(t),
		LogLevel: tracelog.LogLevelError,
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	// Create the Locker.
	l, err := New(ctx, pool)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close(ctx) })

	return ctx, l
}
