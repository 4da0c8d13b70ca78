// Command condacore is a thin demonstration CLI over the condacore
// library packages (solve/list/sbom), grounded on cmd/cctool's
// flag-parsing + signal-handling + subcommand-dispatch shape. It is not a
// replacement for conda's own CLI; repodata download, channel
// configuration, and shell activation remain external collaborators (see
// SPEC_FULL.md §1).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/database/postgres"
	"github.com/conda-incubator/condacore/pkg/ctxlock"
	"github.com/conda-incubator/condacore/pkgcache"
	"github.com/conda-incubator/condacore/prefix"
	"github.com/conda-incubator/condacore/resolver"
	"github.com/conda-incubator/condacore/sbom"
)

type commonConfig struct {
	pkgsDirs  []string
	pgDSN     string // optional: coordinates concurrent solves against a shared prefix
	mirrorDSN string // optional: durable postgres mirror of prefix/cache indexes
}

// withPrefixLock acquires a distributed lock on targetPrefix for the
// duration of fn when cfg.pgDSN is set, so two hosts sharing a prefix over a
// network filesystem don't solve and write conflicting plans concurrently.
// With no DSN configured it just calls fn.
func withPrefixLock(ctx context.Context, cfg *commonConfig, targetPrefix string, fn func(context.Context) error) error {
	if cfg.pgDSN == "" {
		return fn(ctx)
	}
	pool, err := pgxpool.New(ctx, cfg.pgDSN)
	if err != nil {
		return fmt.Errorf("connecting to lock database: %w", err)
	}
	defer pool.Close()
	locker, err := ctxlock.New(ctx, pool)
	if err != nil {
		return fmt.Errorf("creating lock manager: %w", err)
	}
	defer locker.Close(ctx)
	lockCtx, unlock := locker.Lock(ctx, targetPrefix)
	defer unlock()
	return fn(lockCtx)
}

type subcmd func(context.Context, *commonConfig, []string) error

func main() {
	var exit int
	defer func() {
		if exit != 0 {
			os.Exit(exit)
		}
	}()
	ctx, done := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		<-ch
		done()
	}()

	var cfg commonConfig
	var pkgsDirsFlag string
	fs := flag.NewFlagSet("condacore", flag.ExitOnError)
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nSubcommands\n\n")
		fmt.Fprintln(out, "solve <prefix> <spec...>")
		fmt.Fprintln(out, "\tresolve a set of match specs against the configured package caches")
		fmt.Fprintln(out, "list <prefix>")
		fmt.Fprintln(out, "\tlist packages linked into a prefix; also updates -mirror-dsn if set")
		fmt.Fprintln(out, "sbom <prefix>")
		fmt.Fprintln(out, "\twrite an SPDX document describing a prefix's linked packages")
		fmt.Fprintln(out)
	}
	fs.StringVar(&pkgsDirsFlag, "pkgs-dirs", "", "comma-separated list of package cache directories")
	fs.StringVar(&cfg.pgDSN, "pg-dsn", "", "optional PostgreSQL DSN used to coordinate solves against a shared prefix")
	fs.StringVar(&cfg.mirrorDSN, "mirror-dsn", "", "optional PostgreSQL DSN for a durable mirror of prefix/cache indexes, updated by the list subcommand")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
	if pkgsDirsFlag != "" {
		cfg.pkgsDirs = strings.Split(pkgsDirsFlag, ",")
	}

	var cmd subcmd
	switch n := fs.Arg(0); n {
	case "solve":
		cmd = cmdSolve
	case "list":
		cmd = cmdList
	case "sbom":
		cmd = cmdSBOM
	case "":
		fs.Usage()
		os.Exit(99)
	default:
		fs.Usage()
		fmt.Fprintf(os.Stderr, "\nunknown subcommand %q\n", n)
		os.Exit(99)
	}

	var cmdErr error
	cmdctx, cmddone := context.WithCancel(ctx)
	go func() {
		defer cmddone()
		cmdErr = cmd(cmdctx, &cfg, fs.Args()[1:])
	}()

	select {
	case <-ctx.Done():
		log.Print(ctx.Err())
		exit = 1
	case <-cmdctx.Done():
		if cmdErr != nil {
			log.Print(cmdErr)
			exit = 2
		}
	}
}

func cmdSolve(ctx context.Context, cfg *commonConfig, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: condacore solve <prefix> <spec...>")
	}
	targetPrefix, specs := args[0], args[1:]

	return withPrefixLock(ctx, cfg, targetPrefix, func(ctx context.Context) error {
		var candidates []*condacore.PackageRecord
		for _, dir := range cfg.pkgsDirs {
			data, err := pkgcache.Open(ctx, dir)
			if err != nil {
				return err
			}
			for _, r := range data.All() {
				candidates = append(candidates, &r.PackageRecord)
			}
		}

		var installed []*condacore.PackageRecord
		if pd, err := prefix.Open(ctx, targetPrefix); err == nil {
			for _, r := range pd.All() {
				installed = append(installed, &r.PackageRecord)
			}
		}

		result, err := resolver.Solve(ctx, resolver.Universe{Candidates: candidates, Installed: installed}, specs, resolver.Options{})
		if err != nil {
			return err
		}
		for _, r := range result.Records {
			fmt.Printf("%s=%s=%s\n", r.Name, r.Version, r.Build)
		}
		return nil
	})
}

func cmdList(ctx context.Context, cfg *commonConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: condacore list <prefix>")
	}
	targetPrefix := args[0]
	pd, err := prefix.Open(ctx, targetPrefix)
	if err != nil {
		return err
	}
	var recs []*condacore.PackageRecord
	for _, r := range pd.All() {
		recs = append(recs, &r.PackageRecord)
		fmt.Printf("%s=%s=%s\n", r.Name, r.Version, r.Build)
	}

	if cfg.mirrorDSN != "" {
		pool, err := postgres.Connect(ctx, cfg.mirrorDSN, "condacore")
		if err != nil {
			return fmt.Errorf("connecting to mirror database: %w", err)
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrating mirror database: %w", err)
		}
		if err := postgres.NewStore(pool).UpsertPrefixRecords(ctx, targetPrefix, recs); err != nil {
			return fmt.Errorf("updating mirror database: %w", err)
		}
	}
	return nil
}

func cmdSBOM(ctx context.Context, cfg *commonConfig, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: condacore sbom <prefix>")
	}
	pd, err := prefix.Open(ctx, args[0])
	if err != nil {
		return err
	}
	doc, err := sbom.FromPrefixRecords(args[0], pd.All())
	if err != nil {
		return err
	}
	fmt.Printf("%+v\n", doc)
	return nil
}
