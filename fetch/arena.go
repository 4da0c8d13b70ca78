// Package fetch implements progressive, concurrent package download and
// extraction with an at-most-once-per-artifact guarantee.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/quay/zlog"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/internal/cache"
	"github.com/conda-incubator/condacore/internal/httputil"
	"github.com/conda-incubator/condacore/pkg/tmp"
	"github.com/conda-incubator/condacore/pkgcache"
)

var tracer = otel.Tracer("github.com/conda-incubator/condacore/fetch")

// Plan classifies what work, if any, is needed to make a package's archive
// locally extracted, spec.md §4.6's four cases.
type Plan int

const (
	PlanNoop Plan = iota
	PlanExtractOnly
	PlanLinkThenExtract
	PlanDownloadAndExtract
)

// DeterminePlan chooses a Plan given whether the wanted record is already
// fetched/extracted in the target cache, and whether a linkable copy exists
// in another (read-only) cache tier.
func DeterminePlan(wantExtracted, wantFetched, haveElsewhere bool) Plan {
	switch {
	case wantExtracted:
		return PlanNoop
	case wantFetched:
		return PlanExtractOnly
	case haveElsewhere:
		return PlanLinkThenExtract
	default:
		return PlanDownloadAndExtract
	}
}

// Options configures an Arena.
type Options struct {
	Client               *http.Client
	DownloadConcurrency  int
	ExtractConcurrency   int
	RateLimit            *rate.Limiter // optional bandwidth cap
}

// Arena is a scratch area for progressive fetch/extract, grounded on
// libindex's RemoteFetchArena: a root-scoped directory, an at-most-once
// cache keyed by artifact URL, and two independently-sized worker pools.
type Arena struct {
	opt  Options
	root *os.Root

	files cache.Live[string, os.File]
}

// NewArena opens root (which must already exist) as the scratch directory
// for downloads and extraction.
func NewArena(root string, opt Options) (*Arena, error) {
	r, err := os.OpenRoot(root)
	if err != nil {
		return nil, &condacore.Error{Kind: condacore.ErrTransient, Op: "fetch.NewArena", Inner: err}
	}
	if opt.Client == nil {
		opt.Client = http.DefaultClient
	}
	if opt.DownloadConcurrency <= 0 {
		opt.DownloadConcurrency = 4
	}
	if opt.ExtractConcurrency <= 0 {
		opt.ExtractConcurrency = runtime.NumCPU()
	}
	return &Arena{opt: opt, root: r}, nil
}

// Close releases the Arena's root handle.
func (a *Arena) Close() error { return a.root.Close() }

// Artifact names one package archive to fetch/extract.
type Artifact struct {
	URL      string
	Filename string
	SHA256   string // optional, for response validation
}

// FetchAll downloads and extracts every artifact not already present,
// returning the first error encountered (and canceling the rest via ctx).
// Downloads and extracts run on two independently-limited pools, so a CPU-
// bound extraction never blocks a concurrent I/O-bound download.
func (a *Arena) FetchAll(ctx context.Context, artifacts []Artifact) error {
	ctx, span := tracer.Start(ctx, "fetch.Arena.FetchAll")
	defer span.End()

	downloadGrp, ctx := errgroup.WithContext(ctx)
	downloadGrp.SetLimit(a.opt.DownloadConcurrency)
	extractGrp, ctx := errgroup.WithContext(ctx)
	extractGrp.SetLimit(a.opt.ExtractConcurrency)

	for _, art := range artifacts {
		art := art
		downloadGrp.Go(func() error {
			spool, err := a.download(ctx, art)
			if err != nil {
				return err
			}
			extractGrp.Go(func() error {
				defer runtime.KeepAlive(spool)
				return a.extract(ctx, art, spool)
			})
			return nil
		})
	}

	if err := downloadGrp.Wait(); err != nil {
		return err
	}
	return extractGrp.Wait()
}

func (a *Arena) download(ctx context.Context, art Artifact) (*os.File, error) {
	f, err := a.files.Get(ctx, art.URL, func(ctx context.Context, key string) (*os.File, error) {
		zlog.Debug(ctx).Str("artifact", art.Filename).Msg("downloading")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, art.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := a.opt.Client.Do(req)
		if err != nil {
			return nil, &condacore.Error{Kind: condacore.ErrTransient, Op: condacore.OpCondaHTTPError, Inner: err}
		}
		defer resp.Body.Close()
		if err := httputil.CheckResponse(resp, http.StatusOK); err != nil {
			return nil, &condacore.Error{Kind: condacore.ErrTransient, Op: condacore.OpCondaHTTPError, Inner: err}
		}

		// Spool to a temp file first: a download that fails partway must not
		// leave a truncated file at art.Filename for a later run to mistake
		// for a complete one. tmp.File removes itself on Close, so the
		// cleanup happens for free on any early return.
		spool, err := tmp.NewFile(a.root.Name(), art.Filename+".part-*")
		if err != nil {
			return nil, &condacore.Error{Kind: condacore.ErrTransient, Op: "fetch.download", Inner: err}
		}
		defer spool.Close()

		var body io.Reader = resp.Body
		if a.opt.RateLimit != nil {
			body = &rateLimitedReader{ctx: ctx, r: resp.Body, lim: a.opt.RateLimit}
		}
		if _, err := io.Copy(spool.File, body); err != nil {
			return nil, &condacore.Error{Kind: condacore.ErrTransient, Op: "fetch.download", Inner: err}
		}
		if err := os.Rename(spool.Name(), filepath.Join(a.root.Name(), art.Filename)); err != nil {
			return nil, &condacore.Error{Kind: condacore.ErrTransient, Op: "fetch.download", Inner: err}
		}
		dst, err := a.root.Open(art.Filename)
		if err != nil {
			return nil, &condacore.Error{Kind: condacore.ErrTransient, Op: "fetch.download", Inner: err}
		}
		zlog.Debug(ctx).Str("artifact", art.Filename).Msg("done")
		return dst, nil
	})
	return f, err
}

func (a *Arena) extract(ctx context.Context, art Artifact, spool *os.File) error {
	zlog.Debug(ctx).Str("artifact", art.Filename).Msg("extracting")
	defer zlog.Debug(ctx).Str("artifact", art.Filename).Msg("done")

	destDir := extractedDirName(art.Filename)
	if err := a.root.Mkdir(destDir, 0o755); err != nil && !os.IsExist(err) {
		return &condacore.Error{Kind: condacore.ErrTransient, Op: "fetch.extract", Inner: err}
	}

	info, err := spool.Stat()
	if err != nil {
		return &condacore.Error{Kind: condacore.ErrTransient, Op: "fetch.extract", Inner: err}
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return &condacore.Error{Kind: condacore.ErrTransient, Op: "fetch.extract", Inner: err}
	}
	destPath := filepath.Join(a.root.Name(), destDir)
	if err := pkgcache.Extract(art.Filename, destPath, spool, info.Size()); err != nil {
		return &condacore.Error{Kind: condacore.ErrTransient, Op: "fetch.extract", Inner: err}
	}
	return nil
}

func extractedDirName(fn string) string {
	base := fn
	for _, suf := range []string{".conda", ".tar.bz2"} {
		if len(base) > len(suf) && base[len(base)-len(suf):] == suf {
			return base[:len(base)-len(suf)]
		}
	}
	return base
}

type rateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	lim *rate.Limiter
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.lim.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
