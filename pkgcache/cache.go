// Package pkgcache implements conda's package cache: a content-addressed
// store of downloaded/extracted package archives under one or more
// pkgs_dirs, with an at-most-once-per-artifact guarantee for concurrent
// callers opening the same directory.
package pkgcache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/internal/cache"
)

// Data is a single pkgs_dir's in-memory index of PackageCacheRecords,
// conda's PackageCacheData.
type Data struct {
	dir string

	mu      sync.RWMutex
	records map[condacore.Key]*condacore.PackageCacheRecord
}

// registry is the process-global, at-most-once-per-directory loader for
// Data, grounded on internal/cache.Live — concurrent Open calls for the
// same pkgs_dir share one load.
var registry cache.Live[string, Data]

// Open returns the Data for dir, loading it (scanning dir for tarballs and
// extracted trees) at most once per process per distinct dir.
func Open(ctx context.Context, dir string) (*Data, error) {
	return registry.Get(ctx, dir, func(ctx context.Context, dir string) (*Data, error) {
		return load(ctx, dir)
	})
}

func load(_ context.Context, dir string) (*Data, error) {
	d := &Data{dir: dir, records: make(map[condacore.Key]*condacore.PackageCacheRecord)}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, &condacore.Error{Kind: condacore.ErrTransient, Op: "pkgcache.load", Inner: err}
	}
	for _, e := range entries {
		name := e.Name()
		switch {
		case !e.IsDir() && (hasSuffix(name, ".conda") || hasSuffix(name, ".tar.bz2")):
			rec, err := readTarballRecord(dir, name)
			if err != nil {
				continue // unreadable or foreign archive: skip, don't fail the whole scan
			}
			d.records[rec.Key()] = rec
		case e.IsDir():
			rrPath := filepath.Join(dir, name, "info", "repodata_record.json")
			if b, err := os.ReadFile(rrPath); err == nil {
				rec, err := decodeRepodataRecord(b)
				if err == nil {
					rec.ExtractedPackageDir = filepath.Join(dir, name)
					if existing, ok := d.records[rec.Key()]; ok {
						existing.ExtractedPackageDir = rec.ExtractedPackageDir
						continue
					}
					d.records[rec.Key()] = rec
				}
			}
		}
	}
	return d, nil
}

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}

// readTarballRecord builds a minimal PackageCacheRecord from an archive's
// filename alone (name-version-build.ext); full metadata is only available
// once the archive's info/index.json is read by the fetch/extract path.
func readTarballRecord(dir, fn string) (*condacore.PackageCacheRecord, error) {
	rec, err := ParseFilename(fn)
	if err != nil {
		return nil, err
	}
	rec.PackageTarballFullPath = filepath.Join(dir, fn)
	return rec, nil
}

type repodataRecord struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Build       string   `json:"build"`
	BuildNumber int      `json:"build_number"`
	Subdir      string   `json:"subdir"`
	Fn          string   `json:"fn"`
	Depends     []string `json:"depends"`
	Constrains  []string `json:"constrains"`
	Channel     string   `json:"channel"`
	Noarch      string   `json:"noarch"`
}

func decodeRepodataRecord(b []byte) (*condacore.PackageCacheRecord, error) {
	var rr repodataRecord
	if err := json.Unmarshal(b, &rr); err != nil {
		return nil, err
	}
	v, err := parseVersion(rr.Version)
	if err != nil {
		return nil, err
	}
	return &condacore.PackageCacheRecord{
		PackageRecord: condacore.PackageRecord{
			Name:        rr.Name,
			Version:     v,
			Build:       rr.Build,
			BuildNumber: rr.BuildNumber,
			Subdir:      rr.Subdir,
			Fn:          rr.Fn,
			Channel:     condacore.Channel{Canonical: rr.Channel},
			Depends:     rr.Depends,
			Constrains:  rr.Constrains,
			Noarch:      condacore.Noarch(rr.Noarch),
		},
	}, nil
}

// Get returns the cached record for key, if present.
func (d *Data) Get(key condacore.Key) (*condacore.PackageCacheRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[key]
	return rec, ok
}

// Put registers or replaces rec, used after a fetch/extract completes.
func (d *Data) Put(rec *condacore.PackageCacheRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[rec.Key()] = rec
}

// All returns a snapshot of every record currently indexed.
func (d *Data) All() []*condacore.PackageCacheRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*condacore.PackageCacheRecord, 0, len(d.records))
	for _, r := range d.records {
		out = append(out, r)
	}
	return out
}

// Dir returns the pkgs_dir this Data indexes.
func (d *Data) Dir() string { return d.dir }
