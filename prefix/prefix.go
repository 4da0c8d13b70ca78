// Package prefix implements the prefix record store: the in-memory index
// of a conda environment's conda-meta/*.json files, conda's PrefixData.
package prefix

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/internal/cache"
)

// Data is one prefix's in-memory index of linked packages, loaded from its
// conda-meta directory.
type Data struct {
	dir string

	mu      sync.RWMutex
	records map[string]*condacore.PrefixRecord // keyed by package name
}

var registry cache.Live[string, Data]

// Open returns the Data for prefixDir, loading its conda-meta directory at
// most once per process per distinct prefixDir.
func Open(ctx context.Context, prefixDir string) (*Data, error) {
	return registry.Get(ctx, prefixDir, func(ctx context.Context, dir string) (*Data, error) {
		return load(dir)
	})
}

func load(prefixDir string) (*Data, error) {
	d := &Data{dir: prefixDir, records: make(map[string]*condacore.PrefixRecord)}
	metaDir := filepath.Join(prefixDir, "conda-meta")
	entries, err := os.ReadDir(metaDir)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, &condacore.Error{Kind: condacore.ErrTransient, Op: "prefix.load", Inner: err}
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || name == "history" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(metaDir, name))
		if err != nil {
			continue
		}
		var rec condacore.PrefixRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			continue // a foreign or corrupt conda-meta file: skip, don't fail the whole scan
		}
		d.records[rec.Name] = &rec
	}
	return d, nil
}

// IsEnvironment reports whether prefixDir looks like a conda environment
// (has a conda-meta directory), matching PrefixData.is_environment.
func (d *Data) IsEnvironment() bool {
	_, err := os.Stat(filepath.Join(d.dir, "conda-meta"))
	return err == nil
}

// Get returns the linked record for a package name, if any.
func (d *Data) Get(name string) (*condacore.PrefixRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[name]
	return rec, ok
}

// All returns a snapshot of every linked package record, the set
// action.CreatePrefixRecord's Insert callback and sbom.FromPrefixRecords
// both consume.
func (d *Data) All() []*condacore.PrefixRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*condacore.PrefixRecord, 0, len(d.records))
	for _, r := range d.records {
		out = append(out, r)
	}
	return out
}

// Insert records rec as linked, for action.CreatePrefixRecord to call once
// it has written the on-disk conda-meta/<dist>.json.
func (d *Data) Insert(rec *condacore.PrefixRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[rec.Name] = rec
	return nil
}

// Remove drops name from the in-memory index, for
// action.RemoveLinkedPackageRecord to call once it has removed the on-disk
// conda-meta/<dist>.json.
func (d *Data) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, name)
	return nil
}

// DistFilename returns the conda-meta/<name>-<version>-<build>.json basename
// for rec.
func DistFilename(rec *condacore.PackageRecord) string {
	return rec.Name + "-" + rec.Version.String() + "-" + rec.Build + ".json"
}
