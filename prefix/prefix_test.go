package prefix

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/version"
)

func TestLoadAndInsertRemove(t *testing.T) {
	dir := t.TempDir()
	metaDir := filepath.Join(dir, "conda-meta")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	v := version.MustParse("1.24.0")
	rec := &condacore.PrefixRecord{
		PackageRecord: condacore.PackageRecord{Name: "numpy", Version: v, Build: "py311_0"},
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(metaDir, "numpy-1.24.0-py311_0.json"), b, 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !d.IsEnvironment() {
		t.Fatal("expected IsEnvironment true")
	}
	got, ok := d.Get("numpy")
	if !ok {
		t.Fatal("expected numpy record loaded")
	}
	if !got.Version.Equal(v) {
		t.Errorf("version = %q, want %q", got.Version, v)
	}

	newer := &condacore.PrefixRecord{
		PackageRecord: condacore.PackageRecord{Name: "scipy", Version: version.MustParse("1.0"), Build: "0"},
	}
	if err := d.Insert(newer); err != nil {
		t.Fatal(err)
	}
	if len(d.All()) != 2 {
		t.Fatalf("expected 2 records, got %d", len(d.All()))
	}
	if err := d.Remove("numpy"); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Get("numpy"); ok {
		t.Fatal("expected numpy removed")
	}
}
