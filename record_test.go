package condacore

import (
	"testing"

	"github.com/conda-incubator/condacore/version"
)

func newRecord(fn string) *PackageRecord {
	return &PackageRecord{
		Name:        "numpy",
		Version:     version.MustParse("1.24.0"),
		Build:       "py311h1234",
		BuildNumber: 0,
		Channel:     Channel{Canonical: "conda-forge"},
		Subdir:      "linux-64",
		Fn:          fn,
	}
}

func TestKeyIgnoresFnByDefault(t *testing.T) {
	SeparateFormatCache = false
	a := newRecord("numpy-1.24.0-py311h1234.conda")
	b := newRecord("numpy-1.24.0-py311h1234.tar.bz2")
	if a.Key() != b.Key() {
		t.Errorf("expected identical keys regardless of archive format, got %+v vs %+v", a.Key(), b.Key())
	}
}

func TestKeySeparatesFormatsWhenConfigured(t *testing.T) {
	SeparateFormatCache = true
	defer func() { SeparateFormatCache = false }()
	a := newRecord("numpy-1.24.0-py311h1234.conda")
	b := newRecord("numpy-1.24.0-py311h1234.tar.bz2")
	if a.Key() == b.Key() {
		t.Error("expected distinct keys when SeparateFormatCache is set")
	}
}

func TestFeatureRecordConvention(t *testing.T) {
	r := FeatureRecord("mkl")
	if r.Name != "mkl@" {
		t.Errorf("got %q, want %q", r.Name, "mkl@")
	}
	if r.Channel.Canonical != "@" {
		t.Errorf("expected synthetic channel \"@\", got %q", r.Channel.Canonical)
	}
}
