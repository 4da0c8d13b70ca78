package sbom

import (
	"testing"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/version"
)

func TestFromPrefixRecords(t *testing.T) {
	v, err := version.Parse("1.24.0")
	if err != nil {
		t.Fatal(err)
	}
	recs := []*condacore.PrefixRecord{
		{
			PackageRecord: condacore.PackageRecord{
				Name:    "numpy",
				Version: v,
				Build:   "py311h1234_0",
				Fn:      "numpy-1.24.0-py311h1234_0.conda",
			},
		},
	}
	doc, err := FromPrefixRecords("/envs/test", recs)
	if err != nil {
		t.Fatalf("FromPrefixRecords: %v", err)
	}
	if len(doc.Packages) != 2 { // environment + one package
		t.Fatalf("got %d packages, want 2", len(doc.Packages))
	}
	if len(doc.Relationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(doc.Relationships))
	}
	if doc.Relationships[0].Relationship != "CONTAINED_BY" {
		t.Errorf("relationship = %q, want CONTAINED_BY", doc.Relationships[0].Relationship)
	}
}
