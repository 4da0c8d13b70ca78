package resolver

import (
	"context"
	"testing"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/version"
)

func rec(name, ver, build string, buildNum int, deps ...string) *condacore.PackageRecord {
	return &condacore.PackageRecord{
		Name:        name,
		Version:     version.MustParse(ver),
		Build:       build,
		BuildNumber: buildNum,
		Channel:     condacore.Channel{Canonical: "conda-forge"},
		Subdir:      "linux-64",
		Fn:          name + "-" + ver + "-" + build + ".conda",
		Depends:     deps,
	}
}

func TestSolveSimpleDependency(t *testing.T) {
	u := Universe{
		Candidates: []*condacore.PackageRecord{
			rec("a", "1.0", "0", 0, "b>=1.0"),
			rec("b", "1.0", "0", 0),
			rec("b", "2.0", "0", 0),
		},
	}
	res, err := Solve(context.Background(), u, []string{"a"}, Options{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	names := map[string]bool{}
	for _, r := range res.Records {
		names[r.Name] = true
	}
	if !names["a"] || !names["b"] {
		t.Fatalf("expected a and b selected, got %v", res.Records)
	}
}

func TestSolvePrefersLatestVersion(t *testing.T) {
	u := Universe{
		Candidates: []*condacore.PackageRecord{
			rec("b", "1.0", "0", 0),
			rec("b", "2.0", "0", 0),
		},
	}
	res, err := Solve(context.Background(), u, []string{"b"}, Options{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Version.String() != "2.0" {
		t.Fatalf("expected b-2.0 selected, got %v", res.Records)
	}
}

func TestSolveUnsatisfiable(t *testing.T) {
	u := Universe{
		Candidates: []*condacore.PackageRecord{
			rec("a", "1.0", "0", 0, "b>=5.0"),
			rec("b", "1.0", "0", 0),
		},
	}
	_, err := Solve(context.Background(), u, []string{"a", "b"}, Options{})
	if err == nil {
		t.Fatal("expected unsatisfiable error")
	}
	var unsat *condacore.UnsatisfiableError
	if !isUnsat(err, &unsat) {
		t.Fatalf("expected *condacore.UnsatisfiableError, got %T: %v", err, err)
	}
}

func isUnsat(err error, target **condacore.UnsatisfiableError) bool {
	if e, ok := err.(*condacore.UnsatisfiableError); ok {
		*target = e
		return true
	}
	return false
}
