package matchspec

import (
	"testing"

	"github.com/conda-incubator/condacore/version"
)

type fakeRecord struct {
	name    string
	ver     string
	build   string
	channel string
	subdir  string
	feats   []string
}

func (f fakeRecord) PackageName() string            { return f.name }
func (f fakeRecord) PackageVersion() version.Version { return version.MustParse(f.ver) }
func (f fakeRecord) PackageBuild() string           { return f.build }
func (f fakeRecord) PackageBuildNumber() int        { return 0 }
func (f fakeRecord) ChannelName() string            { return f.channel }
func (f fakeRecord) SubdirName() string             { return f.subdir }
func (f fakeRecord) TrackFeaturesList() []string    { return f.feats }

func TestMatchesVersionRange(t *testing.T) {
	m, err := Parse("numpy>=1.20,<2")
	if err != nil {
		t.Fatal(err)
	}
	ok := fakeRecord{name: "numpy", ver: "1.24.0"}
	tooOld := fakeRecord{name: "numpy", ver: "1.19.0"}
	tooNew := fakeRecord{name: "numpy", ver: "2.0.0"}
	if !m.Matches(ok) {
		t.Error("expected match for 1.24.0")
	}
	if m.Matches(tooOld) {
		t.Error("expected no match for 1.19.0")
	}
	if m.Matches(tooNew) {
		t.Error("expected no match for 2.0.0")
	}
}

func TestMatchesBuildGlob(t *testing.T) {
	m, err := Parse("python=3.11=py311*")
	if err != nil {
		t.Fatal(err)
	}
	rec := fakeRecord{name: "python", ver: "3.11.4", build: "py311h955"}
	if !m.Matches(rec) {
		t.Errorf("expected build glob to match, spec=%+v rec=%+v", m, rec)
	}
}

func TestMatchesTrackFeature(t *testing.T) {
	m, err := Parse("numpy[track_features=mkl]")
	if err != nil {
		t.Fatal(err)
	}
	withFeat := fakeRecord{name: "numpy", ver: "1.0", feats: []string{"mkl"}}
	without := fakeRecord{name: "numpy", ver: "1.0"}
	if !m.Matches(withFeat) {
		t.Error("expected match when feature tracked")
	}
	if m.Matches(without) {
		t.Error("expected no match when feature absent")
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Error("expected error for empty spec")
	}
}
