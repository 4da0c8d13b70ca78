package pkgcache

import "testing"

func TestParseFilename(t *testing.T) {
	tt := []struct {
		fn          string
		name        string
		ver         string
		build       string
		buildNumber int
	}{
		{"numpy-1.24.0-py311h1234_0.conda", "numpy", "1.24.0", "py311h1234_0", 0},
		{"py-xgboost-1.7.6-cuda120_2.tar.bz2", "py-xgboost", "1.7.6", "cuda120_2", 2},
	}
	for _, tc := range tt {
		rec, err := ParseFilename(tc.fn)
		if err != nil {
			t.Fatalf("%s: %v", tc.fn, err)
		}
		if rec.Name != tc.name {
			t.Errorf("%s: name = %q, want %q", tc.fn, rec.Name, tc.name)
		}
		if rec.Version.String() != tc.ver {
			t.Errorf("%s: version = %q, want %q", tc.fn, rec.Version.String(), tc.ver)
		}
		if rec.Build != tc.build {
			t.Errorf("%s: build = %q, want %q", tc.fn, rec.Build, tc.build)
		}
		if rec.BuildNumber != tc.buildNumber {
			t.Errorf("%s: build number = %d, want %d", tc.fn, rec.BuildNumber, tc.buildNumber)
		}
	}
}

func TestParseFilenameRejectsUnknownExtension(t *testing.T) {
	if _, err := ParseFilename("numpy-1.24.0-py311h1234_0.whl"); err == nil {
		t.Error("expected error for unrecognized extension")
	}
}
