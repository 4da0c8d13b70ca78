package fetch

import "testing"

func TestDeterminePlan(t *testing.T) {
	tt := []struct {
		name                               string
		extracted, fetched, haveElsewhere bool
		want                               Plan
	}{
		{"already extracted", true, true, true, PlanNoop},
		{"fetched not extracted", false, true, false, PlanExtractOnly},
		{"linkable from another tier", false, false, true, PlanLinkThenExtract},
		{"nothing local", false, false, false, PlanDownloadAndExtract},
	}
	for _, tc := range tt {
		if got := DeterminePlan(tc.extracted, tc.fetched, tc.haveElsewhere); got != tc.want {
			t.Errorf("%s: DeterminePlan() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExtractedDirName(t *testing.T) {
	tt := map[string]string{
		"numpy-1.24.0-py311h1234_0.conda":    "numpy-1.24.0-py311h1234_0",
		"numpy-1.24.0-py311h1234_0.tar.bz2":  "numpy-1.24.0-py311h1234_0",
	}
	for in, want := range tt {
		if got := extractedDirName(in); got != want {
			t.Errorf("extractedDirName(%q) = %q, want %q", in, got, want)
		}
	}
}
