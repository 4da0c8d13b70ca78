package version

import (
	"encoding/json"
	"testing"
)

func TestOrdering(t *testing.T) {
	// Each row must sort strictly after the previous one.
	chain := []string{
		"1.0dev1",
		"1.0a1",
		"1.0",
		"1.0.post1",
		"1.0.1",
		"1.1",
		"2!1.0",
	}
	var prev Version
	for i, s := range chain {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if i == 0 {
			prev = v
			continue
		}
		if !prev.Less(v) {
			t.Errorf("expected %q < %q", chain[i-1], s)
		}
		prev = v
	}
}

func TestEqualNormalization(t *testing.T) {
	a := MustParse("1.0_1")
	b := MustParse("1.0.1")
	if !a.Equal(b) {
		t.Errorf("expected %q == %q (underscore normalizes to dot)", a, b)
	}
}

func TestLocalSegment(t *testing.T) {
	plain := MustParse("1.0")
	local := MustParse("1.0+local1")
	if !plain.Less(local) {
		t.Errorf("expected plain version to sort before a local-tagged one")
	}
}

func TestEpochDominates(t *testing.T) {
	low := MustParse("1!0.1")
	high := MustParse("0.999")
	if !high.Less(low) {
		t.Errorf("expected higher epoch to dominate release segment")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	v := MustParse("1.24.0.post1+local5")
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Version
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Equal(v) {
		t.Errorf("round-tripped version %q != original %q", got, v)
	}
}

func TestParseError(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Error("expected error parsing empty version")
	}
	if _, err := Parse("nope!1.0"); err == nil {
		t.Error("expected error parsing non-numeric epoch")
	}
}
