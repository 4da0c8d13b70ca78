package compat

import "testing"

func TestCheckConstraintInvalid(t *testing.T) {
	if _, err := CheckConstraint("not a constraint"); err == nil {
		t.Fatal("expected error for malformed constraint")
	}
}

func TestVersionFallback(t *testing.T) {
	if v := Version(); v == "" {
		t.Fatal("expected a non-empty version string")
	}
}
