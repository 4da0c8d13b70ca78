package backend

import (
	"testing"

	"github.com/conda-incubator/condacore/internal/sat"
)

func TestDPLLSatisfiable(t *testing.T) {
	// (x1 || x2) && (!x1 || x2) && (x1 || !x2) is satisfied only by x1=x2=true.
	clauses := []sat.Clause{
		{1, 2},
		{-1, 2},
		{1, -2},
	}
	assign, ok := DPLL{}.Run(2, clauses, 0)
	if !ok {
		t.Fatal("expected satisfiable")
	}
	if assign[0] != 1 || assign[1] != 2 {
		t.Errorf("expected x1=true,x2=true, got %v", assign)
	}
}

func TestDPLLUnsatisfiable(t *testing.T) {
	clauses := []sat.Clause{
		{1},
		{-1},
	}
	_, ok := DPLL{}.Run(1, clauses, 0)
	if ok {
		t.Fatal("expected unsatisfiable")
	}
}
