package minimize

import (
	"testing"

	"github.com/conda-incubator/condacore/internal/sat"
	"github.com/conda-incubator/condacore/internal/sat/backend"
)

func TestMinimalUnsatSubset(t *testing.T) {
	// Three unit literals asserting x1, -x1, x2: the minimal unsat core is
	// just {x1, -x1}; x2 is never involved in the conflict.
	specs := []sat.Literal{1, -1, 2}
	satFunc := func(extra []sat.Literal) bool {
		seen := map[sat.Literal]bool{}
		for _, l := range extra {
			seen[l] = true
			if seen[-l] {
				return false
			}
		}
		return true
	}
	core := MinimalUnsatSubset(specs, satFunc)
	if len(core) != 2 {
		t.Fatalf("expected a 2-element core, got %v", core)
	}
}

func TestMinimizePrefersFewerSelections(t *testing.T) {
	var c sat.Clauses
	x := c.NewVar()
	y := c.NewVar()
	// Require at least one of x,y true, then minimize(x+y) should land on a
	// total of 1, not 2.
	c.Require(c.Any(x, y))
	objective := Objective{{Coeff: 1, Lit: x}, {Coeff: 1, Lit: y}}
	start := []sat.Literal{x, y} // both true: satisfies Any but not minimal
	best := Minimize(&c, backend.DPLL{}, objective, start, 10)
	if got := objective.sum(assignMap(best)); got > 1 {
		t.Errorf("expected minimized sum <= 1, got %d (assignment %v)", got, best)
	}
}
