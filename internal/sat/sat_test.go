package sat

import (
	"testing"
)

func TestAndOrFold(t *testing.T) {
	var c Clauses
	if got := c.And(True, True); got != True {
		t.Errorf("And(True,True) = %v, want True", got)
	}
	if got := c.Or(False, False); got != False {
		t.Errorf("Or(False,False) = %v, want False", got)
	}
	x := c.NewVar()
	if got := c.And(x, False); got != False {
		t.Errorf("And(x,False) = %v, want False", got)
	}
	if got := c.Or(x, True); got != True {
		t.Errorf("Or(x,True) = %v, want True", got)
	}
}

func TestAtMostOneUnitPropagationShape(t *testing.T) {
	var c Clauses
	a := c.NewVar()
	b := c.NewVar()
	d := c.NewVar()
	ok := c.AtMostOne(a, b, d)
	c.Require(ok)
	c.Require(a)
	c.Require(b)
	// This instance (a && b && AtMostOne(a,b,d)) is unsatisfiable; just
	// confirm clauses were emitted rather than folded to a constant.
	if len(c.Clauses()) == 0 {
		t.Error("expected AtMostOne over three variables to emit clauses")
	}
}

func TestLinearBoundTrivial(t *testing.T) {
	var c Clauses
	x := c.NewVar()
	y := c.NewVar()
	got := c.LinearBound([]Term{{Coeff: 1, Lit: x}, {Coeff: 1, Lit: y}}, 0, 2)
	if got != True {
		t.Errorf("sum of two 0/1 terms bounded [0,2] should always hold, got %v", got)
	}
}

func TestLinearBoundUnsatisfiableBound(t *testing.T) {
	var c Clauses
	x := c.NewVar()
	y := c.NewVar()
	got := c.LinearBound([]Term{{Coeff: 1, Lit: x}, {Coeff: 1, Lit: y}}, 5, 5)
	if got != False {
		t.Fatalf("sum of two 0/1 terms can never reach 5: expected False, got %v", got)
	}
}
