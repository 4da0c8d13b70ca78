// Package minimize implements conda's two-pass bisection minimizer over a
// clause store: given an objective (a set of weighted literals) and a
// satisfying assignment, find an assignment minimizing the objective's sum,
// ported from Clauses.minimize in common/logic.py.
package minimize

import (
	"github.com/conda-incubator/condacore/internal/sat"
	"github.com/conda-incubator/condacore/internal/sat/backend"
)

// Objective is a weighted sum of literals to minimize.
type Objective []sat.Term

func (o Objective) sum(assign map[int32]bool) int64 {
	var total int64
	for _, t := range o {
		v := t.Lit.Var()
		positive := t.Lit > 0
		if assign[v] == positive {
			total += t.Coeff
		}
	}
	return total
}

func (o Objective) maxCoeff() int64 {
	var m int64
	for _, t := range o {
		if t.Coeff > m {
			m = t.Coeff
		}
	}
	return m
}

func assignMap(lits []sat.Literal) map[int32]bool {
	m := make(map[int32]bool, len(lits))
	for _, l := range lits {
		m[l.Var()] = l > 0
	}
	return m
}

// Minimize finds an assignment satisfying c's clauses that minimizes
// objective's sum, starting from the known-satisfiable bestSol. When the
// objective's coefficients are all 1, a single bisection pass over the sum
// suffices; otherwise a first pass bisects the maximum individually-
// selected coefficient ("peak"), then a second pass bisects the sum,
// exactly as conda's minimize() does it, so that no single very heavy term
// dominates the result in a way a plain sum-bisection would miss.
func Minimize(c *sat.Clauses, be backend.Backend, objective Objective, bestSol []sat.Literal, trymax int) []sat.Literal {
	if len(objective) == 0 {
		return bestSol
	}

	best := bestSol
	bestSum := objective.sum(assignMap(best))

	peak := objective.maxCoeff()
	if peak > 1 {
		best = bisectPeak(c, be, objective, best, trymax)
		bestSum = objective.sum(assignMap(best))
		am := assignMap(best)
		peak = 0
		for _, t := range objective {
			if am[t.Lit.Var()] == (t.Lit > 0) && t.Coeff > peak {
				peak = t.Coeff
			}
		}
	}

	lo, hi := int64(0), bestSum
	for try := 0; try < trymax && lo < hi; try++ {
		mid := lo + (hi-lo)/2
		cp := c.Save()
		for _, t := range objective {
			if t.Coeff > peak {
				c.Prevent(t.Lit)
			}
		}
		bound := c.LinearBound(objective, 0, mid)
		c.Require(bound)

		m := int32(0)
		for _, cl := range c.Clauses() {
			for _, l := range cl {
				if v := l.Var(); v > m {
					m = v
				}
			}
		}
		if assign, ok := be.Run(m, c.Clauses(), 0); ok {
			best = assign
			bestSum = objective.sum(assignMap(assign))
			hi = bestSum
		} else {
			lo = mid + 1
		}
		c.Restore(cp)
	}
	_ = bestSum
	return best
}

// bisectPeak bisects the maximum per-term coefficient that may be selected,
// the "peak" pass of conda's two-pass minimizer.
func bisectPeak(c *sat.Clauses, be backend.Backend, objective Objective, best []sat.Literal, trymax int) []sat.Literal {
	lo, hi := int64(0), objective.maxCoeff()
	for try := 0; try < trymax && lo < hi; try++ {
		mid := lo + (hi-lo)/2
		cp := c.Save()
		ok := true
		for _, t := range objective {
			if t.Coeff > mid {
				c.Prevent(t.Lit)
			}
		}
		m := int32(0)
		for _, cl := range c.Clauses() {
			for _, l := range cl {
				if v := l.Var(); v > m {
					m = v
				}
			}
		}
		assign, solved := be.Run(m, c.Clauses(), 0)
		if solved {
			best = assign
			hi = mid
		} else {
			ok = false
			lo = mid + 1
		}
		c.Restore(cp)
		_ = ok
	}
	return best
}
