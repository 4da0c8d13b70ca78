// Package backend implements pluggable SAT-solving backends for the sat
// clause store, mirroring conda's pluggable SatSolver (pycosat/pycryptosat/
// pysat) adapter shape: one small interface, one concrete implementation
// selected by the caller.
package backend

import "github.com/conda-incubator/condacore/internal/sat"

// Backend solves a CNF instance over m variables, returning a satisfying
// assignment (one literal per variable, in variable order, signed by
// truth value) and whether one was found. limit, if positive, caps the
// solver's propagation budget and is treated as a best-effort governor,
// not an exactness guarantee; exceeding it yields ok=false.
type Backend interface {
	Run(m int32, clauses []sat.Clause, limit int) (assignment []sat.Literal, ok bool)
}

// DPLL is a plain recursive DPLL backend: unit propagation plus chronological
// backtracking over a deterministic (lowest unassigned variable first)
// branching order, so repeated solves of the same instance return the same
// model. It does not do watched-literal propagation, pure-literal
// elimination, or clause learning; callers needing those for scale should
// implement Backend with a real CDCL solver. There is no other Go SAT solver
// in this codebase's dependency surface to delegate to; see the DESIGN.md
// entry for internal/sat/backend.
type DPLL struct{}

type value int8

const (
	unset value = iota
	isTrue
	isFalse
)

func litValue(l sat.Literal, assign []value) value {
	v := assign[l.Var()]
	if v == unset {
		return unset
	}
	if l < 0 {
		if v == isTrue {
			return isFalse
		}
		return isTrue
	}
	return v
}

// Run implements Backend.
func (DPLL) Run(m int32, clauses []sat.Clause, limit int) ([]sat.Literal, bool) {
	assign := make([]value, m+1)
	trail := make([]int32, 0, m)

	var propagate func() bool
	propagate = func() bool {
		changed := true
		for changed {
			changed = false
			for _, cl := range clauses {
				unassignedCount := 0
				var unassignedLit sat.Literal
				satisfied := false
				for _, lit := range cl {
					switch litValue(lit, assign) {
					case isTrue:
						satisfied = true
					case unset:
						unassignedCount++
						unassignedLit = lit
					}
				}
				if satisfied {
					continue
				}
				if unassignedCount == 0 {
					return false // conflict: every literal false
				}
				if unassignedCount == 1 {
					v := unassignedLit.Var()
					if unassignedLit < 0 {
						assign[v] = isFalse
					} else {
						assign[v] = isTrue
					}
					trail = append(trail, v)
					changed = true
				}
			}
		}
		return true
	}

	var solve func() bool
	steps := 0
	solve = func() bool {
		if limit > 0 {
			steps++
			if steps > limit {
				return false
			}
		}
		trailMark := len(trail)
		if !propagate() {
			for len(trail) > trailMark {
				v := trail[len(trail)-1]
				trail = trail[:len(trail)-1]
				assign[v] = unset
			}
			return false
		}

		var next int32 = -1
		for v := int32(1); v <= m; v++ {
			if assign[v] == unset {
				next = v
				break
			}
		}
		if next == -1 {
			return true // total assignment found
		}

		for _, tryTrue := range []bool{true, false} {
			if tryTrue {
				assign[next] = isTrue
			} else {
				assign[next] = isFalse
			}
			trail = append(trail, next)
			if solve() {
				return true
			}
			trail = trail[:len(trail)-1]
			assign[next] = unset
		}
		for len(trail) > trailMark {
			v := trail[len(trail)-1]
			trail = trail[:len(trail)-1]
			assign[v] = unset
		}
		return false
	}

	if !solve() {
		return nil, false
	}

	out := make([]sat.Literal, m)
	for v := int32(1); v <= m; v++ {
		if assign[v] == isFalse {
			out[v-1] = -sat.Literal(v)
		} else {
			out[v-1] = sat.Literal(v)
		}
	}
	return out, true
}
