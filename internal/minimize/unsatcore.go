package minimize

import (
	"github.com/conda-incubator/condacore/internal/sat"
	"github.com/conda-incubator/condacore/internal/sat/backend"
)

// SatFunc reports whether adding the given extra unit clauses (on top of
// whatever is already required in the clause store) is satisfiable.
type SatFunc func(extra []sat.Literal) bool

// MinimalUnsatSubset returns a minimal subset of the literals in specs that
// is unsatisfiable together with whatever is already
// required, ported from conda's minimal_unsatisfiable_subset: start from
// the full set (known unsatisfiable), then repeatedly try dropping each
// remaining spec and keep the drop only if the remainder is still
// unsatisfiable, converging to a set where every member is necessary.
func MinimalUnsatSubset(specs []sat.Literal, sat_ SatFunc) []sat.Literal {
	if sat_(specs) {
		return nil // satisfiable; no core to report
	}

	remaining := append([]sat.Literal(nil), specs...)
	for i := 0; i < len(remaining); {
		trial := make([]sat.Literal, 0, len(remaining)-1)
		trial = append(trial, remaining[:i]...)
		trial = append(trial, remaining[i+1:]...)
		if sat_(trial) {
			// remaining[i] is necessary for unsatisfiability; keep it and
			// move on.
			i++
			continue
		}
		// remaining[i] was not needed; drop it and re-examine the same
		// index, now pointing at the next candidate.
		remaining = trial
	}
	return remaining
}

// NewClauseStoreSatFunc builds a SatFunc backed by a snapshotted clause
// store: each call restores to the snapshot, requires the extra unit
// literals, and asks be whether the result is satisfiable.
func NewClauseStoreSatFunc(c *sat.Clauses, be backend.Backend) SatFunc {
	base := c.Save()
	return func(extra []sat.Literal) bool {
		defer c.Restore(base)
		for _, l := range extra {
			c.Require(l)
		}
		m := int32(0)
		for _, cl := range c.Clauses() {
			for _, l := range cl {
				if v := l.Var(); v > m {
					m = v
				}
			}
		}
		_, ok := be.Run(m, c.Clauses(), 0)
		return ok
	}
}
