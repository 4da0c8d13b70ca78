// Package sat implements a CNF clause store and a small boolean-logic
// frontend (And/Or/Xor/ITE/AtMostOne/ExactlyOne/LinearBound) compiled down
// to clauses via Tseitin-style auxiliary variables, following the
// pycosat-backed solver in conda's dependency resolver.
package sat

import "fmt"

// Literal is a signed variable reference: positive selects the variable
// true, negative selects it false. Variable 0 is never used, matching
// DIMACS CNF convention.
type Literal int32

// Negate returns the complementary literal.
func (l Literal) Negate() Literal { return -l }

// Var returns the (always positive) variable number underlying l.
func (l Literal) Var() int32 {
	if l < 0 {
		return int32(-l)
	}
	return int32(l)
}

// sentinel truth values, large enough never to collide with a real
// variable index.
const sentinel = Literal(1 << 30)

// True and False are constant literals usable anywhere a Literal is
// expected; they fold out of every combinator below.
const (
	True  = sentinel
	False = -sentinel
)

// Clause is a disjunction of literals.
type Clause []Literal

// Clauses is the append-only CNF clause store plus a names/indices
// registry mapping problem-domain names (e.g. "numpy-1.24.0-0") to
// variables, and the combinator frontend building on it.
//
// The zero Clauses is ready to use.
type Clauses struct {
	store   []Clause
	names   map[string]Literal
	indices map[Literal]string
	nvars   int32
}

// NumVars returns the number of variables allocated so far.
func (c *Clauses) NumVars() int32 { return c.nvars }

// Clauses returns the accumulated clause store. The caller must not modify
// the returned slice.
func (c *Clauses) Clauses() []Clause { return c.store }

// NewVar allocates a fresh, unnamed variable.
func (c *Clauses) NewVar() Literal {
	c.nvars++
	return Literal(c.nvars)
}

// NameVar returns the variable for name, allocating one if name has not
// been seen before.
func (c *Clauses) NameVar(name string) Literal {
	if c.names == nil {
		c.names = make(map[string]Literal)
		c.indices = make(map[Literal]string)
	}
	if v, ok := c.names[name]; ok {
		return v
	}
	v := c.NewVar()
	c.names[name] = v
	c.indices[v] = name
	return v
}

// Name returns the name registered for literal l's variable, or "" if
// none was registered (an auxiliary Tseitin variable).
func (c *Clauses) Name(l Literal) string {
	return c.indices[Literal(l.Var())]
}

// AddClause appends lits as a single clause. True/False literals are not
// special-cased here; callers are expected to have simplified via the
// combinators below before calling AddClause directly.
func (c *Clauses) AddClause(lits ...Literal) {
	cl := make(Clause, len(lits))
	copy(cl, lits)
	c.store = append(c.store, cl)
}

// AddClauses appends each clause in cls.
func (c *Clauses) AddClauses(cls ...Clause) {
	c.store = append(c.store, cls...)
}

// Require adds a unit clause asserting lit is true.
func (c *Clauses) Require(lit Literal) {
	if lit == True {
		return
	}
	c.AddClause(lit)
}

// Prevent adds a unit clause asserting lit is false.
func (c *Clauses) Prevent(lit Literal) {
	c.Require(-lit)
}

// Checkpoint is an opaque marker returned by [Clauses.Save] for later
// [Clauses.Restore], the clause-store analogue of conda's
// ClauseList.save_state/restore_state used to try-and-discard bisection
// midpoints and unsat-core growth attempts.
type Checkpoint struct {
	clauses int
	vars    int32
}

// Save returns a checkpoint of the current store size.
func (c *Clauses) Save() Checkpoint {
	return Checkpoint{clauses: len(c.store), vars: c.nvars}
}

// Restore truncates the store back to cp, discarding every clause and
// variable added since. Names registered for discarded variables are left
// in place but point at variables no longer constrained; callers that
// rely on Restore should not reuse those names afterward.
func (c *Clauses) Restore(cp Checkpoint) {
	c.store = c.store[:cp.clauses]
	c.nvars = cp.vars
}

func (c *Clauses) String() string {
	return fmt.Sprintf("sat.Clauses{vars=%d, clauses=%d}", c.nvars, len(c.store))
}
