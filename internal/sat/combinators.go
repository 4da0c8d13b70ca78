package sat

// This file ports the clause-generating combinators of conda's internal
// _Clauses class: each function either folds to a constant, reuses an
// existing literal, or allocates one auxiliary Tseitin variable and emits
// the clauses defining it in terms of its operands. The combinators take no
// polarity argument: both halves of every biconditional are always emitted.

// Not returns the logical negation of f. This never allocates.
func (c *Clauses) Not(f Literal) Literal {
	switch f {
	case True:
		return False
	case False:
		return True
	default:
		return -f
	}
}

// And returns a literal equivalent to f && g.
func (c *Clauses) And(f, g Literal) Literal {
	switch {
	case f == False || g == False:
		return False
	case f == True:
		return g
	case g == True:
		return f
	case f == g:
		return f
	case f == -g:
		return False
	}
	x := c.NewVar()
	c.AddClause(-x, f)
	c.AddClause(-x, g)
	c.AddClause(x, -f, -g)
	return x
}

// Or returns a literal equivalent to f || g.
func (c *Clauses) Or(f, g Literal) Literal {
	switch {
	case f == True || g == True:
		return True
	case f == False:
		return g
	case g == False:
		return f
	case f == g:
		return f
	case f == -g:
		return True
	}
	x := c.NewVar()
	c.AddClause(x, -f)
	c.AddClause(x, -g)
	c.AddClause(-x, f, g)
	return x
}

// Xor returns a literal equivalent to f != g.
func (c *Clauses) Xor(f, g Literal) Literal {
	switch {
	case f == False:
		return g
	case f == True:
		return c.Not(g)
	case g == False:
		return f
	case g == True:
		return c.Not(f)
	case f == g:
		return False
	case f == -g:
		return True
	}
	x := c.NewVar()
	c.AddClause(-x, f, g)
	c.AddClause(-x, -f, -g)
	c.AddClause(x, -f, g)
	c.AddClause(x, f, -g)
	return x
}

// ITE returns a literal equivalent to "if cond then t else e".
func (c *Clauses) ITE(cond, t, e Literal) Literal {
	switch {
	case cond == True:
		return t
	case cond == False:
		return e
	case t == e:
		return t
	case t == True && e == False:
		return cond
	case t == False && e == True:
		return c.Not(cond)
	case t == True:
		return c.Or(cond, e)
	case t == False:
		return c.And(c.Not(cond), e)
	case e == True:
		return c.Or(c.Not(cond), t)
	case e == False:
		return c.And(cond, t)
	}
	x := c.NewVar()
	c.AddClause(-x, -cond, t)
	c.AddClause(-x, cond, e)
	c.AddClause(x, -cond, -t)
	c.AddClause(x, cond, -e)
	return x
}

// All returns a literal true iff every literal in fs is true.
func (c *Clauses) All(fs ...Literal) Literal {
	acc := True
	for _, f := range fs {
		acc = c.And(acc, f)
	}
	return acc
}

// Any returns a literal true iff at least one literal in fs is true.
func (c *Clauses) Any(fs ...Literal) Literal {
	acc := False
	for _, f := range fs {
		acc = c.Or(acc, f)
	}
	return acc
}

// AtMostOne returns a literal true iff at most one of fs is true. For small
// fs (fewer than five) a direct pairwise-exclusion (NSQ) encoding is used;
// larger sets fall back to LinearBound's BDD encoding over unit
// coefficients (sum(fs) <= 1), matching conda's size threshold for
// switching encodings. Both paths return a real literal biconditional with
// fs, not just a side effect on the store, so the result composes correctly
// under negation or nesting.
func (c *Clauses) AtMostOne(fs ...Literal) Literal {
	if len(fs) < 5 {
		return c.atMostOneNSQ(fs)
	}
	return c.LinearBound(unitTerms(fs), 0, 1)
}

func (c *Clauses) atMostOneNSQ(fs []Literal) Literal {
	ok := True
	for i := 0; i < len(fs); i++ {
		for j := i + 1; j < len(fs); j++ {
			ok = c.And(ok, c.Or(c.Not(fs[i]), c.Not(fs[j])))
		}
	}
	return ok
}

func unitTerms(fs []Literal) []Term {
	terms := make([]Term, len(fs))
	for i, f := range fs {
		terms[i] = Term{Coeff: 1, Lit: f}
	}
	return terms
}

// ExactlyOne returns a literal true iff exactly one of fs is true. Like
// AtMostOne, large fs are routed through LinearBound (sum(fs) == 1) rather
// than composed from smaller combinators, matching conda's encoding choice.
func (c *Clauses) ExactlyOne(fs ...Literal) Literal {
	if len(fs) < 2 {
		return c.And(c.AtMostOne(fs...), c.Any(fs...))
	}
	return c.LinearBound(unitTerms(fs), 1, 1)
}
