// Package resolver builds and solves the SAT problem encoding conda's
// dependency resolution: one variable per candidate package, clauses for
// dependency/constrains/feature implications and channel-priority
// exclusion. Requested specs are hard constraints; six objective tiers are
// then minimized in order.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/internal/minimize"
	"github.com/conda-incubator/condacore/internal/sat"
	"github.com/conda-incubator/condacore/internal/sat/backend"
	"github.com/conda-incubator/condacore/matchspec"
)

var tracer = otel.Tracer("github.com/conda-incubator/condacore/resolver")

// Universe is the full candidate pool a Solve call chooses from.
type Universe struct {
	Candidates []*condacore.PackageRecord
	Installed  []*condacore.PackageRecord // the current prefix state ("history")
}

// Result is a successful solve's chosen package set.
type Result struct {
	Records []*condacore.PackageRecord
}

type pvar struct {
	rec *condacore.PackageRecord
	lit sat.Literal
}

// Solve resolves requested specs against u, returning the chosen records or
// a *condacore.UnsatisfiableError naming the minimal conflicting subset of
// requested specs.
func Solve(ctx context.Context, u Universe, requested []string, opt Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "resolver.Solve")
	defer span.End()

	if opt.Trymax == 0 {
		opt.Trymax = 30
	}

	var c sat.Clauses
	byName := make(map[condacore.NameKey][]pvar)
	for _, rec := range u.Candidates {
		v := pvar{rec: rec, lit: c.NewVar()}
		byName[rec.NameKey()] = append(byName[rec.NameKey()], v)
	}

	matchCandidates := func(spec matchspec.MatchSpec) []pvar {
		var out []pvar
		for _, vs := range byName {
			for _, v := range vs {
				if spec.Matches(v.rec) {
					out = append(out, v)
				}
			}
		}
		return out
	}

	// One-variant-per-name.
	for _, vs := range byName {
		lits := make([]sat.Literal, len(vs))
		for i, v := range vs {
			lits[i] = v.lit
		}
		c.Require(c.AtMostOne(lits...))
	}

	// Dependencies and constrains.
	for _, vs := range byName {
		for _, v := range vs {
			for _, dep := range v.rec.Depends {
				spec, err := matchspec.Parse(dep)
				if err != nil {
					continue
				}
				cands := matchCandidates(spec)
				lits := make([]sat.Literal, len(cands))
				for i, cv := range cands {
					lits[i] = cv.lit
				}
				c.Require(c.Or(c.Not(v.lit), c.Any(lits...)))
			}
			for _, constrain := range v.rec.Constrains {
				spec, err := matchspec.Parse(constrain)
				if err != nil {
					continue
				}
				named := byName[condacore.NameKey{Channel: v.rec.NameKey().Channel, Subdir: v.rec.NameKey().Subdir, Name: spec.Name}]
				var namedLits []sat.Literal
				for _, nv := range named {
					namedLits = append(namedLits, nv.lit)
				}
				if len(namedLits) == 0 {
					continue
				}
				anyNamed := c.Any(namedLits...)
				cands := matchCandidates(spec)
				lits := make([]sat.Literal, len(cands))
				for i, cv := range cands {
					lits[i] = cv.lit
				}
				c.Require(c.Or(c.Not(c.And(v.lit, anyNamed)), c.Any(lits...)))
			}
		}
	}

	// Strict channel priority: within a name, a lower-priority channel's
	// candidate may only be selected if no higher-priority candidate for
	// that same name could be.
	if opt.ChannelPriority == ChannelPriorityStrict {
		for _, vs := range byName {
			byChannel := map[string][]pvar{}
			var order []string
			for _, v := range vs {
				ch := v.rec.Channel.Canonical
				if _, ok := byChannel[ch]; !ok {
					order = append(order, ch)
				}
				byChannel[ch] = append(byChannel[ch], v)
			}
			for i := 1; i < len(order); i++ {
				var higher []sat.Literal
				for _, ch := range order[:i] {
					for _, v := range byChannel[ch] {
						higher = append(higher, v.lit)
					}
				}
				anyHigher := c.Any(higher...)
				for _, v := range byChannel[order[i]] {
					c.Require(c.Or(c.Not(v.lit), c.Not(anyHigher)))
				}
			}
		}
	}

	// Features: any selected record with a required feature implies some
	// selected record advertises it via track_features.
	featureProviders := map[string][]sat.Literal{}
	for _, vs := range byName {
		for _, v := range vs {
			for _, f := range v.rec.TrackFeatures {
				featureProviders[f] = append(featureProviders[f], v.lit)
			}
		}
	}
	for _, vs := range byName {
		for _, v := range vs {
			for _, f := range v.rec.Features {
				providers := featureProviders[f]
				c.Require(c.Or(c.Not(v.lit), c.Any(providers...)))
			}
		}
	}

	// Requested specs must be satisfiable.
	reqLits := make([]sat.Literal, 0, len(requested))
	specByLit := map[sat.Literal]string{}
	for _, spec := range requested {
		ms, err := matchspec.Parse(spec)
		if err != nil {
			return nil, &condacore.Error{Kind: condacore.ErrInvalid, Op: condacore.OpArgument, Message: err.Error()}
		}
		cands := matchCandidates(ms)
		if len(cands) == 0 {
			// No candidate can ever satisfy this spec: Any() of an empty
			// slice folds to False, and Require(False) would push a unit
			// clause over the sentinel variable into the store, blowing up
			// the DPLL backend's m+1 allocation on an input that is really
			// just a clean unsat. Report it directly instead.
			return nil, &condacore.UnsatisfiableError{Specs: []string{spec}}
		}
		lits := make([]sat.Literal, len(cands))
		for i, cv := range cands {
			lits[i] = cv.lit
		}
		any := c.Any(lits...)
		reqLits = append(reqLits, any)
		specByLit[any] = spec
	}
	reqBase := c.Save()
	for _, l := range reqLits {
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
	be := backend.DPLL{}
	assign, ok := be.Run(m, c.Clauses(), 0)
	if !ok {
		c.Restore(reqBase)
		core := minimize.MinimalUnsatSubset(reqLits, minimize.NewClauseStoreSatFunc(&c, be))
		names := make([]string, len(core))
		for i, l := range core {
			names[i] = specByLit[l]
		}
		return nil, &condacore.UnsatisfiableError{Specs: names}
	}

	assign = applyObjectives(&c, be, byName, u.Installed, assign, opt)

	var chosen []*condacore.PackageRecord
	selected := map[int32]bool{}
	for _, l := range assign {
		if l > 0 {
			selected[int32(l)] = true
		}
	}
	for _, vs := range byName {
		for _, v := range vs {
			if selected[int32(v.lit)] {
				chosen = append(chosen, v.rec)
			}
		}
	}
	sort.Slice(chosen, func(i, j int) bool { return chosen[i].DistString() < chosen[j].DistString() })
	return &Result{Records: chosen}, nil
}

// applyObjectives runs the six objective tiers (tiers 2-7; tier 1, the
// requested specs, is enforced by Solve as hard clauses) in order, feeding
// each tier's result forward as the starting point for the next and pinning
// that tier's optimum in the clause store so later tiers cannot trade it away.
func applyObjectives(c *sat.Clauses, be backend.Backend, byName map[condacore.NameKey][]pvar, installed []*condacore.PackageRecord, assign []sat.Literal, opt Options) []sat.Literal {
	installedKeys := map[condacore.Key]bool{}
	installedFeatures := map[string]bool{}
	for _, rec := range installed {
		installedKeys[rec.Key()] = true
		for _, f := range rec.TrackFeatures {
			installedFeatures[f] = true
		}
	}

	// Tier 2: minimise track-features removed from the installed state.
	// For every feature the prior state advertised, penalise any
	// assignment where no selected candidate still provides it.
	featureProviders := map[string][]sat.Literal{}
	for _, vs := range byName {
		for _, v := range vs {
			for _, f := range v.rec.TrackFeatures {
				featureProviders[f] = append(featureProviders[f], v.lit)
			}
		}
	}
	featureNames := make([]string, 0, len(installedFeatures))
	for f := range installedFeatures {
		featureNames = append(featureNames, f)
	}
	sort.Strings(featureNames)
	var featureRemovalObjective minimize.Objective
	for _, f := range featureNames {
		removed := c.Not(c.Any(featureProviders[f]...))
		featureRemovalObjective = append(featureRemovalObjective, sat.Term{Coeff: 1, Lit: removed})
	}

	// Tier 3: prefer latest version. Tier 4: prefer latest build number.
	var versionObjective minimize.Objective
	var buildObjective minimize.Objective
	// Tier 5: channel-priority coefficient, flexible mode only. Channels
	// are ranked by order of first appearance among a name's candidates,
	// the same ordering strict mode uses for its hard exclusion clauses;
	// candidates from a later-ranked channel cost more.
	var channelObjective minimize.Objective
	var notInPriorObjective minimize.Objective
	var totalCountObjective minimize.Objective

	for _, vs := range byName {
		sorted := append([]pvar(nil), vs...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].rec.Version.Less(sorted[j].rec.Version) })
		for i, v := range sorted {
			// Coefficient = index in reverse-version-sort: the newest
			// version gets coefficient 0 (free), older versions cost more.
			coeff := int64(len(sorted) - 1 - i)
			versionObjective = append(versionObjective, sat.Term{Coeff: coeff, Lit: v.lit})
			buildCoeff := int64(1000 - v.rec.BuildNumber)
			if buildCoeff < 0 {
				buildCoeff = 0
			}
			buildObjective = append(buildObjective, sat.Term{Coeff: buildCoeff, Lit: v.lit})
			if !installedKeys[v.rec.Key()] {
				notInPriorObjective = append(notInPriorObjective, sat.Term{Coeff: 1, Lit: v.lit})
			}
			totalCountObjective = append(totalCountObjective, sat.Term{Coeff: 1, Lit: v.lit})
		}

		if opt.ChannelPriority == ChannelPriorityFlexible {
			var order []string
			rank := map[string]int64{}
			for _, v := range vs {
				ch := v.rec.Channel.Canonical
				if _, ok := rank[ch]; !ok {
					rank[ch] = int64(len(order))
					order = append(order, ch)
				}
			}
			for _, v := range vs {
				channelObjective = append(channelObjective, sat.Term{Coeff: rank[v.rec.Channel.Canonical], Lit: v.lit})
			}
		}
	}

	tiers := []minimize.Objective{featureRemovalObjective, versionObjective, buildObjective, channelObjective, notInPriorObjective, totalCountObjective}
	for _, obj := range tiers {
		if len(obj) == 0 {
			continue
		}
		assign = minimize.Minimize(c, be, obj, assign, opt.Trymax)
		selected := map[int32]bool{}
		for _, l := range assign {
			selected[l.Var()] = l > 0
		}
		var total int64
		for _, t := range obj {
			if selected[t.Lit.Var()] == (t.Lit > 0) {
				total += t.Coeff
			}
		}
		c.Require(c.LinearBound(obj, 0, total))
	}
	return assign
}

// String renders a Result for logging.
func (r *Result) String() string {
	return fmt.Sprintf("resolver.Result{%d records}", len(r.Records))
}
