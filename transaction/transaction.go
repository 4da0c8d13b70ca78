// Package transaction implements the atomic, reversible link/unlink
// transaction that installs a solved set of package changes into a prefix,
// grounded on UnlinkLinkTransaction.
package transaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/quay/zlog"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/action"
	"github.com/conda-incubator/condacore/internal/baggageutil"
	"github.com/conda-incubator/condacore/locksource"
)

var tracer = otel.Tracer("github.com/conda-incubator/condacore/transaction")

// PrefixSetup names one prefix's unlink/link plan: the packages to remove,
// the packages to add, and the specs that drove the solve (kept for
// conda-meta/history bookkeeping and for the change report).
type PrefixSetup struct {
	TargetPrefix string

	UnlinkPrecs []*condacore.PackageRecord
	LinkPrecs   []*condacore.PackageRecord

	RemoveSpecs   []string
	UpdateSpecs   []string
	NeuteredSpecs []string

	// Installed is the prefix's full linked-package set as loaded from
	// PrefixData before this setup's changes are applied, used by Verify's
	// per-prefix clobber detection to know which on-disk paths already
	// belong to a package that is not being unlinked.
	Installed []*condacore.PrefixRecord
}

// bucket is the execution-order grouping of an ActionGroup, mirroring
// UnlinkLinkTransaction's action "type" field. Values are explicit rather
// than iota so bucketRecord and bucketCompile can share one value: spec.md
// §4.8 Execute runs "record and compile (aggregated) in parallel", and
// groupsInBucket selects every group whose Bucket equals a given value, so
// two differently-named buckets at the same int run together without any
// special-cased concurrency code.
type bucket int

const (
	bucketInitial         bucket = 0
	bucketRemoveMenu      bucket = 1
	bucketUnlink          bucket = 2
	bucketPreUnlinkScript bucket = 3
	bucketUnregister      bucket = 4
	bucketPreLinkScript   bucket = 5
	bucketLink            bucket = 6
	bucketEntryPoint      bucket = 7
	bucketPostLinkScript  bucket = 8
	bucketRecord          bucket = 9
	bucketCompile         bucket = 9
	bucketRegister        bucket = 10
	bucketMakeMenu        bucket = 11
	bucketFinal           bucket = 12
)

// ActionGroup is one package's worth of actions within one bucket, executed
// together and reversed together on rollback.
type ActionGroup struct {
	Bucket       bucket
	PkgData      *condacore.PackageRecord
	Actions      []action.Action
	TargetPrefix string
}

func (g ActionGroup) verify(ctx context.Context) error {
	for _, a := range g.Actions {
		if err := a.Verify(ctx); err != nil {
			return fmt.Errorf("%s: %w", g.TargetPrefix, err)
		}
	}
	return nil
}

func (g ActionGroup) execute(ctx context.Context) error {
	for i, a := range g.Actions {
		if err := a.Execute(ctx); err != nil {
			g.reverse(ctx, i)
			return fmt.Errorf("%s: %w", g.TargetPrefix, err)
		}
	}
	return nil
}

// reverse undoes actions [0, upTo) in reverse order; upTo < 0 means "all".
func (g ActionGroup) reverse(ctx context.Context, upTo int) {
	if upTo < 0 {
		upTo = len(g.Actions)
	}
	for i := upTo - 1; i >= 0; i-- {
		if err := g.Actions[i].Reverse(ctx); err != nil {
			zlog.Warn(ctx).Err(err).Msg("error reversing action")
		}
	}
}

func (g ActionGroup) cleanup(ctx context.Context) {
	for _, a := range g.Actions {
		a.Cleanup(ctx)
	}
}

// ChangeReport summarizes one prefix's before/after package set, the
// conda-style categorization used for `conda install`'s printed plan.
type ChangeReport struct {
	Prefix string

	SpecsToRemove []string
	SpecsToAdd    []string

	Removed    []*condacore.PackageRecord
	New        []*condacore.PackageRecord
	Updated    []*condacore.PackageRecord
	Downgraded []*condacore.PackageRecord
	// Revised holds same-version, different-build-variant replacements
	// within the same channel/subdir (e.g. a rebuild with a different
	// python-ABI tag), distinct from Downgraded.
	Revised []*condacore.PackageRecord
	// Superseded holds replacements that moved to a different channel or
	// subdir without a version or build-number increase (an increase is
	// reported under Updated whatever the channel).
	Superseded []*condacore.PackageRecord
}

// CalculateChangeReport diffs a prefix's unlink/link sets into new, removed,
// updated, downgraded, revised, and superseded buckets, grounded on
// _calculate_change_report in core/link.py: a version or build-number
// increase is reported as updated whatever the channel; otherwise same
// channel+subdir replacements are downgraded or revised, and a channel or
// subdir change is reported as superseded.
func CalculateChangeReport(setup PrefixSetup) ChangeReport {
	byName := func(recs []*condacore.PackageRecord) map[string]*condacore.PackageRecord {
		m := make(map[string]*condacore.PackageRecord, len(recs))
		for _, r := range recs {
			m[r.Name] = r
		}
		return m
	}
	unlinkByName := byName(setup.UnlinkPrecs)
	linkByName := byName(setup.LinkPrecs)

	report := ChangeReport{
		Prefix:        setup.TargetPrefix,
		SpecsToRemove: setup.RemoveSpecs,
		SpecsToAdd:    setup.UpdateSpecs,
	}

	for name, lp := range linkByName {
		up, existed := unlinkByName[name]
		if !existed {
			report.New = append(report.New, lp)
			continue
		}

		vcmp := lp.Version.Compare(up.Version)
		buildIncreases := lp.BuildNumber > up.BuildNumber
		switch {
		case (vcmp == 0 && buildIncreases) || vcmp > 0:
			report.Updated = append(report.Updated, lp)
		case lp.Channel.Canonical == up.Channel.Canonical && lp.Subdir == up.Subdir:
			switch {
			case vcmp == 0 && lp.BuildNumber == up.BuildNumber && lp.Build == up.Build:
				// Identical record, e.g. noarch:python relinked after the
				// prefix's python version changed; not reported.
			case vcmp == 0 && lp.Build != up.Build:
				report.Revised = append(report.Revised, lp)
			default:
				report.Downgraded = append(report.Downgraded, lp)
			}
		default:
			report.Superseded = append(report.Superseded, lp)
		}
	}
	for name, up := range unlinkByName {
		if _, stillPresent := linkByName[name]; !stillPresent {
			report.Removed = append(report.Removed, up)
		}
	}
	return report
}

// Options configures a Transaction's concurrency, locking, and
// transaction-level verification policy.
type Options struct {
	VerifyConcurrency  int
	ExecuteConcurrency int
	Lock               locksource.ContextLock // defaults to locksource.Local

	// RootPrefix is the base install's prefix, used by verifyTransactionLevel
	// to locate the install that owns this process.
	RootPrefix string

	// AllowCachePostLinkScripts permits a package's pre-link script to run
	// despite its ability to modify the package cache itself. See
	// action.UnsafePostLinkScriptError.
	AllowCachePostLinkScripts bool

	// SelfPackageName is the name of the package that conda itself ships
	// as (e.g. "conda"). verifyTransactionLevel refuses a transaction that
	// would remove this package from RootPrefix without also linking a
	// replacement in the same transaction.
	SelfPackageName string

	// DisallowedPackages blocks a transaction from linking any package
	// whose name appears here.
	DisallowedPackages []string
}

// Transaction is one atomic unlink/link operation across one or more
// prefixes, grounded on UnlinkLinkTransaction: actions are grouped into
// ordered buckets, verified up front, executed bucket-by-bucket with each
// bucket's action groups run concurrently, and rolled back in reverse order
// if any bucket fails partway through.
type Transaction struct {
	opt    Options
	setups []PrefixSetup
	groups []ActionGroup // in bucket order; AddGroup populates this

	verified bool
	executed bool
}

// New creates a Transaction over the given prefix setups. Call AddGroup to
// populate its action groups (normally done by the caller that owns
// package extraction and prefix record construction), then Verify and
// Execute.
func New(opt Options, setups ...PrefixSetup) *Transaction {
	if opt.VerifyConcurrency <= 0 {
		opt.VerifyConcurrency = 4
	}
	if opt.ExecuteConcurrency <= 0 {
		opt.ExecuteConcurrency = 1 // link/unlink order matters within a prefix; callers add groups per-prefix as already-ordered
	}
	if opt.Lock == nil {
		opt.Lock = &locksource.Local{}
	}
	return &Transaction{opt: opt, setups: setups}
}

// AddGroup appends one action group to the transaction's plan. Groups are
// executed in Bucket order, each bucket's groups run concurrently with one
// another.
func (t *Transaction) AddGroup(g ActionGroup) {
	t.groups = append(t.groups, g)
}

// NothingToDo reports whether every prefix setup is an empty no-op.
func (t *Transaction) NothingToDo() bool {
	for _, s := range t.setups {
		if len(s.UnlinkPrecs) > 0 || len(s.LinkPrecs) > 0 {
			return false
		}
	}
	return true
}

func (t *Transaction) groupsInBucket(b bucket) []ActionGroup {
	var out []ActionGroup
	for _, g := range t.groups {
		if g.Bucket == b {
			out = append(out, g)
		}
	}
	return out
}

// Verify checks every layer's preconditions before any Execute runs: first
// transaction-level rules (RemoveSelf, DisallowedPackage, conda-meta/history
// writability), then per-prefix path-collision detection, then each action
// group's own Verify. Failures from every layer are aggregated rather than
// stopping at the first, so a permission or checksum failure is caught
// without having partially mutated any prefix.
func (t *Transaction) Verify(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "transaction.Transaction.Verify")
	defer span.End()

	var errs []error
	appendLayer := func(err error) {
		if err == nil {
			return
		}
		if merr, ok := err.(*condacore.CondaMultiError); ok {
			errs = append(errs, merr.Errs...)
			return
		}
		errs = append(errs, err)
	}

	appendLayer(t.verifyTransactionLevel())
	appendLayer(t.verifyPerPrefix())

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(t.opt.VerifyConcurrency)
	for _, g := range t.groups {
		g := g
		grp.Go(func() error { return g.verify(gctx) })
	}
	appendLayer(grp.Wait())

	switch len(errs) {
	case 0:
		t.verified = true
		return nil
	case 1:
		return errs[0]
	default:
		return &condacore.CondaMultiError{Errs: errs}
	}
}

// verifyTransactionLevel checks rules that span an entire prefix setup
// rather than any single action: refusing to remove conda's own package
// from its root prefix without a replacement in the same transaction,
// refusing to link a disallowed package, and requiring conda-meta/history
// to be writable.
func (t *Transaction) verifyTransactionLevel() error {
	var errs []error
	for _, setup := range t.setups {
		linking := map[string]bool{}
		for _, lp := range setup.LinkPrecs {
			linking[lp.Name] = true
		}
		if t.opt.SelfPackageName != "" && setup.TargetPrefix == t.opt.RootPrefix {
			for _, up := range setup.UnlinkPrecs {
				if up.Name == t.opt.SelfPackageName && !linking[up.Name] {
					errs = append(errs, &condacore.Error{
						Kind:    condacore.ErrPermanent,
						Op:      condacore.OpRemoveSelf,
						Message: "refusing to remove " + t.opt.SelfPackageName + " from its own root prefix without a replacement",
					})
				}
			}
		}
		for _, lp := range setup.LinkPrecs {
			for _, disallowed := range t.opt.DisallowedPackages {
				if lp.Name == disallowed {
					errs = append(errs, &condacore.Error{
						Kind:    condacore.ErrPermanent,
						Op:      condacore.OpDisallowedPackage,
						Message: lp.Name + " is disallowed",
					})
				}
			}
		}

		// Only an already-existing prefix is checked here: a brand new
		// prefix hasn't been created yet at Verify time (that's Prepare's
		// job), so there is nothing to check writability of.
		if _, err := os.Stat(setup.TargetPrefix); err == nil {
			historyPath := filepath.Join(setup.TargetPrefix, "conda-meta", "history")
			if err := checkWritable(historyPath); err != nil {
				errs = append(errs, &condacore.Error{
					Kind:    condacore.ErrPrecondition,
					Op:      condacore.OpNotWritable,
					Message: "conda-meta/history not writable in " + setup.TargetPrefix,
					Inner:   err,
				})
			}
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &condacore.CondaMultiError{Errs: errs}
	}
}

func checkWritable(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// normalizeLinkPath canonicalizes a prefix-relative path for collision
// comparison: forward slashes everywhere, lowercased on the
// case-insensitive-by-default filesystems (Windows, macOS).
func normalizeLinkPath(p string) string {
	p = filepath.ToSlash(p)
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		p = strings.ToLower(p)
	}
	return p
}

// verifyPerPrefix detects path collisions within one prefix: a link action
// writing a path already owned by an installed package that isn't being
// unlinked (KnownPackageClobber), a link action writing a path that exists
// on disk but isn't tracked by any known package (UnknownPackageClobber),
// and two link actions in the same transaction both writing the same path
// (SharedLinkPathClobber).
func (t *Transaction) verifyPerPrefix() error {
	var errs []error
	for _, setup := range t.setups {
		unlinkNames := map[string]bool{}
		for _, up := range setup.UnlinkPrecs {
			unlinkNames[up.Name] = true
		}
		existingPaths := map[string]string{}
		for _, pr := range setup.Installed {
			if unlinkNames[pr.Name] {
				continue
			}
			for _, f := range pr.Files {
				existingPaths[normalizeLinkPath(f)] = pr.Name
			}
			for _, p := range pr.PathsData {
				existingPaths[normalizeLinkPath(p.Path)] = pr.Name
			}
		}

		sharedPaths := map[string]string{}
		for _, g := range t.groups {
			if g.TargetPrefix != setup.TargetPrefix || g.Bucket != bucketLink {
				continue
			}
			pkgName := ""
			if g.PkgData != nil {
				pkgName = g.PkgData.Name
			}
			for _, act := range g.Actions {
				lp, ok := act.(*action.LinkPath)
				if !ok {
					continue
				}
				rel := lp.DestRelPath
				if rel == "" {
					rel = lp.RelPath
				}
				norm := normalizeLinkPath(rel)

				if owner, known := existingPaths[norm]; known {
					errs = append(errs, &condacore.Error{
						Kind:    condacore.ErrConflict,
						Op:      condacore.OpKnownPackageClobber,
						Message: pkgName + " would overwrite " + rel + " owned by " + owner,
					})
					continue
				}
				if prior, claimed := sharedPaths[norm]; claimed && prior != pkgName {
					errs = append(errs, &condacore.Error{
						Kind:    condacore.ErrConflict,
						Op:      condacore.OpSharedLinkPathClobber,
						Message: pkgName + " and " + prior + " both link " + rel,
					})
					continue
				}
				sharedPaths[norm] = pkgName

				if _, err := os.Stat(filepath.Join(lp.PrefixDir, rel)); err == nil {
					errs = append(errs, &condacore.Error{
						Kind:    condacore.ErrConflict,
						Op:      condacore.OpUnknownPackageClobber,
						Message: pkgName + " would overwrite untracked path " + rel,
					})
				}
			}
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &condacore.CondaMultiError{Errs: errs}
	}
}

// bucketOrder lists each distinct bucket value once, in Execute order.
// bucketRecord and bucketCompile share a value (see bucket's doc) so they
// appear here as a single entry and run concurrently.
var bucketOrder = []bucket{
	bucketInitial,
	bucketRemoveMenu,
	bucketUnlink,
	bucketPreUnlinkScript,
	bucketUnregister,
	bucketPreLinkScript,
	bucketLink,
	bucketEntryPoint,
	bucketPostLinkScript,
	bucketRecord, // == bucketCompile
	bucketRegister,
	bucketMakeMenu,
	bucketFinal,
}

// Execute runs every action group bucket-by-bucket: remove-menus, unlink,
// pre-unlink scripts, unregister, pre-link scripts, link, entry-points,
// post-link scripts, record and compile together, register, make-menus —
// matching the original's "uninstall side, then install side" ordering so
// an unlinked file's menu entry is gone before the file itself, and a
// linked file's entry point exists before its post-link script might use
// it. If any action fails, every action executed so far (across all
// buckets, most-recent-first) is reversed and the first error is returned.
func (t *Transaction) Execute(ctx context.Context) error {
	if !t.verified {
		if err := t.Verify(ctx); err != nil {
			return err
		}
	}
	ctx, span := tracer.Start(ctx, "transaction.Transaction.Execute")
	defer span.End()
	if len(t.setups) > 0 {
		ctx = baggageutil.ContextWithValues(ctx, "prefix", t.setups[0].TargetPrefix)
	}

	var lockCtx context.Context = ctx
	var unlock context.CancelFunc
	if t.opt.Lock != nil && len(t.setups) > 0 {
		lockCtx, unlock = t.opt.Lock.Lock(ctx, t.setups[0].TargetPrefix)
		defer unlock()
		ctx = lockCtx
	}

	var executedGroups []ActionGroup
	var failErr error

bucketLoop:
	for _, b := range bucketOrder {
		groups := t.groupsInBucket(b)
		if len(groups) == 0 {
			continue
		}
		grp, gctx := errgroup.WithContext(ctx)
		grp.SetLimit(t.opt.ExecuteConcurrency)
		var mu sync.Mutex
		var done []ActionGroup
		for _, g := range groups {
			g := g
			grp.Go(func() error {
				if err := g.execute(gctx); err != nil {
					return err
				}
				mu.Lock()
				done = append(done, g)
				mu.Unlock()
				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			executedGroups = append(executedGroups, done...)
			failErr = err
			break bucketLoop
		}
		executedGroups = append(executedGroups, groups...)
	}

	if failErr != nil {
		zlog.Error(ctx).Err(failErr).Msg("transaction failed, rolling back")
		for i := len(executedGroups) - 1; i >= 0; i-- {
			executedGroups[i].reverse(ctx, -1)
		}
		return &condacore.Error{Kind: condacore.ErrPermanent, Op: condacore.OpLinkError, Inner: failErr}
	}

	for _, g := range t.groups {
		g.cleanup(ctx)
	}
	t.executed = true
	return nil
}
