package resolver

import (
	"context"
	"errors"
	"testing"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/action"
	"github.com/conda-incubator/condacore/transaction"
)

// recCh is rec (resolver_test.go) plus an explicit channel, needed by the
// channel-supersede scenario where two candidates share a name across
// channels.
func recCh(name, ver, build string, buildNum int, channel string, deps ...string) *condacore.PackageRecord {
	r := rec(name, ver, build, buildNum, deps...)
	r.Channel = condacore.Channel{Canonical: channel}
	return r
}

// Scenario 1: fresh env, a single requested spec with three version
// candidates resolves to the newest.
func TestScenarioFreshEnv(t *testing.T) {
	u := Universe{
		Candidates: []*condacore.PackageRecord{
			rec("python", "3.10.0", "0", 0),
			rec("python", "3.11.0", "0", 0),
			rec("python", "3.11.1", "0", 0),
		},
	}
	res, err := Solve(context.Background(), u, []string{"python=3.11"}, Options{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Version.String() != "3.11.1" {
		t.Fatalf("expected python-3.11.1 selected, got %v", res.Records)
	}
}

// Scenario 2: two requested specs whose transitive dependencies on the
// same name conflict; the solver reports both as the unsat core.
func TestScenarioUnsatisfiable(t *testing.T) {
	u := Universe{
		Candidates: []*condacore.PackageRecord{
			rec("a", "1", "0", 0, "c>=2"),
			rec("b", "1", "0", 0, "c<2"),
			rec("c", "1", "0", 0),
			rec("c", "2", "0", 0),
		},
	}
	_, err := Solve(context.Background(), u, []string{"a=1", "b=1"}, Options{})
	if err == nil {
		t.Fatal("expected unsatisfiable error")
	}
	var unsat *condacore.UnsatisfiableError
	if !errors.As(err, &unsat) {
		t.Fatalf("expected *condacore.UnsatisfiableError, got %T: %v", err, err)
	}
}

// Scenario 3: an explicit downgrade request is honoured, and the change
// report categorizes it as Downgraded rather than Updated or Superseded.
func TestScenarioDowngrade(t *testing.T) {
	installed := recCh("x", "2", "0", 0, "main")
	u := Universe{
		Candidates: []*condacore.PackageRecord{
			recCh("x", "1", "0", 0, "main"),
			installed,
		},
		Installed: []*condacore.PackageRecord{installed},
	}
	res, err := Solve(context.Background(), u, []string{"x=1"}, Options{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Version.String() != "1" {
		t.Fatalf("expected x-1 selected, got %v", res.Records)
	}

	report := transaction.CalculateChangeReport(transaction.PrefixSetup{
		UnlinkPrecs: []*condacore.PackageRecord{installed},
		LinkPrecs:   res.Records,
	})
	if len(report.Downgraded) != 1 || report.Downgraded[0].Name != "x" {
		t.Fatalf("expected x downgraded, got report %+v", report)
	}
}

// Scenario 4: a requested spec resolves to a higher-priority channel's
// build of an already-installed name, and the change report categorizes
// the channel move as Superseded rather than Updated, even though the
// version and build number are unchanged.
func TestScenarioChannelSupersede(t *testing.T) {
	installed := recCh("x", "1", "0", 0, "main")
	forge := recCh("x", "1", "0", 0, "conda-forge")
	u := Universe{
		Candidates: []*condacore.PackageRecord{forge},
		Installed:  []*condacore.PackageRecord{installed},
	}
	res, err := Solve(context.Background(), u, []string{"x"}, Options{ChannelPriority: ChannelPriorityStrict})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Channel.Canonical != "conda-forge" {
		t.Fatalf("expected conda-forge's x selected, got %v", res.Records)
	}

	report := transaction.CalculateChangeReport(transaction.PrefixSetup{
		UnlinkPrecs: []*condacore.PackageRecord{installed},
		LinkPrecs:   res.Records,
	})
	if len(report.Superseded) != 1 || report.Superseded[0].Name != "x" {
		t.Fatalf("expected x superseded, got report %+v", report)
	}
}

type scenarioAction struct {
	executed, reversed bool
	fail               bool
}

func (a *scenarioAction) Verify(ctx context.Context) error { return nil }
func (a *scenarioAction) Execute(ctx context.Context) error {
	if a.fail {
		return errors.New("boom")
	}
	a.executed = true
	return nil
}
func (a *scenarioAction) Reverse(ctx context.Context) error { a.reversed = true; return nil }
func (a *scenarioAction) Cleanup(ctx context.Context) error { return nil }

// Scenario 5: two link records racing to write the same path fail Verify
// with SharedLinkPathClobber before Execute ever runs.
func TestScenarioClobber(t *testing.T) {
	foo := recCh("foo", "1", "0", 0, "conda-forge")
	bar := recCh("bar", "1", "0", 0, "conda-forge")
	tx := transaction.New(transaction.Options{}, transaction.PrefixSetup{TargetPrefix: "/envs/clobber"})
	tx.AddGroup(transaction.ActionGroup{
		Bucket: 6, PkgData: foo, TargetPrefix: "/envs/clobber",
		Actions: []action.Action{&action.LinkPath{SourceDir: "/cache/foo", RelPath: "lib/libfoo.so", PrefixDir: "/envs/clobber"}},
	})
	tx.AddGroup(transaction.ActionGroup{
		Bucket: 6, PkgData: bar, TargetPrefix: "/envs/clobber",
		Actions: []action.Action{&action.LinkPath{SourceDir: "/cache/bar", RelPath: "lib/libfoo.so", PrefixDir: "/envs/clobber"}},
	})

	err := tx.Verify(context.Background())
	if err == nil {
		t.Fatal("expected SharedLinkPathClobber")
	}
	var condaErr *condacore.Error
	if errors.As(err, &condaErr) {
		if condaErr.Op != condacore.OpSharedLinkPathClobber {
			t.Fatalf("expected OpSharedLinkPathClobber, got %s", condaErr.Op)
		}
	} else {
		var multi *condacore.CondaMultiError
		if !errors.As(err, &multi) {
			t.Fatalf("expected *condacore.Error or *condacore.CondaMultiError, got %T: %v", err, err)
		}
		found := false
		for _, e := range multi.Errs {
			var ce *condacore.Error
			if errors.As(e, &ce) && ce.Op == condacore.OpSharedLinkPathClobber {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected OpSharedLinkPathClobber among aggregated errors, got %v", multi.Errs)
		}
	}
}

// Scenario 6: the third of five link records fails Execute; the first two
// (each in its own earlier bucket) are reversed, the third is left
// unexecuted, and no later bucket ever runs.
func TestScenarioRollback(t *testing.T) {
	actions := [5]*scenarioAction{
		{}, {}, {fail: true}, {}, {},
	}
	tx := transaction.New(transaction.Options{})
	// Each record gets its own bucket (literal constants, since Bucket's
	// declared type is unexported): Execute stops at the first bucket
	// whose group fails, before any later bucket is even attempted.
	tx.AddGroup(transaction.ActionGroup{Bucket: 0, TargetPrefix: "/p", Actions: []action.Action{actions[0]}})
	tx.AddGroup(transaction.ActionGroup{Bucket: 1, TargetPrefix: "/p", Actions: []action.Action{actions[1]}})
	tx.AddGroup(transaction.ActionGroup{Bucket: 2, TargetPrefix: "/p", Actions: []action.Action{actions[2]}})
	tx.AddGroup(transaction.ActionGroup{Bucket: 3, TargetPrefix: "/p", Actions: []action.Action{actions[3]}})
	tx.AddGroup(transaction.ActionGroup{Bucket: 4, TargetPrefix: "/p", Actions: []action.Action{actions[4]}})

	err := tx.Execute(context.Background())
	if err == nil {
		t.Fatal("expected execute failure to propagate")
	}
	for i := 0; i < 2; i++ {
		if !actions[i].executed || !actions[i].reversed {
			t.Errorf("action %d: expected executed and reversed, got executed=%v reversed=%v", i, actions[i].executed, actions[i].reversed)
		}
	}
	if actions[2].executed {
		t.Error("action 2: expected the failing action to not be marked executed")
	}
	for i := 3; i < 5; i++ {
		if actions[i].executed {
			t.Errorf("action %d: expected a later bucket group to never run", i)
		}
	}
}
