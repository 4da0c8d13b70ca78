package transaction

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/action"
	"github.com/conda-incubator/condacore/locksource/mock_locksource"
	"github.com/conda-incubator/condacore/version"
)

func rec(name, ver, build string) *condacore.PackageRecord {
	v, err := version.Parse(ver)
	if err != nil {
		panic(err)
	}
	return &condacore.PackageRecord{Name: name, Version: v, Build: build}
}

type fakeAction struct {
	executed, reversed bool
	failExecute        bool
}

func (a *fakeAction) Verify(ctx context.Context) error { return nil }
func (a *fakeAction) Execute(ctx context.Context) error {
	if a.failExecute {
		return errors.New("boom")
	}
	a.executed = true
	return nil
}
func (a *fakeAction) Reverse(ctx context.Context) error { a.reversed = true; return nil }
func (a *fakeAction) Cleanup(ctx context.Context) error { return nil }

func TestCalculateChangeReportBuckets(t *testing.T) {
	setup := PrefixSetup{
		TargetPrefix: "/envs/test",
		UnlinkPrecs: []*condacore.PackageRecord{
			rec("numpy", "1.20.0", "py311_0"),
			rec("removed-pkg", "1.0.0", "0"),
		},
		LinkPrecs: []*condacore.PackageRecord{
			rec("numpy", "1.24.0", "py311_0"), // updated
			rec("new-pkg", "2.0.0", "0"),      // new
		},
	}
	report := CalculateChangeReport(setup)
	if len(report.New) != 1 || report.New[0].Name != "new-pkg" {
		t.Errorf("New = %+v, want [new-pkg]", report.New)
	}
	if len(report.Removed) != 1 || report.Removed[0].Name != "removed-pkg" {
		t.Errorf("Removed = %+v, want [removed-pkg]", report.Removed)
	}
	if len(report.Updated) != 1 || report.Updated[0].Name != "numpy" {
		t.Errorf("Updated = %+v, want [numpy]", report.Updated)
	}
}

func TestExecuteRollsBackOnFailure(t *testing.T) {
	good1 := &fakeAction{}
	good2 := &fakeAction{}
	bad := &fakeAction{failExecute: true}

	tx := New(Options{})
	tx.AddGroup(ActionGroup{Bucket: bucketUnlink, TargetPrefix: "/p", Actions: []action.Action{good1}})
	tx.AddGroup(ActionGroup{Bucket: bucketLink, TargetPrefix: "/p", Actions: []action.Action{good2, bad}})

	err := tx.Execute(context.Background())
	if err == nil {
		t.Fatal("expected error from failing action")
	}
	if !good1.reversed {
		t.Error("expected earlier bucket's action to be reversed")
	}
	if !good2.reversed {
		t.Error("expected same-group earlier action to be reversed")
	}
}

func TestExecuteSucceedsAndCleansUp(t *testing.T) {
	a := &fakeAction{}
	tx := New(Options{})
	tx.AddGroup(ActionGroup{Bucket: bucketLink, TargetPrefix: "/p", Actions: []action.Action{a}})

	if err := tx.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !a.executed {
		t.Error("expected action executed")
	}
	if a.reversed {
		t.Error("expected no reversal on success")
	}
}

func TestExecuteLocksTargetPrefix(t *testing.T) {
	ctrl := gomock.NewController(t)
	lock := mock_locksource.NewMockContextLock(ctrl)

	unlockCalled := false
	lockCtx := context.Background()
	lock.EXPECT().
		Lock(gomock.Any(), "/envs/test").
		Return(lockCtx, context.CancelFunc(func() { unlockCalled = true }))

	a := &fakeAction{}
	tx := New(Options{Lock: lock}, PrefixSetup{TargetPrefix: "/envs/test"})
	tx.AddGroup(ActionGroup{Bucket: bucketLink, TargetPrefix: "/envs/test", Actions: []action.Action{a}})

	if err := tx.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !unlockCalled {
		t.Error("expected the lock's CancelFunc to be called once the transaction completed")
	}
}
