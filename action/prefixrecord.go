package action

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	condacore "github.com/conda-incubator/condacore"
)

// CreatePrefixRecord writes a package's conda-meta/<dist>.json record once
// all of its files have been linked, recording exactly which paths and link
// type the package owns so a later Unlink/RemoveLinkedPackageRecord knows
// what to remove.
type CreatePrefixRecord struct {
	base

	PrefixDir string
	RelPath   string // "conda-meta/<name>-<version>-<build>.json"
	Record    *condacore.PrefixRecord

	Insert func(rec *condacore.PrefixRecord) error
	Remove func(name string) error
}

func (a *CreatePrefixRecord) targetPath() string {
	return filepath.Join(a.PrefixDir, a.RelPath)
}

// Verify implements Action.
func (a *CreatePrefixRecord) Verify(ctx context.Context) error {
	a.verified = true
	return nil
}

// Execute implements Action.
func (a *CreatePrefixRecord) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.targetPath()), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(a.Record, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.targetPath(), b, 0o644); err != nil {
		return err
	}
	if a.Insert != nil {
		if err := a.Insert(a.Record); err != nil {
			return err
		}
	}
	a.executed = true
	return nil
}

// Reverse implements Action.
func (a *CreatePrefixRecord) Reverse(ctx context.Context) error {
	if !a.executed {
		return nil
	}
	os.Remove(a.targetPath())
	if a.Remove != nil {
		return a.Remove(a.Record.Name)
	}
	a.executed = false
	return nil
}

// Cleanup implements Action.
func (a *CreatePrefixRecord) Cleanup(ctx context.Context) error { return nil }
