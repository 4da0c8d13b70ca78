package action

import (
	"context"
	"os"
	"path/filepath"

	condacore "github.com/conda-incubator/condacore"
)

const holdingSuffix = ".c~"

// Unlink removes one previously-linked file from a prefix. Execute renames
// the file aside into a holding path rather than deleting it outright, so a
// failed transaction can restore it with a plain rename in Reverse; Cleanup
// removes the holding file once the transaction has committed.
type Unlink struct {
	base

	PrefixDir string
	RelPath   string
	LinkType  LinkType // LinkDirectory is skipped: this action never removes directories
}

func (a *Unlink) targetPath() string  { return filepath.Join(a.PrefixDir, a.RelPath) }
func (a *Unlink) holdingPath() string { return a.targetPath() + holdingSuffix }

// Verify implements Action. Whether the path can actually be removed is not
// knowable until Execute is attempted; inability to remove triggers a
// rollback rather than a pre-flight failure.
func (a *Unlink) Verify(ctx context.Context) error {
	a.verified = true
	return nil
}

// Execute implements Action.
func (a *Unlink) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	if a.LinkType != LinkDirectory {
		if err := os.Rename(a.targetPath(), a.holdingPath()); err != nil && !os.IsNotExist(err) {
			return &condacore.Error{Kind: condacore.ErrTransient, Op: condacore.OpLinkError, Inner: err}
		}
	}
	a.executed = true
	return nil
}

// Reverse implements Action.
func (a *Unlink) Reverse(ctx context.Context) error {
	if a.LinkType == LinkDirectory {
		return nil
	}
	if _, err := os.Lstat(a.holdingPath()); err != nil {
		return nil
	}
	return os.Rename(a.holdingPath(), a.targetPath())
}

// Cleanup implements Action.
func (a *Unlink) Cleanup(ctx context.Context) error {
	if fi, err := os.Lstat(a.holdingPath()); err == nil && !fi.IsDir() {
		os.Remove(a.holdingPath())
	}
	return nil
}

// RemoveLinkedPackageRecord is Unlink plus deletion of the package's
// conda-meta/<dist>.json record, used when a package is being removed
// entirely rather than upgraded in place.
type RemoveLinkedPackageRecord struct {
	Unlink

	RemoveRecord func() error // deletes the prefix's PrefixData record for this package
	RestoreRecord func() error
}

// Execute implements Action.
func (a *RemoveLinkedPackageRecord) Execute(ctx context.Context) error {
	if err := a.Unlink.Execute(ctx); err != nil {
		return err
	}
	if a.RemoveRecord != nil {
		return a.RemoveRecord()
	}
	return nil
}

// Reverse implements Action.
func (a *RemoveLinkedPackageRecord) Reverse(ctx context.Context) error {
	if err := a.Unlink.Reverse(ctx); err != nil {
		return err
	}
	if a.RestoreRecord != nil {
		return a.RestoreRecord()
	}
	return nil
}
