package action

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const condaTempExtension = ".c~"

// UpdateHistory appends a record of one transaction's requested/removed
// specs to a prefix's conda-meta/history file. Execute saves aside a copy
// of the prior history so Reverse can restore it exactly, rather than
// attempting to subtract the appended lines back out.
type UpdateHistory struct {
	base

	PrefixDir     string
	RemoveSpecs   []string
	UpdateSpecs   []string
	NeuteredSpecs []string

	holdingPath string
}

func (a *UpdateHistory) targetPath() string {
	return filepath.Join(a.PrefixDir, "conda-meta", "history")
}

// Verify implements Action.
func (a *UpdateHistory) Verify(ctx context.Context) error {
	a.verified = true
	return nil
}

// Execute implements Action.
func (a *UpdateHistory) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	target := a.targetPath()
	a.holdingPath = target + condaTempExtension

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if _, err := os.Lstat(target); err == nil {
		if err := copyFileContents(target, a.holdingPath); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "==> %s <==\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
	for _, s := range a.RemoveSpecs {
		fmt.Fprintf(f, "-%s\n", s)
	}
	for _, s := range a.UpdateSpecs {
		fmt.Fprintf(f, "+%s\n", s)
	}
	for _, s := range a.NeuteredSpecs {
		fmt.Fprintf(f, "# neutered %s\n", s)
	}

	a.executed = true
	return nil
}

// Reverse implements Action.
func (a *UpdateHistory) Reverse(ctx context.Context) error {
	if a.holdingPath == "" {
		return nil
	}
	if _, err := os.Lstat(a.holdingPath); err != nil {
		// No earlier history file was saved: Execute created the file.
		if a.executed {
			if err := os.Remove(a.targetPath()); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		return nil
	}
	return os.Rename(a.holdingPath, a.targetPath())
}

// Cleanup implements Action.
func (a *UpdateHistory) Cleanup(ctx context.Context) error {
	if a.holdingPath != "" {
		os.Remove(a.holdingPath)
	}
	return nil
}

func copyFileContents(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
