package action

import (
	"context"
	"os"
	"path/filepath"
)

// Menu creates or removes a platform start-menu shortcut for one path
// shipped by a package (menuinst's job in the original; condacore only
// tracks the action's reversibility, not menuinst's templating).
type Menu struct {
	base

	PrefixDir string
	RelPath   string // path to the shortcut spec, e.g. "Menu/foo.json"

	// Install is called on Execute and should create the shortcut;
	// Remove is called on Reverse. Left nil in tests or on platforms
	// without a menu system, in which case both are no-ops.
	Install func(prefixDir, relPath string) error
	Remove  func(prefixDir, relPath string) error
}

func (a *Menu) targetPath() string { return filepath.Join(a.PrefixDir, a.RelPath) }

// Verify implements Action.
func (a *Menu) Verify(ctx context.Context) error {
	if _, err := os.Stat(a.targetPath()); err != nil {
		return err
	}
	a.verified = true
	return nil
}

// Execute implements Action.
func (a *Menu) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	if a.Install != nil {
		if err := a.Install(a.PrefixDir, a.RelPath); err != nil {
			return err
		}
	}
	a.executed = true
	return nil
}

// Reverse implements Action.
func (a *Menu) Reverse(ctx context.Context) error {
	if !a.executed {
		return nil
	}
	if a.Remove != nil {
		if err := a.Remove(a.PrefixDir, a.RelPath); err != nil {
			return err
		}
	}
	a.executed = false
	return nil
}

// Cleanup implements Action.
func (a *Menu) Cleanup(ctx context.Context) error { return nil }

// RemoveMenu is Menu's inverse: used when unlinking a package, it removes
// the shortcut on Execute and recreates it on Reverse.
type RemoveMenu struct {
	base

	PrefixDir string
	RelPath   string

	Install func(prefixDir, relPath string) error
	Remove  func(prefixDir, relPath string) error
}

// Verify implements Action.
func (a *RemoveMenu) Verify(ctx context.Context) error {
	a.verified = true
	return nil
}

// Execute implements Action.
func (a *RemoveMenu) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	if a.Remove != nil {
		if err := a.Remove(a.PrefixDir, a.RelPath); err != nil {
			return err
		}
	}
	a.executed = true
	return nil
}

// Reverse implements Action.
func (a *RemoveMenu) Reverse(ctx context.Context) error {
	if !a.executed {
		return nil
	}
	if a.Install != nil {
		if err := a.Install(a.PrefixDir, a.RelPath); err != nil {
			return err
		}
	}
	a.executed = false
	return nil
}

// Cleanup implements Action.
func (a *RemoveMenu) Cleanup(ctx context.Context) error { return nil }
