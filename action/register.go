package action

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	condacore "github.com/conda-incubator/condacore"
)

// RegisterEnvironmentLocation appends a prefix path to the user's
// environments.txt catalog (what `conda env list` reads), so the prefix is
// discoverable without a filesystem walk. Its counterpart,
// UnregisterEnvironmentLocation, removes the line instead.
type RegisterEnvironmentLocation struct {
	base

	EnvironmentsTxtPath string
	PrefixDir           string
}

// Verify implements Action.
func (a *RegisterEnvironmentLocation) Verify(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(a.EnvironmentsTxtPath), 0o755); err != nil {
		return &condacore.Error{Kind: condacore.ErrPermanent, Op: condacore.OpNotWritable, Inner: err}
	}
	f, err := os.OpenFile(a.EnvironmentsTxtPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &condacore.Error{Kind: condacore.ErrPermanent, Op: condacore.OpNotWritable, Inner: err}
	}
	f.Close()
	a.verified = true
	return nil
}

// Execute implements Action.
func (a *RegisterEnvironmentLocation) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	if containsLine(a.EnvironmentsTxtPath, a.PrefixDir) {
		a.executed = true
		return nil
	}
	f, err := os.OpenFile(a.EnvironmentsTxtPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(a.PrefixDir + "\n"); err != nil {
		return err
	}
	a.executed = true
	return nil
}

// Reverse implements Action. Registration is advisory bookkeeping; the
// original never reverses it either.
func (a *RegisterEnvironmentLocation) Reverse(ctx context.Context) error { return nil }

// Cleanup implements Action.
func (a *RegisterEnvironmentLocation) Cleanup(ctx context.Context) error { return nil }

// UnregisterEnvironmentLocation removes a prefix's line from the
// environments.txt catalog, used when an environment is deleted.
type UnregisterEnvironmentLocation struct {
	base

	EnvironmentsTxtPath string
	PrefixDir           string
}

// Verify implements Action.
func (a *UnregisterEnvironmentLocation) Verify(ctx context.Context) error {
	a.verified = true
	return nil
}

// Execute implements Action.
func (a *UnregisterEnvironmentLocation) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	if err := removeLine(a.EnvironmentsTxtPath, a.PrefixDir); err != nil {
		return err
	}
	a.executed = true
	return nil
}

// Reverse implements Action.
func (a *UnregisterEnvironmentLocation) Reverse(ctx context.Context) error { return nil }

// Cleanup implements Action.
func (a *UnregisterEnvironmentLocation) Cleanup(ctx context.Context) error { return nil }

func containsLine(path, line string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if sc.Text() == line {
			return true
		}
	}
	return false
}

func removeLine(path, line string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var kept []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if sc.Text() != line {
			kept = append(kept, sc.Text())
		}
	}
	f.Close()

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	for _, l := range kept {
		w.WriteString(l)
		w.WriteString("\n")
	}
	return w.Flush()
}
