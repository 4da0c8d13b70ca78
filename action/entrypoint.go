package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// CreatePythonEntryPoint writes a console-script shim for a noarch:python
// package's entry_points metadata. On unix this is a '#!'-shebang script
// that imports Module and calls Func; on windows it is paired with a
// generated *-script.py plus a copied launcher exe (LinkPath handles the
// exe half; see path_actions.py's create_python_entry_point_windows_exe_action).
type CreatePythonEntryPoint struct {
	base

	PrefixDir       string
	RelPath         string // e.g. "bin/black" or "Scripts/black-script.py" on windows
	PythonShortPath string // interpreter path relative to PrefixDir, empty on windows
	Module          string
	Func            string
}

func (a *CreatePythonEntryPoint) targetPath() string {
	return filepath.Join(a.PrefixDir, a.RelPath)
}

// Verify implements Action.
func (a *CreatePythonEntryPoint) Verify(ctx context.Context) error {
	a.verified = true
	return nil
}

// Execute implements Action.
func (a *CreatePythonEntryPoint) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.targetPath()), 0o755); err != nil {
		return err
	}

	var body string
	if runtime.GOOS == "windows" {
		body = fmt.Sprintf("# generated by condacore\nimport sys\nfrom %s import %s\nif __name__ == '__main__':\n    sys.exit(%s())\n", a.Module, a.Func, a.Func)
	} else {
		python := filepath.Join(a.PrefixDir, a.PythonShortPath)
		body = fmt.Sprintf("#!%s\n# generated by condacore\nimport sys\nfrom %s import %s\nif __name__ == '__main__':\n    sys.exit(%s())\n", python, a.Module, a.Func, a.Func)
	}

	mode := os.FileMode(0o644)
	if runtime.GOOS != "windows" {
		mode = 0o755
	}
	if err := os.WriteFile(a.targetPath(), []byte(body), mode); err != nil {
		return err
	}
	a.executed = true
	return nil
}

// Reverse implements Action.
func (a *CreatePythonEntryPoint) Reverse(ctx context.Context) error {
	if !a.executed {
		return nil
	}
	if err := os.Remove(a.targetPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	a.executed = false
	return nil
}

// Cleanup implements Action.
func (a *CreatePythonEntryPoint) Cleanup(ctx context.Context) error { return nil }
