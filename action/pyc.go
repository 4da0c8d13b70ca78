package action

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
)

// CompileMultiPyc byte-compiles a batch of noarch:python package's .py files
// against the target prefix's interpreter, grouped into one action so
// several packages' compilation can be aggregated (AggregateCompileMultiPyc
// below) rather than clobbering each other with separate python
// invocations.
type CompileMultiPyc struct {
	base

	PrefixDir        string
	PythonShortPath  string // e.g. "bin/python3.11", relative to PrefixDir
	SourceShortPaths []string
	TargetShortPaths []string // parallel to SourceShortPaths; the .pyc outputs
}

// Verify implements Action.
func (a *CompileMultiPyc) Verify(ctx context.Context) error {
	a.verified = true
	return nil
}

// Execute implements Action. Failure to compile an individual file (for
// example a syntax error, or a file meant for a different Python version) is
// tolerated: conda never blocks a link transaction on a pyc compile failure,
// it just leaves that file uncompiled.
func (a *CompileMultiPyc) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	python := filepath.Join(a.PrefixDir, a.PythonShortPath)
	args := make([]string, 0, len(a.SourceShortPaths)+2)
	args = append(args, "-m", "py_compile")
	for _, sp := range a.SourceShortPaths {
		args = append(args, filepath.Join(a.PrefixDir, sp))
	}
	cmd := exec.CommandContext(ctx, python, args...)
	cmd.Dir = a.PrefixDir
	_ = cmd.Run() // best-effort; see doc comment
	a.executed = true
	return nil
}

// Reverse implements Action. Removes every target .pyc regardless of
// whether it was actually produced, mirroring the original's
// reverse-removes-all-pyc-files behavior.
func (a *CompileMultiPyc) Reverse(ctx context.Context) error {
	if !a.executed {
		return nil
	}
	for _, tp := range a.TargetShortPaths {
		os.Remove(filepath.Join(a.PrefixDir, tp))
	}
	a.executed = false
	return nil
}

// Cleanup implements Action.
func (a *CompileMultiPyc) Cleanup(ctx context.Context) error { return nil }

// AggregateCompileMultiPyc merges several CompileMultiPyc actions (one per
// linked noarch:python package) into a single batch, so pyc compilation
// runs once per transaction instead of once per package.
func AggregateCompileMultiPyc(individuals []*CompileMultiPyc) *CompileMultiPyc {
	if len(individuals) == 0 {
		return &CompileMultiPyc{}
	}
	first := individuals[0]
	agg := &CompileMultiPyc{
		PrefixDir:       first.PrefixDir,
		PythonShortPath: first.PythonShortPath,
	}
	seenSrc := make(map[string]bool)
	seenDst := make(map[string]bool)
	for _, ind := range individuals {
		for _, s := range ind.SourceShortPaths {
			if !seenSrc[s] {
				seenSrc[s] = true
				agg.SourceShortPaths = append(agg.SourceShortPaths, s)
			}
		}
		for _, t := range ind.TargetShortPaths {
			if !seenDst[t] {
				seenDst[t] = true
				agg.TargetShortPaths = append(agg.TargetShortPaths, t)
			}
		}
	}
	return agg
}
