package action

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/quay/zlog"

	condacore "github.com/conda-incubator/condacore"
)

// ScriptKind names one of the four script hooks a package may ship at
// bin/.<name>-<kind>.{sh|bat}, grounded on run_script's action parameter in
// core/link.py.
type ScriptKind string

const (
	ScriptPreLink    ScriptKind = "pre-link"
	ScriptPostLink   ScriptKind = "post-link"
	ScriptPreUnlink  ScriptKind = "pre-unlink"
	ScriptPostUnlink ScriptKind = "post-unlink"
)

// fatal reports whether a non-zero exit from this script kind must fail the
// transaction. pre-unlink/post-unlink failures are logged only: the package
// is still removed.
func (k ScriptKind) fatal() bool {
	return k == ScriptPreLink || k == ScriptPostLink
}

// UnsafePostLinkScriptError reports that a package ships a pre-link script.
// Per spec.md §9's post-link-script-semantics open question, a pre-link
// script has the power to modify the package cache itself — deprecated but
// still honoured upstream. condacore does not silently allow or silently
// reject this: Verify raises UnsafePostLinkScriptError the first time such a
// script is found unless Options.AllowCachePostLinkScripts is set.
type UnsafePostLinkScriptError struct {
	PackageName string
	ScriptPath  string
}

// Error implements error.
func (e *UnsafePostLinkScriptError) Error() string {
	return "action: " + e.PackageName + " ships a pre-link script at " + e.ScriptPath +
		" which can modify the package cache; set Options.AllowCachePostLinkScripts to allow it"
}

// RunScript runs one of a package's pre-link/post-link/pre-unlink/post-unlink
// hook scripts, grounded on run_script/messages in core/link.py. A missing
// script file is not an error: most packages ship none of the four hooks.
type RunScript struct {
	base

	PrefixDir      string
	RootPrefix     string
	PackageName    string
	PackageVersion string
	BuildNumber    int
	Kind           ScriptKind

	AllowCachePostLinkScripts bool

	// Messages, if set, receives the contents of .messages.txt after the
	// script runs (success or non-fatal failure), instead of the caller
	// having to poll the prefix for it.
	Messages func(string)
}

func (a *RunScript) scriptPath() string {
	ext := "sh"
	if runtime.GOOS == "windows" {
		ext = "bat"
	}
	return filepath.Join(a.PrefixDir, "bin", "."+a.PackageName+"-"+string(a.Kind)+"."+ext)
}

func (a *RunScript) messagesPath() string {
	return filepath.Join(a.PrefixDir, ".messages.txt")
}

// Verify implements Action.
func (a *RunScript) Verify(ctx context.Context) error {
	if a.Kind == ScriptPreLink && !a.AllowCachePostLinkScripts {
		if _, err := os.Stat(a.scriptPath()); err == nil {
			return &UnsafePostLinkScriptError{PackageName: a.PackageName, ScriptPath: a.scriptPath()}
		}
	}
	a.verified = true
	return nil
}

// Execute implements Action.
func (a *RunScript) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	path := a.scriptPath()
	if _, err := os.Stat(path); err != nil {
		a.executed = true
		return nil
	}

	env := append(os.Environ(),
		"ROOT_PREFIX="+a.RootPrefix,
		"PREFIX="+a.PrefixDir,
		"PKG_NAME="+a.PackageName,
		"PKG_VERSION="+a.PackageVersion,
		"PKG_BUILDNUM="+strconv.Itoa(a.BuildNumber),
	)
	env = prependPath(env, filepath.Dir(path))

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		comspec := os.Getenv("COMSPEC")
		if comspec == "" {
			comspec = "cmd.exe"
		}
		cmd = exec.CommandContext(ctx, comspec, "/d", "/c", path)
	} else {
		shell := "bash"
		if _, err := exec.LookPath("bash"); err != nil {
			shell = "sh"
		}
		cmd = exec.CommandContext(ctx, shell, "-x", path)
	}
	cmd.Env = env
	cmd.Dir = filepath.Dir(path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	msgs := a.readAndRemoveMessages()
	if a.Messages != nil && msgs != "" {
		a.Messages(msgs)
	}

	if runErr != nil {
		if a.Kind.fatal() {
			return &condacore.Error{
				Kind: condacore.ErrPermanent,
				Op:   condacore.OpLinkError,
				Message: string(a.Kind) + " script failed for " + a.PackageName +
					" at " + path + ": stdout=" + stdout.String() + " stderr=" + stderr.String(),
				Inner: runErr,
			}
		}
		zlog.Warn(ctx).
			Str("package", a.PackageName).
			Str("script", string(a.Kind)).
			Err(runErr).
			Msg("non-fatal script failed, consider notifying the package maintainer")
	}
	a.executed = true
	return nil
}

// readAndRemoveMessages returns .messages.txt's contents, if any, and always
// removes the file afterward regardless of whether it could be read — the
// script ran either way and the file should never linger for the next run.
func (a *RunScript) readAndRemoveMessages() string {
	path := a.messagesPath()
	defer os.Remove(path)
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

func prependPath(env []string, dir string) []string {
	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = "PATH=" + dir + string(os.PathListSeparator) + kv[len("PATH="):]
			return env
		}
	}
	return append(env, "PATH="+dir)
}

// Reverse implements Action. Scripts are not reversible; a failed pre-link
// or post-link run already aborted Execute before this action could be
// marked executed, so there is nothing to undo.
func (a *RunScript) Reverse(ctx context.Context) error {
	a.executed = false
	return nil
}

// Cleanup implements Action.
func (a *RunScript) Cleanup(ctx context.Context) error { return nil }
