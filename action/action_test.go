package action

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	condacore "github.com/conda-incubator/condacore"
)

func TestLinkPathHardlinkAndReverse(t *testing.T) {
	srcDir := t.TempDir()
	prefixDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(srcDir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "bin/tool"), []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	a := &LinkPath{
		SourceDir: srcDir,
		RelPath:   "bin/tool",
		PrefixDir: prefixDir,
		LinkType:  LinkHardlink,
	}
	ctx := context.Background()
	if err := a.Verify(ctx); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := a.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(filepath.Join(prefixDir, "bin/tool")); err != nil {
		t.Fatalf("linked file missing: %v", err)
	}
	// idempotent
	if err := a.Execute(ctx); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if err := a.Reverse(ctx); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if _, err := os.Stat(filepath.Join(prefixDir, "bin/tool")); !os.IsNotExist(err) {
		t.Fatalf("expected file removed after Reverse, got err=%v", err)
	}
}

func TestLinkPathPlaceholderSubstitution(t *testing.T) {
	srcDir := t.TempDir()
	prefixDir := t.TempDir()
	placeholder := "/opt/conda/placeholder_00000000000000000000000000000000"
	content := "prefix=" + placeholder + "\n"
	if err := os.MkdirAll(filepath.Join(srcDir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "bin/cfg"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	a := &LinkPath{
		SourceDir:   srcDir,
		RelPath:     "bin/cfg",
		PrefixDir:   prefixDir,
		FileMode:    condacore.FileModeText,
		Placeholder: placeholder,
	}
	ctx := context.Background()
	if err := a.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(prefixDir, "bin/cfg"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(content) {
		t.Fatalf("expected length preserved, got %d want %d", len(got), len(content))
	}
}

func TestReplaceAllPaddingError(t *testing.T) {
	_, err := replaceAll([]byte("hello short"), []byte("short"), []byte("much longer replacement"))
	if err == nil {
		t.Fatal("expected PaddingError for overlong replacement")
	}
	if _, ok := err.(*PaddingError); !ok {
		t.Fatalf("expected *PaddingError, got %T", err)
	}
}

func TestUnlinkRenameAndReverse(t *testing.T) {
	prefixDir := t.TempDir()
	target := filepath.Join(prefixDir, "bin/tool")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := &Unlink{PrefixDir: prefixDir, RelPath: "bin/tool"}
	ctx := context.Background()
	if err := a.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("expected target gone after Execute")
	}
	if err := a.Reverse(ctx); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected target restored after Reverse: %v", err)
	}
}

func TestRegisterEnvironmentLocationDedup(t *testing.T) {
	dir := t.TempDir()
	envTxt := filepath.Join(dir, "environments.txt")
	prefix := filepath.Join(dir, "envs", "foo")

	ctx := context.Background()
	a := &RegisterEnvironmentLocation{EnvironmentsTxtPath: envTxt, PrefixDir: prefix}
	if err := a.Verify(ctx); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := a.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := a.Execute(ctx); err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	b, err := os.ReadFile(envTxt)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), prefix+"\n"; got != want {
		t.Fatalf("environments.txt = %q, want %q (no duplicate line)", got, want)
	}

	u := &UnregisterEnvironmentLocation{EnvironmentsTxtPath: envTxt, PrefixDir: prefix}
	if err := u.Execute(ctx); err != nil {
		t.Fatalf("unregister Execute: %v", err)
	}
	b, err = os.ReadFile(envTxt)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 0 {
		t.Fatalf("expected empty environments.txt after unregister, got %q", b)
	}
}
