package action

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	condacore "github.com/conda-incubator/condacore"
)

// LinkType is how a file is placed into a prefix.
type LinkType string

const (
	LinkHardlink  LinkType = "hardlink"
	LinkSoftlink  LinkType = "softlink"
	LinkCopy      LinkType = "copy"
	LinkDirectory LinkType = "directory"
)

// LinkPath links one file from an extracted package directory into a
// prefix, optionally substituting the placeholder prefix string in text
// files (PrefixReplaceLink's job in the original; folded in here since the
// two only differ in whether FileMode is text or binary).
type LinkPath struct {
	base

	SourceDir     string // extracted package directory
	RelPath       string // path relative to SourceDir
	DestRelPath   string // path relative to the target prefix; defaults to RelPath when empty, overridden for noarch-python site-packages remapping
	PrefixDir     string
	LinkType      LinkType
	FileMode      condacore.FileMode
	Placeholder   string // prefix placeholder string to substitute, if FileMode is text
	ExpectedSHA256 *condacore.Digest
	ExpectedSize   int64
	ExtraSafetyChecks bool // gates the checksum/size verify, spec.md §7's SafetyError
}

func (a *LinkPath) srcPath() string { return filepath.Join(a.SourceDir, a.RelPath) }
func (a *LinkPath) dstPath() string {
	rel := a.DestRelPath
	if rel == "" {
		rel = a.RelPath
	}
	return filepath.Join(a.PrefixDir, rel)
}

// Verify implements Action.
func (a *LinkPath) Verify(ctx context.Context) error {
	if !a.ExtraSafetyChecks {
		a.verified = true
		return nil
	}
	f, err := os.Open(a.srcPath())
	if err != nil {
		return &condacore.Error{Kind: condacore.ErrPrecondition, Op: condacore.OpPathNotFound, Inner: err}
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return &condacore.Error{Kind: condacore.ErrInternal, Op: condacore.OpSafetyError, Inner: err}
	}
	if a.ExpectedSize != 0 && n != a.ExpectedSize {
		return &condacore.Error{Kind: condacore.ErrPermanent, Op: condacore.OpSafetyError, Message: "size mismatch"}
	}
	if a.ExpectedSHA256 != nil {
		got := hex.EncodeToString(h.Sum(nil))
		want := a.ExpectedSHA256.String()
		if "sha256:"+got != want {
			return &condacore.Error{Kind: condacore.ErrPermanent, Op: condacore.OpSafetyError, Message: "checksum mismatch"}
		}
	}
	a.verified = true
	return nil
}

// Execute implements Action.
func (a *LinkPath) Execute(ctx context.Context) error {
	if a.executed {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.dstPath()), 0o755); err != nil {
		return &condacore.Error{Kind: condacore.ErrTransient, Op: condacore.OpLinkError, Inner: err}
	}

	if a.FileMode == condacore.FileModeText && a.Placeholder != "" {
		if err := a.linkWithPlaceholder(); err != nil {
			return err
		}
		a.executed = true
		return nil
	}

	switch a.LinkType {
	case LinkHardlink:
		if same, err := sameDevice(a.SourceDir, a.PrefixDir); err != nil || !same {
			if err := copyFile(a.srcPath(), a.dstPath()); err != nil {
				return &condacore.Error{Kind: condacore.ErrTransient, Op: condacore.OpLinkError, Inner: err}
			}
			break
		}
		if err := os.Link(a.srcPath(), a.dstPath()); err != nil {
			return &condacore.Error{Kind: condacore.ErrTransient, Op: condacore.OpLinkError, Inner: err}
		}
	case LinkSoftlink:
		if err := os.Symlink(a.srcPath(), a.dstPath()); err != nil {
			return &condacore.Error{Kind: condacore.ErrTransient, Op: condacore.OpLinkError, Inner: err}
		}
	case LinkDirectory:
		if err := os.MkdirAll(a.dstPath(), 0o755); err != nil {
			return &condacore.Error{Kind: condacore.ErrTransient, Op: condacore.OpLinkError, Inner: err}
		}
	default: // LinkCopy, or hardlink unsupported on this filesystem
		if err := copyFile(a.srcPath(), a.dstPath()); err != nil {
			return &condacore.Error{Kind: condacore.ErrTransient, Op: condacore.OpLinkError, Inner: err}
		}
	}
	a.executed = true
	return nil
}

func (a *LinkPath) linkWithPlaceholder() error {
	b, err := os.ReadFile(a.srcPath())
	if err != nil {
		return &condacore.Error{Kind: condacore.ErrTransient, Op: condacore.OpLinkError, Inner: err}
	}
	replaced, err := replaceAll(b, []byte(a.Placeholder), []byte(a.PrefixDir))
	if err != nil {
		return &condacore.Error{Kind: condacore.ErrPermanent, Op: condacore.OpPaddingError, Inner: err}
	}
	return os.WriteFile(a.dstPath(), replaced, 0o644)
}

// PaddingError reports that a prefix placeholder substitution could not
// preserve the original file's length, because the replacement prefix is
// longer than the placeholder it replaces.
type PaddingError struct {
	Placeholder, Replacement string
}

func (e *PaddingError) Error() string {
	return "action: replacement prefix longer than placeholder, cannot pad: " +
		e.Replacement + " vs " + e.Placeholder
}

// replaceAll substitutes old with new in-place, padding new with NUL bytes
// to preserve the original file length (so binary offsets elsewhere in the
// file are not disturbed). Returns a *PaddingError if new is longer than
// old, since that can't be padded to fit.
func replaceAll(data, old, new []byte) ([]byte, error) {
	if len(new) > len(old) {
		return nil, &PaddingError{Placeholder: string(old), Replacement: string(new)}
	}
	padded := make([]byte, len(old))
	copy(padded, new)
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if i+len(old) <= len(data) && string(data[i:i+len(old)]) == string(old) {
			out = append(out, padded...)
			i += len(old)
			continue
		}
		out = append(out, data[i])
		i++
	}
	return out, nil
}

func copyFile(src, dst string) error {
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

// Reverse implements Action.
func (a *LinkPath) Reverse(ctx context.Context) error {
	if !a.executed {
		return nil
	}
	if err := os.Remove(a.dstPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	a.executed = false
	return nil
}

// Cleanup implements Action.
func (a *LinkPath) Cleanup(ctx context.Context) error { return nil }
