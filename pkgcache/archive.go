package pkgcache

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/pkg/path"
	"github.com/conda-incubator/condacore/version"
)

func parseVersion(s string) (version.Version, error) {
	return version.Parse(s)
}

// ParseFilename parses a conda archive filename of the form
// "<name>-<version>-<build>.conda" or "...tar.bz2" into a minimal
// PackageCacheRecord (name/version/build/build_number/fn only).
func ParseFilename(fn string) (*condacore.PackageCacheRecord, error) {
	base := fn
	var format string
	switch {
	case strings.HasSuffix(base, ".conda"):
		format = ".conda"
		base = strings.TrimSuffix(base, ".conda")
	case strings.HasSuffix(base, ".tar.bz2"):
		format = ".tar.bz2"
		base = strings.TrimSuffix(base, ".tar.bz2")
	default:
		return nil, fmt.Errorf("pkgcache: unrecognized archive extension: %q", fn)
	}
	parts := strings.Split(base, "-")
	if len(parts) < 3 {
		return nil, fmt.Errorf("pkgcache: malformed archive filename: %q", fn)
	}
	build := parts[len(parts)-1]
	ver := parts[len(parts)-2]
	name := strings.Join(parts[:len(parts)-2], "-")

	v, err := version.Parse(ver)
	if err != nil {
		return nil, fmt.Errorf("pkgcache: %s: %w", fn, err)
	}

	buildNumber := 0
	if i := strings.LastIndexByte(build, '_'); i >= 0 {
		if n, err := strconv.Atoi(build[i+1:]); err == nil {
			buildNumber = n
		}
	}

	_ = format
	return &condacore.PackageCacheRecord{
		PackageRecord: condacore.PackageRecord{
			Name:        name,
			Version:     v,
			Build:       build,
			BuildNumber: buildNumber,
			Fn:          fn,
		},
	}, nil
}

// OpenArchive opens a ".conda" package archive and returns an fs.FS over its
// contents (info/... and the package payload side-by-side, mirroring the
// extracted-directory layout), without extracting anything to disk. ".conda"
// archives are a zip container of two zstd-compressed tarballs
// ("info-*.tar.zst", "pkg-*.tar.zst"). A ".tar.bz2" path returns an error;
// OpenArchive does not read that format.
func OpenArchive(path string, r io.ReaderAt, size int64) (fs.FS, error) {
	switch {
	case strings.HasSuffix(path, ".conda"):
		return openConda(r, size)
	case strings.HasSuffix(path, ".tar.bz2"):
		return nil, fmt.Errorf("pkgcache: .tar.bz2 archives must be opened as a stream, not by ReaderAt; use OpenTarBz2")
	default:
		return nil, fmt.Errorf("pkgcache: unrecognized archive extension: %q", path)
	}
}

// OpenTarBz2 opens a ".tar.bz2" package archive as a tar stream.
func OpenTarBz2(r io.Reader) *tar.Reader {
	return tar.NewReader(bzip2.NewReader(r))
}

func openConda(r io.ReaderAt, size int64) (fs.FS, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("pkgcache: opening .conda zip container: %w", err)
	}
	return &condaFS{zip: zr}, nil
}

// condaFS presents the union of a .conda archive's info and pkg
// zstd-compressed tarballs as a single fs.FS, so callers can read
// "info/index.json" without caring which inner tarball holds it.
type condaFS struct {
	zip *zip.Reader
}

func (c *condaFS) Open(name string) (fs.File, error) {
	for _, f := range c.zip.File {
		if !strings.HasPrefix(f.Name, "info-") && !strings.HasPrefix(f.Name, "pkg-") {
			continue
		}
		if !strings.HasSuffix(f.Name, ".tar.zst") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		zr, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			continue
		}
		tr := tar.NewReader(zr)
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				break
			}
			if strings.TrimPrefix(hdr.Name, "./") == name {
				zr.Close()
				return &tarEntry{tr: tr, hdr: hdr, closer: rc}, nil
			}
		}
		zr.Close()
		rc.Close()
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Extract unpacks a package archive (".conda" or ".tar.bz2") into destDir,
// which must already exist. It is the counterpart to OpenArchive for
// callers (fetch.Arena) that want files materialized on disk rather than
// read through an fs.FS.
func Extract(path, destDir string, r io.ReaderAt, size int64) error {
	switch {
	case strings.HasSuffix(path, ".conda"):
		return extractConda(destDir, r, size)
	case strings.HasSuffix(path, ".tar.bz2"):
		sr, ok := r.(io.Reader)
		if !ok {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			sr = f
		}
		return extractTar(destDir, OpenTarBz2(sr))
	default:
		return fmt.Errorf("pkgcache: unrecognized archive extension: %q", path)
	}
}

func extractConda(destDir string, r io.ReaderAt, size int64) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("pkgcache: opening .conda zip container: %w", err)
	}
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".tar.zst") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		zstr, err := zstd.NewReader(rc)
		if err != nil {
			rc.Close()
			return err
		}
		err = extractTar(destDir, tar.NewReader(zstr))
		zstr.Close()
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(destDir string, tr *tar.Reader) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := path.CanonicalizeFileName(strings.TrimPrefix(hdr.Name, "./"))
		if name == "" {
			continue
		}
		dst := filepath.Join(destDir, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			os.Remove(dst)
			if err := os.Symlink(hdr.Linkname, dst); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return err
			}
			_, err = io.Copy(out, tr)
			out.Close()
			if err != nil {
				return err
			}
		}
	}
}

type tarEntry struct {
	tr     *tar.Reader
	hdr    *tar.Header
	closer io.Closer
}

func (t *tarEntry) Stat() (fs.FileInfo, error) { return t.hdr.FileInfo(), nil }
func (t *tarEntry) Read(p []byte) (int, error) { return t.tr.Read(p) }
func (t *tarEntry) Close() error               { return t.closer.Close() }
