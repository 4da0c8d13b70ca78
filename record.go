package condacore

import (
	"time"

	"github.com/package-url/packageurl-go"

	"github.com/conda-incubator/condacore/version"
)

// Noarch describes a package's platform independence.
type Noarch string

const (
	NoarchNone    Noarch = ""
	NoarchGeneric Noarch = "generic"
	NoarchPython  Noarch = "python"
)

// Channel identifies a package's source channel.
type Channel struct {
	URL       string
	Canonical string // canonical channel name, used in the identity key
}

// PackageRecord is a candidate or installed package archive descriptor,
// grounded on conda's PackageRecord (channel/subdir/name/version/build
// quintuple identity, dependency lists, feature sets).
//
// Equality and hashing both use [PackageRecord.Key], never the struct
// itself — two records with different Fn but an otherwise identical key are
// the same package, unless SeparateFormatCache is configured (see
// [Key.Fn]).
type PackageRecord struct {
	Name        string
	Version     version.Version
	Build       string
	BuildNumber int
	Channel     Channel
	Subdir      string
	Fn          string // archive filename, e.g. "numpy-1.24.0-py311h.conda"

	MD5      *Digest
	SHA256   *Digest
	Size     int64
	URL      string

	Depends       []string // match-spec strings
	Constrains    []string // match-spec strings, applied only if named package is present
	TrackFeatures []string
	Features      []string

	Noarch    Noarch
	Timestamp time.Time

	LicenseFamily string
	License       string

	// Metadata carries provenance flags such as "tarball_verified_sha256";
	// informational only, never consulted by the solver or matcher.
	Metadata map[string]struct{}
}

// SeparateFormatCache, when true, makes [PackageRecord.Key] include Fn, so
// the same package built as both ".tar.bz2" and ".conda" is tracked as two
// distinct cache entries instead of one. Conda's historical default is
// false; see SPEC_FULL.md §9 open question 2.
var SeparateFormatCache = false

// Key is the identity tuple backing equality and hashing across
// PackageRecord, PackageCacheRecord and PrefixRecord (conda's "_pkey").
type Key struct {
	Channel     string
	Subdir      string
	Name        string
	Version     string
	BuildNumber int
	Build       string
	Fn          string // only populated, and only compared, when SeparateFormatCache is set
}

// Key returns r's identity tuple.
func (r *PackageRecord) Key() Key {
	k := Key{
		Channel:     r.Channel.Canonical,
		Subdir:      r.Subdir,
		Name:        r.Name,
		Version:     r.Version.String(),
		BuildNumber: r.BuildNumber,
		Build:       r.Build,
	}
	if SeparateFormatCache {
		k.Fn = r.Fn
	}
	return k
}

// PackageName implements matchspec.Record.
func (r *PackageRecord) PackageName() string { return r.Name }

// PackageVersion implements matchspec.Record.
func (r *PackageRecord) PackageVersion() version.Version { return r.Version }

// PackageBuild implements matchspec.Record.
func (r *PackageRecord) PackageBuild() string { return r.Build }

// PackageBuildNumber implements matchspec.Record.
func (r *PackageRecord) PackageBuildNumber() int { return r.BuildNumber }

// ChannelName implements matchspec.Record.
func (r *PackageRecord) ChannelName() string { return r.Channel.Canonical }

// SubdirName implements matchspec.Record. Named distinctly from the Subdir
// field since Go does not allow a method and a field with the same name.
func (r *PackageRecord) SubdirName() string { return r.Subdir }

// TrackFeaturesList implements matchspec.Record.
func (r *PackageRecord) TrackFeaturesList() []string { return r.TrackFeatures }

// DistString renders conda's "channel::name-version-build" display form.
func (r *PackageRecord) DistString() string {
	return r.Channel.Canonical + "::" + r.Name + "-" + r.Version.String() + "-" + r.Build
}

// NameKey is the (channel, subdir, name) grouping conda uses to bucket
// candidates for a single solver variable.
type NameKey struct {
	Channel string
	Subdir  string
	Name    string
}

// NameKey returns r's grouping key.
func (r *PackageRecord) NameKey() NameKey {
	return NameKey{Channel: r.Channel.Canonical, Subdir: r.Subdir, Name: r.Name}
}

// PURL returns the package-url identifying r, for logging, the change
// report, and SBOM export — never consulted by matching logic.
func (r *PackageRecord) PURL() packageurl.PackageURL {
	q := packageurl.QualifiersFromMap(map[string]string{
		"subdir": r.Subdir,
		"build":  r.Build,
	})
	return packageurl.NewPackageURL(packageurl.TypeConda, r.Channel.Canonical, r.Name, r.Version.String(), q, "")
}

// FeatureRecord returns a synthetic PackageRecord representing a feature
// provider, conda's "<name>@" feature-package convention used so the
// solver can reason about `features`/`track_features` uniformly with
// ordinary dependencies.
func FeatureRecord(name string) *PackageRecord {
	return &PackageRecord{
		Name:    name + "@",
		Version: version.MustParse("0"),
		Build:   "0",
		Channel: Channel{Canonical: "@"},
		Subdir:  "noarch",
	}
}

// PackageCacheRecord is a PackageRecord materialized into a local package
// cache directory.
type PackageCacheRecord struct {
	PackageRecord

	PackageTarballFullPath string // path to the archive, empty if not fetched
	ExtractedPackageDir    string // path to the extracted tree, empty if not extracted
}

// IsFetched reports whether the archive has been downloaded.
func (r *PackageCacheRecord) IsFetched() bool { return r.PackageTarballFullPath != "" }

// IsExtracted reports whether the archive has been extracted.
func (r *PackageCacheRecord) IsExtracted() bool { return r.ExtractedPackageDir != "" }

// TarballBasename returns the archive's base filename.
func (r *PackageCacheRecord) TarballBasename() string { return r.Fn }

// PathType classifies one entry of a PrefixRecord's Files/PathsData.
type PathType string

const (
	PathHardlink              PathType = "hardlink"
	PathSoftlink              PathType = "softlink"
	PathDirectory             PathType = "directory"
	PathPyc                   PathType = "pyc"
	PathUnixEntryPoint        PathType = "unix_python_entry_point"
	PathWindowsEntryPointExe  PathType = "windows_python_entry_point_exe"
	PathWindowsEntryPointScript PathType = "windows_python_entry_point_script"
)

// FileMode classifies whether a prefix-placeholder file is textual or
// binary, which determines how the placeholder substitution is performed.
type FileMode string

const (
	FileModeText   FileMode = "text"
	FileModeBinary FileMode = "binary"
)

// PathData describes one file recorded by a PrefixRecord.
type PathData struct {
	Path             string
	PathType         PathType
	SHA256           *Digest
	SHA256InPrefix   *Digest // digest after prefix-placeholder substitution, if any
	SizeInBytes      int64
	PrefixPlaceholder string
	FileMode         FileMode
	NoLink           bool
}

// Link describes where a PrefixRecord's files were linked from.
type Link struct {
	Source string
	Type   string // "hardlink" | "softlink" | "copy" | "directory"
}

// PrefixRecord is a PackageRecord installed into an environment prefix.
type PrefixRecord struct {
	PackageRecord

	PackageTarballFullPath string
	ExtractedPackageDir    string

	Files    []string
	PathsData []PathData
	Link     Link

	RequestedSpec string // the user-facing spec string that led to this install, if any
}
