// Package compat checks condacore's own version against the minimum a
// caller (a plugin, a saved transaction plan, an on-disk lockfile) was
// built against, using semver rather than conda's version scheme since
// this is strictly condacore's own release versioning.
package compat

import (
	"fmt"
	"runtime/debug"

	"github.com/Masterminds/semver"
)

// Version is condacore's own semantic version, resolved from build info
// when available (falls back to "0.0.0-unknown" outside a module build,
// e.g. `go run`).
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "0.0.0-unknown"
	}
	return info.Main.Version
}

// CheckConstraint reports whether condacore's own version satisfies the
// given semver constraint string (e.g. ">= 1.2.0, < 2.0.0"), for verifying
// a lockfile or plugin was produced by a compatible release.
func CheckConstraint(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("compat: invalid constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(Version())
	if err != nil {
		return false, fmt.Errorf("compat: unparseable condacore version %q: %w", Version(), err)
	}
	return c.Check(v), nil
}
