// Package matchspec implements conda's package constraint language:
// parsing a MatchSpec string and testing it against a package record.
package matchspec

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/conda-incubator/condacore/version"
)

// Record is the subset of condacore.PackageRecord a MatchSpec needs to test
// against. Declared locally rather than importing the root package;
// condacore.PackageRecord satisfies it structurally.
type Record interface {
	PackageName() string
	PackageVersion() version.Version
	PackageBuild() string
	PackageBuildNumber() int
	ChannelName() string
	SubdirName() string
	TrackFeaturesList() []string
}

// MatchSpec is a parsed package constraint.
//
// Its zero value matches nothing useful; build one with [Parse].
type MatchSpec struct {
	raw string

	Name     string // required; "*" matches any name
	Channel  string // optional canonical channel name
	Subdir   string // optional
	Build    string // optional glob, e.g. "py39*"
	Optional bool   // spec.md §3: optional flag

	VersionRanges []versionRange // all must match; empty means unconstrained
	TrackFeature  string         // optional: require this feature be tracked
}

type versionOp int

const (
	opEq versionOp = iota
	opNe
	opGe
	opLe
	opGt
	opLt
	opCompatible // "=1.2" prefix match, conda's "starts with" operator
)

type versionRange struct {
	op  versionOp
	ver version.Version
	raw string
}

// String returns the canonical textual form of the spec.
func (m MatchSpec) String() string { return m.raw }

// specPattern splits "channel/subdir::name[version[build]][features]"
// forms. Conda's real grammar is richer (key=value bracket syntax); this
// covers the forms spec.md §3 and §6 require: name, version range operators,
// and an optional build glob.
var specPattern = regexp.MustCompile(`^(?:([^/:]+)(?:/([^:]+))?::)?([^\s=!<>]+)\s*((?:[=!<>]=?|=)[^\s]+)?(?:\s+([^\s]+))?$`)

// Parse parses a MatchSpec string such as "numpy>=1.20,<2", "python=3.11",
// "pytorch::pytorch=2.0=py3.11_cuda*".
func Parse(s string) (MatchSpec, error) {
	m := MatchSpec{raw: s}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return m, &ParseError{Input: s, Reason: "empty spec"}
	}

	// Features bracket, e.g. "numpy[track_features=mkl]" — parsed first since
	// it can appear anywhere after the name.
	if i := strings.IndexByte(trimmed, '['); i >= 0 && strings.HasSuffix(trimmed, "]") {
		inner := trimmed[i+1 : len(trimmed)-1]
		trimmed = trimmed[:i]
		for _, kv := range strings.Split(inner, ",") {
			kv = strings.TrimSpace(kv)
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				continue
			}
			switch strings.TrimSpace(parts[0]) {
			case "track_features":
				m.TrackFeature = strings.TrimSpace(parts[1])
			case "build":
				m.Build = strings.TrimSpace(parts[1])
			case "subdir":
				m.Subdir = strings.TrimSpace(parts[1])
			}
		}
	}

	ms := specPattern.FindStringSubmatch(trimmed)
	if ms == nil {
		return m, &ParseError{Input: s, Reason: "malformed spec"}
	}
	m.Channel, m.Name = ms[1], ms[3]
	if ms[2] != "" {
		m.Subdir = ms[2]
	}
	if m.Name == "" {
		return m, &ParseError{Input: s, Reason: "missing name"}
	}
	if ms[5] != "" {
		m.Build = ms[5]
	}

	vs := ms[4]
	// "=version=build": the second '=' starts the build glob.
	if strings.HasPrefix(vs, "=") && !strings.HasPrefix(vs, "==") {
		if i := strings.IndexByte(vs[1:], '='); i >= 0 && !strings.ContainsAny(vs[1:i+1], ",!<>") {
			m.Build = vs[i+2:]
			vs = vs[:i+1]
		}
	}
	if vs != "" {
		ranges, err := parseVersionRanges(vs)
		if err != nil {
			return m, &ParseError{Input: s, Reason: err.Error()}
		}
		m.VersionRanges = ranges
	}
	return m, nil
}

func parseVersionRanges(s string) ([]versionRange, error) {
	parts := strings.Split(s, ",")
	out := make([]versionRange, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		var op versionOp
		var rest string
		switch {
		case strings.HasPrefix(p, ">="):
			op, rest = opGe, p[2:]
		case strings.HasPrefix(p, "<="):
			op, rest = opLe, p[2:]
		case strings.HasPrefix(p, "!="):
			op, rest = opNe, p[2:]
		case strings.HasPrefix(p, "=="):
			op, rest = opEq, p[2:]
		case strings.HasPrefix(p, ">"):
			op, rest = opGt, p[1:]
		case strings.HasPrefix(p, "<"):
			op, rest = opLt, p[1:]
		case strings.HasPrefix(p, "="):
			op, rest = opCompatible, p[1:]
		default:
			op, rest = opCompatible, p
		}
		rest = strings.TrimSuffix(rest, ".*")
		v, err := version.Parse(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, versionRange{op: op, ver: v, raw: rest})
	}
	return out, nil
}

// ParseError is returned by [Parse] for malformed spec strings.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return "matchspec: cannot parse " + strconv.Quote(e.Input) + ": " + e.Reason
}

// Matches reports whether r satisfies every constraint in m.
func (m MatchSpec) Matches(r Record) bool {
	if m.Name != "*" && m.Name != r.PackageName() {
		return false
	}
	if m.Channel != "" && m.Channel != r.ChannelName() {
		return false
	}
	if m.Subdir != "" && m.Subdir != r.SubdirName() {
		return false
	}
	if m.Build != "" {
		ok, err := filepath.Match(m.Build, r.PackageBuild())
		if err != nil || !ok {
			return false
		}
	}
	for _, vr := range m.VersionRanges {
		if !vr.matches(r.PackageVersion()) {
			return false
		}
	}
	if m.TrackFeature != "" {
		found := false
		for _, f := range r.TrackFeaturesList() {
			if f == m.TrackFeature {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (vr versionRange) matches(v version.Version) bool {
	c := v.Compare(vr.ver)
	switch vr.op {
	case opEq:
		return c == 0
	case opNe:
		return c != 0
	case opGe:
		return c >= 0
	case opLe:
		return c <= 0
	case opGt:
		return c > 0
	case opLt:
		return c < 0
	case opCompatible:
		return strings.HasPrefix(v.String(), vr.raw)
	default:
		return false
	}
}
