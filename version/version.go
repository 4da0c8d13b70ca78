// Package version implements conda's version ordering, a superset of the
// PEP-440-ish scheme used by the Python ecosystem generalized to the
// arbitrary alphanumeric segments conda packages use in the wild.
package version

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// component is one atomic, comparable piece of a version segment: either a
// numeric run or an alphabetic run, plus a handful of sentinel strings that
// sort specially ("dev", "post", "" and a leading "_" separator).
type component struct {
	num    int64
	str    string
	isNum  bool
}

// order returns the sort rank of a component, matching the scheme described
// in spec.md §4.4: dev < "_" < alpha/beta/rc labels < (number) < post. An
// empty or missing atom ranks with the numbers as zero.
func (c component) order() int {
	switch {
	case c.isNum:
		return 1
	case c.str == "dev":
		return -2
	case c.str == "_":
		return -1
	case c.str == "":
		return 1
	case c.str == "post":
		return 3
	default:
		return 0
	}
}

func (a component) compare(b component) int {
	oa, ob := a.order(), b.order()
	switch {
	case oa != ob:
		return cmpInt(oa, ob)
	case oa == 1: // both numeric
		return cmpInt64(a.num, b.num)
	case oa == 0: // both an ordinary alpha label
		return strings.Compare(a.str, b.str)
	default:
		return 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// segment is a dot-separated piece of a version string, itself broken into
// alternating digit/non-digit components.
type segment []component

var atomPattern = regexp.MustCompile(`[0-9]+|[^0-9]+`)

func parseSegment(s string) segment {
	if s == "" {
		return segment{{str: "", isNum: false}}
	}
	parts := atomPattern.FindAllString(s, -1)
	seg := make(segment, 0, len(parts)+1)
	// A segment starting with a letter gets an implied leading 0, so
	// "1.0.post1" orders as "1.0.0post1".
	if ch := parts[0][0]; ch < '0' || ch > '9' {
		seg = append(seg, component{isNum: true})
	}
	for _, p := range parts {
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			seg = append(seg, component{num: n, isNum: true})
			continue
		}
		seg = append(seg, component{str: strings.ToLower(p)})
	}
	return seg
}

func (a segment) compare(b segment) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var ca, cb component
		if i < len(a) {
			ca = a[i]
		} else {
			ca = component{str: ""}
		}
		if i < len(b) {
			cb = b[i]
		} else {
			cb = component{str: ""}
		}
		if r := ca.compare(cb); r != 0 {
			return r
		}
	}
	return 0
}

// Version is a parsed, comparable conda version string.
//
// The zero Version is not meaningful; use [Parse].
type Version struct {
	raw      string
	epoch    int64
	segments []segment // dot/underscore-separated release segments
	local    []segment // segments after a "+" local version, nil if absent
}

// String returns the original, unparsed version string.
func (v Version) String() string { return v.raw }

var localSplit = regexp.MustCompile(`[+]`)

// Parse parses a conda version string.
//
// Conda versions are dot- or underscore-separated runs of alternating
// numeric and alphabetic atoms, with an optional "<epoch>!" prefix and an
// optional "+<local>" suffix. Unlike PEP 440, arbitrary alphabetic atoms are
// permitted in any segment, not only in a fixed set of pre/post/dev
// keywords: "1.1.dev1", "1.1a1", "1.1.0post1" are all well-formed distinct
// versions and compare atom-by-atom.
func Parse(s string) (Version, error) {
	v := Version{raw: s}
	rest := s

	if i := strings.IndexByte(rest, '!'); i >= 0 {
		n, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return Version{}, &ParseError{Input: s, Reason: "invalid epoch"}
		}
		v.epoch = n
		rest = rest[i+1:]
	}

	if parts := localSplit.Split(rest, 2); len(parts) == 2 {
		rest = parts[0]
		v.local = splitSegments(parts[1])
	}

	v.segments = splitSegments(rest)
	if len(v.segments) == 0 {
		return Version{}, &ParseError{Input: s, Reason: "empty version"}
	}
	return v, nil
}

// MustParse works like [Parse] but panics on error. Intended for tests and
// static constraint tables.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func splitSegments(s string) []segment {
	s = strings.ReplaceAll(s, "_", ".")
	s = strings.Trim(s, ".")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	segs := make([]segment, len(parts))
	for i, p := range parts {
		segs[i] = parseSegment(p)
	}
	return segs
}

// ParseError is returned by [Parse] for malformed version strings.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return "version: cannot parse " + strconv.Quote(e.Input) + ": " + e.Reason
}

// Compare returns -1, 0 or 1 according to whether v sorts before, the same
// as, or after o.
func (v Version) Compare(o Version) int {
	if v.epoch != o.epoch {
		return cmpInt64(v.epoch, o.epoch)
	}
	n := len(v.segments)
	if len(o.segments) > n {
		n = len(o.segments)
	}
	empty := segment{{str: ""}}
	for i := 0; i < n; i++ {
		a, b := empty, empty
		if i < len(v.segments) {
			a = v.segments[i]
		}
		if i < len(o.segments) {
			b = o.segments[i]
		}
		if r := a.compare(b); r != 0 {
			return r
		}
	}
	return compareLocal(v.local, o.local)
}

// compareLocal orders a missing local segment below any present one, per
// PEP 440's rule (which conda mirrors for the "+local" suffix): a plain
// version is considered older than any build-tagged variant of itself.
func compareLocal(a, b []segment) int {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0
	case len(a) == 0:
		return -1
	case len(b) == 0:
		return 1
	}
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	empty := segment{{str: ""}}
	for i := 0; i < n; i++ {
		x, y := empty, empty
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if r := x.compare(y); r != 0 {
			return r
		}
	}
	return 0
}

// MarshalJSON encodes a Version as its original string form, so a
// PrefixRecord round-trips through conda-meta/*.json without exposing
// Version's internal parsed representation.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}

// UnmarshalJSON parses a Version from its string form.
func (v *Version) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Equal reports whether v and o compare equal.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// Less reports whether v sorts strictly before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Versions implements sort.Interface.
type Versions []Version

func (vs Versions) Len() int           { return len(vs) }
func (vs Versions) Less(i, j int) bool { return vs[i].Less(vs[j]) }
func (vs Versions) Swap(i, j int)      { vs[i], vs[j] = vs[j], vs[i] }
