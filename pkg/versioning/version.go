// Package versioning parses and orders numeric release versions and the names of files and tags
// which carry them.
package versioning

import (
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// NumericPattern matches a version made of dot-separated non-negative integers, e.g. `3.2.0`.
const NumericPattern = `\d+(?:\.\d+)*`

var numericRe = regexp.MustCompile(`^` + NumericPattern + `$`)

// Version is an immutable release version made of dot-separated non-negative integers. Versions
// with differing numbers of components are compared as if the shorter one were padded with zeros,
// so `3.2` and `3.2.0` are equal.
type Version struct {
	v *version.Version
}

// Parse parses a string of dot-separated non-negative integers as a Version.
func Parse(s string) (Version, error) {
	if !numericRe.MatchString(s) {
		return Version{}, errors.Errorf(
			"invalid version %q: expected dot-separated non-negative integers", s,
		)
	}
	v, err := version.NewVersion(s)
	if err != nil {
		return Version{}, errors.Wrapf(err, "couldn't parse version %q", s)
	}
	return Version{v: v}, nil
}

// MustParse is like [Parse] but panics if the string can't be parsed.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero checks whether the Version is the zero value (i.e. it was never parsed).
func (v Version) IsZero() bool {
	return v.v == nil
}

// Compare returns -1, 0, or 1 depending on whether v is lower than, equal to, or higher than w.
// The zero Version is lower than every parsed Version.
func (v Version) Compare(w Version) int {
	switch {
	case v.v == nil && w.v == nil:
		return 0
	case v.v == nil:
		return -1
	case w.v == nil:
		return 1
	}
	return v.v.Compare(w.v)
}

func (v Version) LessThan(w Version) bool {
	return v.Compare(w) < 0
}

func (v Version) GreaterThan(w Version) bool {
	return v.Compare(w) > 0
}

func (v Version) Equal(w Version) bool {
	return v.Compare(w) == 0
}

// Segments returns the numeric components of the version as written.
func (v Version) Segments() []int {
	if v.v == nil {
		return nil
	}
	segments := v.v.Segments()
	return segments[:strings.Count(v.v.Original(), ".")+1]
}

// String returns the version as it was originally written.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// Tag returns the name of the git tag which marks the version, e.g. `v3.2.0`.
func (v Version) Tag() string {
	return TagPrefix + v.String()
}

// Max returns the highest of the provided versions, or the zero Version if none were provided.
func Max(versions ...Version) Version {
	var highest Version
	for _, v := range versions {
		if v.GreaterThan(highest) {
			highest = v
		}
	}
	return highest
}
