package release

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// BumpKind selects which component of a version is incremented.
type BumpKind string

const (
	// BumpPatch increments the patch component.
	BumpPatch BumpKind = "patch"
	// BumpMinor increments the minor component and resets patch.
	BumpMinor BumpKind = "minor"
	// BumpMajor increments the major component and resets minor and patch.
	BumpMajor BumpKind = "major"
)

// BumpKinds lists the accepted bump kinds in prompt order.
func BumpKinds() []BumpKind {
	return []BumpKind{BumpPatch, BumpMinor, BumpMajor}
}

// ParseBumpKind converts user input into a BumpKind.
func ParseBumpKind(s string) (BumpKind, error) {
	kind := BumpKind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case BumpPatch, BumpMinor, BumpMajor:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown bump kind %q (use patch, minor or major)", ErrInvalidRequest, s)
	}
}

// Version is a plain major.minor.patch release number.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// ParseVersion parses a strict "major.minor.patch" string.
// Pre-release and build suffixes are rejected because the entry file never carries them.
func ParseVersion(s string) (Version, error) {
	parsed, err := semver.StrictNewVersion(strings.TrimSpace(s))
	if err != nil {
		return Version{}, fmt.Errorf("parse version %q: %w", s, err)
	}

	if parsed.Prerelease() != "" || parsed.Metadata() != "" {
		return Version{}, fmt.Errorf("parse version %q: suffixes are not supported", s)
	}

	return Version{
		Major: parsed.Major(),
		Minor: parsed.Minor(),
		Patch: parsed.Patch(),
	}, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}

	return v
}

// String renders the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Bump returns the next version for the given kind.
// An unknown kind is treated as a patch bump so the result is always greater than v.
func (v Version) Bump(kind BumpKind) Version {
	switch kind {
	case BumpMajor:
		return Version{Major: v.Major + 1}
	case BumpMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

// Compare returns -1, 0 or 1 when v is lower than, equal to or greater than other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return compareUint(v.Major, other.Major)
	case v.Minor != other.Minor:
		return compareUint(v.Minor, other.Minor)
	default:
		return compareUint(v.Patch, other.Patch)
	}
}

// GreaterThan reports whether v is strictly greater than other.
func (v Version) GreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
