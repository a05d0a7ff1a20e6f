package release

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestParseVersion covers valid triples and the formats the entry file never uses.
func TestParseVersion(t *testing.T) {
	t.Parallel()

	v, err := ParseVersion(" 1.20.3 ")
	require.NoError(t, err)
	require.Equal(t, Version{Major: 1, Minor: 20, Patch: 3}, v)
	require.Equal(t, "1.20.3", v.String())

	for _, bad := range []string{"", "1.2", "v1.2.3", "1.2.3-beta.1", "1.2.3+build", "a.b.c", "01.2.3"} {
		_, err = ParseVersion(bad)
		require.Error(t, err, bad)
	}
}

// TestBump checks the bump rule and strict growth for every kind.
func TestBump(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from string
		kind BumpKind
		want string
	}{
		{"1.0.0", BumpPatch, "1.0.1"},
		{"1.2.9", BumpPatch, "1.2.10"},
		{"1.2.3", BumpMinor, "1.3.0"},
		{"1.9.7", BumpMinor, "1.10.0"},
		{"1.2.3", BumpMajor, "2.0.0"},
		{"0.0.0", BumpMajor, "1.0.0"},
	}

	for _, tc := range cases {
		from := MustParseVersion(tc.from)
		got := from.Bump(tc.kind)
		require.Equal(t, tc.want, got.String())
		require.True(t, got.GreaterThan(from))
	}
}

// TestBump_OnlyOneFamilyChanges walks a grid of versions and checks which components move.
func TestBump_OnlyOneFamilyChanges(t *testing.T) {
	t.Parallel()

	for major := uint64(0); major < 3; major++ {
		for minor := uint64(0); minor < 3; minor++ {
			for patch := uint64(0); patch < 3; patch++ {
				v := Version{Major: major, Minor: minor, Patch: patch}

				p := v.Bump(BumpPatch)
				require.Equal(t, Version{Major: major, Minor: minor, Patch: patch + 1}, p)

				m := v.Bump(BumpMinor)
				require.Equal(t, Version{Major: major, Minor: minor + 1}, m)

				maj := v.Bump(BumpMajor)
				require.Equal(t, Version{Major: major + 1}, maj)

				for _, next := range []Version{p, m, maj} {
					require.Equal(t, 1, next.Compare(v))
					require.Equal(t, -1, v.Compare(next))
				}
			}
		}
	}
}

// TestCompare verifies component-wise ordering.
func TestCompare(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, MustParseVersion("1.2.3").Compare(MustParseVersion("1.2.3")))
	require.Equal(t, -1, MustParseVersion("1.2.3").Compare(MustParseVersion("1.10.0")))
	require.Equal(t, 1, MustParseVersion("2.0.0").Compare(MustParseVersion("1.99.99")))
	require.Equal(t, -1, MustParseVersion("1.2.3").Compare(MustParseVersion("1.2.4")))
}

// TestParseBumpKind accepts any casing and rejects unknown kinds.
func TestParseBumpKind(t *testing.T) {
	t.Parallel()

	kind, err := ParseBumpKind(" Minor ")
	require.NoError(t, err)
	require.Equal(t, BumpMinor, kind)

	_, err = ParseBumpKind("huge")
	require.ErrorIs(t, err, ErrInvalidRequest)
}
