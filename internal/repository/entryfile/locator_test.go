package entryfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/plugin-publisher/internal/domain/release"
)

const samplePlugin = `<?php
/**
 * Plugin Name: My Plugin
 * Description: Uploads things. Requires at least: 5.8
 * Version: 1.0.0
 * Author: Somebody
 */

if ( ! defined( 'ABSPATH' ) ) {
	exit;
}

define( 'MY_PLUGIN_VERSION', '1.0.0' );
define( 'MY_PLUGIN_DIR', plugin_dir_path( __FILE__ ) );
`

// writeProject creates a project directory with the given entry file contents.
func writeProject(t *testing.T, contents string) *release.Project {
	t.Helper()

	root := filepath.Join(t.TempDir(), "my-plugin")
	require.NoError(t, os.MkdirAll(root, 0o755))

	project, err := release.NewProject(root, "my-plugin")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(project.EntryFile(), []byte(contents), 0o644))

	return project
}

// TestLocator_Read returns the shared version of both markers.
func TestLocator_Read(t *testing.T) {
	t.Parallel()

	project := writeProject(t, samplePlugin)

	v, err := NewLocator("").Read(project)
	require.NoError(t, err)
	require.Equal(t, "1.0.0", v.String())

	v, err = NewLocator("MY_PLUGIN_VERSION").Read(project)
	require.NoError(t, err)
	require.Equal(t, "1.0.0", v.String())

	_, err = NewLocator("OTHER_VERSION").Read(project)
	require.ErrorIs(t, err, release.ErrVersionNotFound)
}

// TestLocator_WriteRoundTrip rewrites both markers and keeps every other byte.
func TestLocator_WriteRoundTrip(t *testing.T) {
	t.Parallel()

	project := writeProject(t, samplePlugin)
	locator := NewLocator("")

	next := release.MustParseVersion("1.0.1")
	require.NoError(t, locator.Write(project, next))

	got, err := locator.Read(project)
	require.NoError(t, err)
	require.Equal(t, next, got)

	contents, err := os.ReadFile(project.EntryFile())
	require.NoError(t, err)
	require.Equal(t, strings.ReplaceAll(samplePlugin, "1.0.0", "1.0.1"), string(contents))

	// Writing the original version back restores the file byte for byte.
	require.NoError(t, locator.Write(project, release.MustParseVersion("1.0.0")))

	contents, err = os.ReadFile(project.EntryFile())
	require.NoError(t, err)
	require.Equal(t, samplePlugin, string(contents))

	// No staging files are left behind.
	entries, err := os.ReadDir(project.Root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestLocator_WriteLongerVersion handles replacement values of a different length.
func TestLocator_WriteLongerVersion(t *testing.T) {
	t.Parallel()

	project := writeProject(t, samplePlugin)
	locator := NewLocator("")

	require.NoError(t, locator.Write(project, release.MustParseVersion("10.20.300")))

	contents, err := os.ReadFile(project.EntryFile())
	require.NoError(t, err)
	require.Equal(t, strings.ReplaceAll(samplePlugin, "1.0.0", "10.20.300"), string(contents))
}

// TestLocator_Mismatch fails on read and leaves the file untouched on write.
func TestLocator_Mismatch(t *testing.T) {
	t.Parallel()

	broken := strings.Replace(samplePlugin, "'1.0.0'", "'1.0.2'", 1)
	project := writeProject(t, broken)
	locator := NewLocator("")

	_, err := locator.Read(project)
	require.ErrorIs(t, err, release.ErrVersionMismatch)

	err = locator.Write(project, release.MustParseVersion("2.0.0"))
	require.ErrorIs(t, err, release.ErrVersionMismatch)

	contents, err := os.ReadFile(project.EntryFile())
	require.NoError(t, err)
	require.Equal(t, broken, string(contents))
}

// TestLocator_NotFound reports a missing header or constant marker.
func TestLocator_NotFound(t *testing.T) {
	t.Parallel()

	noHeader := strings.Replace(samplePlugin, " * Version: 1.0.0\n", "", 1)
	_, err := NewLocator("").Read(writeProject(t, noHeader))
	require.ErrorIs(t, err, release.ErrVersionNotFound)

	noConstant := strings.Replace(samplePlugin, "define( 'MY_PLUGIN_VERSION', '1.0.0' );\n", "", 1)
	_, err = NewLocator("").Read(writeProject(t, noConstant))
	require.ErrorIs(t, err, release.ErrVersionNotFound)

	garbage := strings.Replace(samplePlugin, " * Version: 1.0.0", " * Version: latest", 1)
	_, err = NewLocator("").Read(writeProject(t, garbage))
	require.ErrorIs(t, err, release.ErrVersionNotFound)
}

// TestLocator_DoubleQuotes accepts define() calls written with double quotes.
func TestLocator_DoubleQuotes(t *testing.T) {
	t.Parallel()

	doubled := strings.Replace(samplePlugin, "define( 'MY_PLUGIN_VERSION', '1.0.0' );",
		`define("MY_PLUGIN_VERSION", "1.0.0");`, 1)
	project := writeProject(t, doubled)

	require.NoError(t, NewLocator("").Write(project, release.MustParseVersion("1.1.0")))

	contents, err := os.ReadFile(project.EntryFile())
	require.NoError(t, err)
	require.Contains(t, string(contents), `define("MY_PLUGIN_VERSION", "1.1.0");`)
	require.Contains(t, string(contents), " * Version: 1.1.0\n")
}

// TestLocator_PluginName reads the header and falls back to the slug.
func TestLocator_PluginName(t *testing.T) {
	t.Parallel()

	name, err := NewLocator("").PluginName(writeProject(t, samplePlugin))
	require.NoError(t, err)
	require.Equal(t, "My Plugin", name)

	withoutHeader := strings.Replace(samplePlugin, " * Plugin Name: My Plugin\n", "", 1)

	name, err = NewLocator("").PluginName(writeProject(t, withoutHeader))
	require.NoError(t, err)
	require.Equal(t, "my-plugin", name)
}

// TestLocator_SeveralVersionConstants picks the constant named after the slug over earlier *VERSION defines.
func TestLocator_SeveralVersionConstants(t *testing.T) {
	t.Parallel()

	contents := `<?php
/**
 * Plugin Name: My Plugin
 * Version: 1.0.0
 */

define( 'MY_PLUGIN_MIN_PHP_VERSION', '7.4.0' );
define( 'MY_PLUGIN_MIN_WP_VERSION', '5.8' );
define( 'MY_PLUGIN_VERSION', '1.0.0' );
`
	project := writeProject(t, contents)
	locator := NewLocator("")

	v, err := locator.Read(project)
	require.NoError(t, err)
	require.Equal(t, "1.0.0", v.String())

	require.NoError(t, locator.Write(project, release.MustParseVersion("1.0.1")))

	updated, err := os.ReadFile(project.EntryFile())
	require.NoError(t, err)
	require.Equal(t, strings.ReplaceAll(contents, "1.0.0", "1.0.1"), string(updated))
	require.Contains(t, string(updated), "define( 'MY_PLUGIN_MIN_PHP_VERSION', '7.4.0' );")

	// The slug constant is authoritative when present.
	drifted := strings.Replace(contents, "'MY_PLUGIN_VERSION', '1.0.0'", "'MY_PLUGIN_VERSION', '1.0.2'", 1)
	_, err = locator.Read(writeProject(t, drifted))
	require.ErrorIs(t, err, release.ErrVersionMismatch)
}

// TestLocator_OtherConstantName matches a *VERSION constant that agrees with the header.
func TestLocator_OtherConstantName(t *testing.T) {
	t.Parallel()

	contents := `<?php
/**
 * Plugin Name: My Plugin
 * Version: 2.1.0
 */

define( 'MP_MIN_PHP_VERSION', '7.4.0' );
define( 'MP_VERSION', '2.1.0' );
`
	v, err := NewLocator("").Read(writeProject(t, contents))
	require.NoError(t, err)
	require.Equal(t, "2.1.0", v.String())

	// No constant agrees with the header.
	drifted := strings.Replace(contents, "'MP_VERSION', '2.1.0'", "'MP_VERSION', '2.0.0'", 1)
	_, err = NewLocator("").Read(writeProject(t, drifted))
	require.ErrorIs(t, err, release.ErrVersionMismatch)

	require.Equal(t, "MY_PLUGIN_VERSION", SlugConstant("my-plugin"))
}
