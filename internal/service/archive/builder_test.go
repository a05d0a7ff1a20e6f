package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/plugin-publisher/internal/domain/release"
)

// writeTree creates files (and their parents) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, contents := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
	}
}

// newProject creates an empty project directory named after dirName.
func newProject(t *testing.T, dirName, slug string) *release.Project {
	t.Helper()

	root := filepath.Join(t.TempDir(), dirName)
	require.NoError(t, os.MkdirAll(root, 0o755))

	project, err := release.NewProject(root, slug)
	require.NoError(t, err)

	return project
}

// zipNames lists entry names of the archive at path.
func zipNames(t *testing.T, path string) []string {
	t.Helper()

	r, err := zip.OpenReader(path)
	require.NoError(t, err)

	defer func() {
		_ = r.Close()
	}()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}

	return names
}

// TestBuild_AppliesExclusions builds a realistic tree and checks every rule family.
func TestBuild_AppliesExclusions(t *testing.T) {
	t.Parallel()

	project := newProject(t, "checkout-dir", "my-plugin")
	writeTree(t, project.Root, map[string]string{
		"my-plugin.php":                 "<?php // Version: 1.0.0",
		"readme.txt":                    "readme",
		"includes/a.php":                "a",
		"includes/deep/b.php":           "b",
		"assets/js/app.js":              "app",
		"assets/js/app.js.map":          "map",
		"old.zip":                       "zip",
		"includes/deep/c.TAR.GZ":        "tgz",
		"old/x.php":                     "x",
		"includes/old/y.php":            "y",
		".env":                          "SECRET=1",
		"includes/.env":                 "SECRET=2",
		"includes/.env.local":           "SECRET=3",
		"node_modules/z.js":             "z",
		".plugin-publisher/old.json":    "{}",
		"logs/debug.log":                "log",
		"tests/plugin_test.php":         "t",
		".distignore":                   "*.map\ntests/\n",
		"includes/deep/deeper/.env":     "SECRET=4",
		"includes/deep/deeper/keep.php": "keep",
	})

	builder := NewBuilder(DefaultRules(), "")

	archive, err := builder.Build(context.Background(), project, release.MustParseVersion("1.0.1"))
	require.NoError(t, err)
	require.Equal(t, "my-plugin-1.0.1.zip", archive.Name)
	require.Equal(t, filepath.Join(project.Root, ".plugin-publisher", "my-plugin-1.0.1.zip"), archive.Path)

	want := []string{
		"my-plugin/assets/js/app.js",
		"my-plugin/includes/a.php",
		"my-plugin/includes/deep/b.php",
		"my-plugin/includes/deep/deeper/keep.php",
		"my-plugin/logs/",
		"my-plugin/my-plugin.php",
		"my-plugin/readme.txt",
	}

	require.Equal(t, want, archive.Entries)
	require.Equal(t, 6, archive.Files)
	require.Equal(t, want, zipNames(t, archive.Path))

	for _, name := range archive.Entries {
		require.True(t, strings.HasPrefix(name, "my-plugin/"), name)
	}

	// Files already in the output directory are left in place.
	_, err = os.Stat(filepath.Join(project.Root, ".plugin-publisher", "old.json"))
	require.NoError(t, err)
}

// TestBuild_KeepsCompiledAssets archives a dist/ folder and skips only the output directory.
func TestBuild_KeepsCompiledAssets(t *testing.T) {
	t.Parallel()

	project := newProject(t, "my-plugin", "my-plugin")
	writeTree(t, project.Root, map[string]string{
		"my-plugin.php":                    "<?php",
		"dist/js/frontend.js":              "js",
		"dist/css/style.css":               "css",
		".plugin-publisher/my-plugin.json": "{}",
	})

	archive, err := NewBuilder(DefaultRules(), "").Build(context.Background(), project, release.MustParseVersion("1.0.1"))
	require.NoError(t, err)
	require.Equal(t, []string{
		"my-plugin/dist/css/style.css",
		"my-plugin/dist/js/frontend.js",
		"my-plugin/my-plugin.php",
	}, archive.Entries)
	require.Equal(t, 3, archive.Files)

	// A configured output directory inside the root is excluded by its path only.
	writeTree(t, project.Root, map[string]string{
		"release/out/my-plugin.json": "{}",
		"includes/release/out/a.php": "a",
	})

	archive, err = NewBuilder(DefaultRules(), "release/out").Build(context.Background(), project, release.MustParseVersion("1.0.2"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(project.Root, "release", "out", "my-plugin-1.0.2.zip"), archive.Path)
	require.Equal(t, []string{
		"my-plugin/.plugin-publisher/my-plugin.json",
		"my-plugin/dist/css/style.css",
		"my-plugin/dist/js/frontend.js",
		"my-plugin/includes/release/out/a.php",
		"my-plugin/my-plugin.php",
	}, archive.Entries)
}

// TestBuild_Deterministic produces identical bytes for identical input.
func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	project := newProject(t, "my-plugin", "my-plugin")
	writeTree(t, project.Root, map[string]string{
		"my-plugin.php":  "<?php",
		"includes/a.php": strings.Repeat("a", 4096),
	})

	version := release.MustParseVersion("2.0.0")

	first, err := NewBuilder(DefaultRules(), t.TempDir()).Build(context.Background(), project, version)
	require.NoError(t, err)

	// Touch a file so only the modification time differs.
	require.NoError(t, os.Chtimes(filepath.Join(project.Root, "includes", "a.php"),
		fixedModTime.AddDate(30, 0, 0), fixedModTime.AddDate(30, 0, 0)))

	second, err := NewBuilder(DefaultRules(), t.TempDir()).Build(context.Background(), project, version)
	require.NoError(t, err)

	firstBytes, err := os.ReadFile(first.Path)
	require.NoError(t, err)

	secondBytes, err := os.ReadFile(second.Path)
	require.NoError(t, err)

	require.True(t, bytes.Equal(firstBytes, secondBytes))
	require.NotEmpty(t, first.Checksum)
	require.Equal(t, first.Checksum, second.Checksum)
}

// TestBuild_ContentsSurvive checks file contents after extraction.
func TestBuild_ContentsSurvive(t *testing.T) {
	t.Parallel()

	project := newProject(t, "my-plugin", "my-plugin")
	writeTree(t, project.Root, map[string]string{
		"my-plugin.php": "<?php echo 'hi';",
	})

	archive, err := NewBuilder(DefaultRules(), "").Build(context.Background(), project, release.MustParseVersion("1.0.0"))
	require.NoError(t, err)

	r, err := zip.OpenReader(archive.Path)
	require.NoError(t, err)

	defer func() {
		_ = r.Close()
	}()

	require.Len(t, r.File, 1)

	f, err := r.File[0].Open()
	require.NoError(t, err)

	defer func() {
		_ = f.Close()
	}()

	var buf bytes.Buffer

	_, err = buf.ReadFrom(f)
	require.NoError(t, err)
	require.Equal(t, "<?php echo 'hi';", buf.String())
}

// TestBuild_Errors covers a missing root and a tree emptied by the rules.
func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	missing := &release.Project{Root: filepath.Join(t.TempDir(), "gone"), Slug: "gone"}
	_, err := NewBuilder(DefaultRules(), "").Build(context.Background(), missing, release.MustParseVersion("1.0.0"))
	require.ErrorIs(t, err, release.ErrArchiveIO)

	project := newProject(t, "my-plugin", "my-plugin")
	writeTree(t, project.Root, map[string]string{
		".env":      "SECRET=1",
		"old/a.php": "a",
		"build.zip": "zip",
	})

	outputDir := t.TempDir()
	_, err = NewBuilder(DefaultRules(), outputDir).Build(context.Background(), project, release.MustParseVersion("1.0.0"))
	require.ErrorIs(t, err, release.ErrArchiveIO)

	// Nothing, not even a temporary file, is written on failure.
	leftovers, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

// TestBuild_Canceled stops on a canceled context.
func TestBuild_Canceled(t *testing.T) {
	t.Parallel()

	project := newProject(t, "my-plugin", "my-plugin")
	writeTree(t, project.Root, map[string]string{"my-plugin.php": "<?php"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(DefaultRules(), "").Build(ctx, project, release.MustParseVersion("1.0.0"))
	require.ErrorIs(t, err, context.Canceled)
}

// TestRules_MergeAndValidate extends the defaults from data.
func TestRules_MergeAndValidate(t *testing.T) {
	t.Parallel()

	merged := DefaultRules().Merge(Rules{
		Extensions: []string{".zip", ".psd"},
		Dirs:       []string{"vendor-src"},
		Paths:      []string{"art/source", "notes/draft.md"},
		Patterns:   []string{"docs/**"},
		IgnoreFile: ".buildignore",
	})

	require.Contains(t, merged.Extensions, ".psd")
	require.Equal(t, 1, strings.Count(strings.Join(merged.Extensions, ","), ".zip"))
	require.Contains(t, merged.Dirs, "vendor-src")
	require.Contains(t, merged.Patterns, "docs/**")
	require.Equal(t, []string{"art/source", "notes/draft.md"}, merged.Paths)
	require.Equal(t, ".buildignore", merged.IgnoreFile)
	require.NoError(t, merged.Validate())

	require.Error(t, Rules{Patterns: []string{"[unclosed"}}.Validate())

	project := newProject(t, "my-plugin", "my-plugin")
	writeTree(t, project.Root, map[string]string{
		"my-plugin.php":     "<?php",
		"art/logo.PSD":      "psd",
		"docs/guide/a.md":   "doc",
		"vendor-src/lib.c":  "c",
		".buildignore":      "*.md\n",
		"notes/summary.md":  "md",
		"notes/summary.txt": "txt",
		"art/source/a.txt":  "src",
		"notes/draft.txt":   "draft",
	})

	archive, err := NewBuilder(merged, "").Build(context.Background(), project, release.MustParseVersion("1.0.0"))
	require.NoError(t, err)
	require.Equal(t, []string{
		"my-plugin/my-plugin.php",
		"my-plugin/notes/draft.txt",
		"my-plugin/notes/summary.txt",
	}, archive.Entries)
}
