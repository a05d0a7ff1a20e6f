package release

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultEntryExtension is the extension of the version-bearing entry file.
	DefaultEntryExtension = "php"
	// DefaultOutputDir is where archives and the metadata record are written, relative to the root.
	DefaultOutputDir = ".plugin-publisher"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Project identifies the plugin being published.
type Project struct {
	// Root is the absolute path of the plugin directory.
	Root string
	// Slug names the entry file and the top-level folder inside the archive.
	Slug string
	// EntryExtension is the entry file extension without the dot.
	EntryExtension string
}

// NewProject builds a Project with an absolute root and the default entry extension.
func NewProject(root, slug string) (*Project, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	return &Project{
		Root:           absRoot,
		Slug:           strings.TrimSpace(slug),
		EntryExtension: DefaultEntryExtension,
	}, nil
}

// EntryFile returns the path of "<root>/<slug>.<ext>".
func (p *Project) EntryFile() string {
	ext := strings.TrimPrefix(p.EntryExtension, ".")
	if ext == "" {
		ext = DefaultEntryExtension
	}

	return filepath.Join(p.Root, p.Slug+"."+ext)
}

// RootMatchesSlug reports whether the root directory is named after the slug.
func (p *Project) RootMatchesSlug() bool {
	return filepath.Base(p.Root) == p.Slug
}

// ArchiveName returns "<slug>-<version>.zip".
func (p *Project) ArchiveName(v Version) string {
	return p.Slug + "-" + v.String() + ".zip"
}

// OutputDir resolves the directory for build artifacts.
// An empty value means DefaultOutputDir; relative values are resolved against the root.
func (p *Project) OutputDir(configured string) string {
	if configured == "" {
		configured = DefaultOutputDir
	}

	if filepath.IsAbs(configured) {
		return filepath.Clean(configured)
	}

	return filepath.Join(p.Root, configured)
}

// Validate checks the slug format, the root directory and the entry file.
func (p *Project) Validate() error {
	if !slugPattern.MatchString(p.Slug) {
		return fmt.Errorf("%w: slug %q must be lowercase letters, digits, '-' or '_'", ErrInvalidRequest, p.Slug)
	}

	info, err := os.Stat(p.Root)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: project directory %s does not exist", ErrArchiveIO, p.Root)
	} else if err != nil {
		return fmt.Errorf("stat project directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrArchiveIO, p.Root)
	}

	entry := p.EntryFile()
	if _, err = os.Stat(entry); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: entry file %s not found", ErrInvalidRequest, entry)
	} else if err != nil {
		return fmt.Errorf("stat entry file: %w", err)
	}

	return nil
}
