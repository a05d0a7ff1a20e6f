package archive

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
)

// DefaultIgnoreFile is the gitignore-syntax file read from the project root.
const DefaultIgnoreFile = ".distignore"

// Rules is the exclusion rule set evaluated against every walked entry.
type Rules struct {
	// Extensions are case-insensitive file name suffixes, e.g. ".zip" or ".tar.gz".
	Extensions []string `yaml:"extensions,omitempty"`
	// Dirs are directory base names pruned from the walk.
	Dirs []string `yaml:"dirs,omitempty"`
	// Files are file base names that are never archived.
	Files []string `yaml:"files,omitempty"`
	// Paths are slash-separated paths relative to the root excluded as a whole.
	Paths []string `yaml:"paths,omitempty"`
	// Patterns are doublestar globs matched against the slash-separated relative path.
	Patterns []string `yaml:"patterns,omitempty"`
	// HollowDirs are kept as empty directory entries while their contents are skipped.
	HollowDirs []string `yaml:"hollow_dirs,omitempty"`
	// IgnoreFile names a gitignore-syntax file in the project root; empty disables it.
	IgnoreFile string `yaml:"ignore_file,omitempty"`
}

// DefaultRules returns the rule set used when the settings file adds nothing.
func DefaultRules() Rules {
	return Rules{
		Extensions: []string{".zip", ".tar", ".gz", ".tgz", ".bz2", ".rar", ".7z"},
		Dirs:       []string{"old", "py", ".git", ".svn", ".idea", ".vscode", "node_modules"},
		Files:      []string{".env", ".DS_Store", "Thumbs.db"},
		Patterns:   []string{"**/.env.*"},
		HollowDirs: []string{"logs"},
		IgnoreFile: DefaultIgnoreFile,
	}
}

// Merge returns the union of both rule sets. A non-empty IgnoreFile in other wins.
func (r Rules) Merge(other Rules) Rules {
	merged := Rules{
		Extensions: union(r.Extensions, other.Extensions),
		Dirs:       union(r.Dirs, other.Dirs),
		Files:      union(r.Files, other.Files),
		Paths:      union(r.Paths, other.Paths),
		Patterns:   union(r.Patterns, other.Patterns),
		HollowDirs: union(r.HollowDirs, other.HollowDirs),
		IgnoreFile: r.IgnoreFile,
	}

	if other.IgnoreFile != "" {
		merged.IgnoreFile = other.IgnoreFile
	}

	return merged
}

// Validate checks that every glob pattern compiles.
func (r Rules) Validate() error {
	for _, pattern := range r.Patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclusion pattern %q", pattern)
		}
	}

	return nil
}

// decision is the outcome of evaluating one entry.
type decision int

const (
	include decision = iota
	exclude
	hollow
)

// matcher evaluates Rules for a single project root.
type matcher struct {
	extensions []string
	dirs       map[string]struct{}
	files      map[string]struct{}
	hollowDirs map[string]struct{}
	paths      map[string]struct{}
	patterns   []string
	ignoreFile string
	ignore     gitignore.GitIgnore
}

// newMatcher prepares lookups and loads the ignore file from root when present.
func newMatcher(rules Rules, root string) (*matcher, error) {
	m := &matcher{
		extensions: make([]string, 0, len(rules.Extensions)),
		dirs:       sliceToSet(rules.Dirs),
		files:      sliceToSet(rules.Files),
		hollowDirs: sliceToSet(rules.HollowDirs),
		paths:      make(map[string]struct{}, len(rules.Paths)),
		patterns:   rules.Patterns,
		ignoreFile: rules.IgnoreFile,
	}

	for _, p := range rules.Paths {
		p = strings.Trim(path.Clean(filepath.ToSlash(strings.TrimSpace(p))), "/")
		if p != "" && p != "." {
			m.paths[p] = struct{}{}
		}
	}

	for _, ext := range rules.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}

		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		m.extensions = append(m.extensions, ext)
	}

	if rules.IgnoreFile == "" {
		return m, nil
	}

	data, err := os.ReadFile(filepath.Join(root, rules.IgnoreFile))
	if os.IsNotExist(err) {
		return m, nil
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", rules.IgnoreFile, err)
	}

	m.ignore = gitignore.New(bytes.NewReader(data), root, nil)

	return m, nil
}

// evaluate decides what happens to the entry at the slash-separated relative path rel.
func (m *matcher) evaluate(rel string, isDir bool) decision {
	name := path.Base(rel)

	if _, found := m.paths[rel]; found {
		return exclude
	}

	if isDir {
		if _, found := m.dirs[name]; found {
			return exclude
		}
	} else {
		if _, found := m.files[name]; found {
			return exclude
		}

		if rel == m.ignoreFile {
			return exclude
		}

		lower := strings.ToLower(name)
		for _, ext := range m.extensions {
			if strings.HasSuffix(lower, ext) {
				return exclude
			}
		}
	}

	for _, pattern := range m.patterns {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return exclude
		}
	}

	if m.ignore != nil {
		if match := m.ignore.Relative(rel, isDir); match != nil && match.Ignore() {
			return exclude
		}
	}

	if isDir {
		if _, found := m.hollowDirs[name]; found {
			return hollow
		}
	}

	return include
}

// union concatenates both slices, dropping blanks and duplicates while keeping order.
func union(a, b []string) []string {
	result := make([]string, 0, len(a)+len(b))
	for _, value := range slices.Concat(a, b) {
		value = strings.TrimSpace(value)
		if value == "" || slices.Contains(result, value) {
			continue
		}

		result = append(result, value)
	}

	return result
}

// sliceToSet converts a slice to a set for quick lookups.
func sliceToSet[T comparable](elements []T) map[T]struct{} {
	result := make(map[T]struct{}, len(elements))
	for _, value := range elements {
		result[value] = struct{}{}
	}

	return result
}
