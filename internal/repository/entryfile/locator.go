package entryfile

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/plugin-publisher/internal/domain/release"

	// Ensure SHA512 available for checksum verification.
	_ "crypto/sha512"
)

// checksumFunction verifies the rewritten file before it replaces the original.
const checksumFunction crypto.Hash = crypto.SHA512

// headerPattern matches the plugin header line, e.g. " * Version: 1.2.3".
var headerPattern = regexp.MustCompile(`(?m)^[ \t/*#@]*Version:[ \t]*([^\s*]+)`)

// namePattern matches the plugin header line, e.g. " * Plugin Name: My Plugin".
var namePattern = regexp.MustCompile(`(?m)^[ \t/*#@]*Plugin Name:[ \t]*(.*?)[ \t]*$`)

// anyVersionPattern matches define('SOMETHING_VERSION', '1.2.3') with either quote style.
var anyVersionPattern = definePattern(`[A-Za-z0-9_]*VERSION`)

var errNilProject = errors.New("project is not set")

// Locator finds, validates and rewrites the version markers of an entry file.
type Locator struct {
	// constantPattern is set when the constant name is configured.
	constantPattern *regexp.Regexp
}

// NewLocator returns a Locator for the named version constant.
// An empty constantName means "<SLUG>_VERSION", e.g. MY_PLUGIN_VERSION for my-plugin; when the file has no
// such constant, the first define() ending in VERSION that agrees with the header is used.
func NewLocator(constantName string) *Locator {
	l := new(Locator)
	if constantName != "" {
		l.constantPattern = definePattern(regexp.QuoteMeta(constantName))
	}

	return l
}

// SlugConstant returns the conventional version constant name for slug.
func SlugConstant(slug string) string {
	return strings.ToUpper(strings.ReplaceAll(slug, "-", "_")) + "_VERSION"
}

// definePattern matches define('<name>', '<value>') and captures the value.
func definePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`define\s*\(\s*['"]` + name + `['"]\s*,\s*['"]([^'"]*)['"]\s*\)`)
}

// markers holds byte offsets of both version values inside the file.
type markers struct {
	header   [2]int
	constant [2]int
	version  release.Version
}

// Read returns the version held by both markers of the project's entry file.
func (l *Locator) Read(project *release.Project) (release.Version, error) {
	if project == nil {
		return release.Version{}, errNilProject
	}

	contents, err := os.ReadFile(filepath.Clean(project.EntryFile()))
	if err != nil {
		return release.Version{}, fmt.Errorf("read entry file: %w", err)
	}

	found, err := l.locate(contents, project.Slug)
	if err != nil {
		return release.Version{}, fmt.Errorf("%s: %w", project.EntryFile(), err)
	}

	return found.version, nil
}

// PluginName returns the "Plugin Name" header of the entry file, or the slug when the header is absent.
func (l *Locator) PluginName(project *release.Project) (string, error) {
	if project == nil {
		return "", errNilProject
	}

	contents, err := os.ReadFile(filepath.Clean(project.EntryFile()))
	if err != nil {
		return "", fmt.Errorf("read entry file: %w", err)
	}

	match := namePattern.FindSubmatch(contents)
	if match == nil || len(bytes.TrimSpace(match[1])) == 0 {
		return project.Slug, nil
	}

	return string(bytes.TrimSpace(match[1])), nil
}

// Write replaces both markers with next and atomically swaps the file in place.
// All other bytes are preserved. The file is not touched when the markers are missing or disagree.
func (l *Locator) Write(project *release.Project, next release.Version) error {
	if project == nil {
		return errNilProject
	}

	path := filepath.Clean(project.EntryFile())

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat entry file: %w", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read entry file: %w", err)
	}

	found, err := l.locate(contents, project.Slug)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	updated := splice(contents, found, []byte(next.String()))

	hasher := checksumFunction.New()
	_, _ = hasher.Write(updated)

	options := goupdate.Options{
		TargetPath: path,
		TargetMode: info.Mode().Perm(),
		Checksum:   hasher.Sum(nil),
		Hash:       checksumFunction,
	}

	if err = goupdate.Apply(bytes.NewReader(updated), options); err != nil {
		removeLeftovers(path)

		return fmt.Errorf("replace entry file: %w", err)
	}

	removeLeftovers(path)

	return nil
}

// locate finds both markers and checks that they agree.
func (l *Locator) locate(contents []byte, slug string) (*markers, error) {
	headerMatch := headerPattern.FindSubmatchIndex(contents)
	if headerMatch == nil {
		return nil, fmt.Errorf("header: %w", release.ErrVersionNotFound)
	}

	headerVersion, err := release.ParseVersion(string(contents[headerMatch[2]:headerMatch[3]]))
	if err != nil {
		return nil, fmt.Errorf("header: %w: %w", release.ErrVersionNotFound, err)
	}

	found := &markers{
		header:  [2]int{headerMatch[2], headerMatch[3]},
		version: headerVersion,
	}

	pattern := l.constantPattern
	if pattern == nil {
		pattern = definePattern(regexp.QuoteMeta(SlugConstant(slug)))
		if !pattern.Match(contents) {
			return locateAnyConstant(contents, found)
		}
	}

	constantMatch := pattern.FindSubmatchIndex(contents)
	if constantMatch == nil {
		return nil, fmt.Errorf("constant: %w", release.ErrVersionNotFound)
	}

	constantVersion, err := release.ParseVersion(string(contents[constantMatch[2]:constantMatch[3]]))
	if err != nil {
		return nil, fmt.Errorf("constant: %w: %w", release.ErrVersionNotFound, err)
	}

	if headerVersion != constantVersion {
		return nil, fmt.Errorf("%w: header %s, constant %s",
			release.ErrVersionMismatch, headerVersion, constantVersion)
	}

	found.constant = [2]int{constantMatch[2], constantMatch[3]}

	return found, nil
}

// locateAnyConstant picks the first *VERSION constant equal to the header.
// Without one, the first parsable constant is reported as a mismatch.
func locateAnyConstant(contents []byte, found *markers) (*markers, error) {
	var first *release.Version

	for _, match := range anyVersionPattern.FindAllSubmatchIndex(contents, -1) {
		constantVersion, err := release.ParseVersion(string(contents[match[2]:match[3]]))
		if err != nil {
			continue
		}

		if constantVersion == found.version {
			found.constant = [2]int{match[2], match[3]}
			return found, nil
		}

		if first == nil {
			first = &constantVersion
		}
	}

	if first == nil {
		return nil, fmt.Errorf("constant: %w", release.ErrVersionNotFound)
	}

	return nil, fmt.Errorf("%w: header %s, constant %s", release.ErrVersionMismatch, found.version, *first)
}

// splice replaces both marker ranges with value, starting from the later one so offsets stay valid.
func splice(contents []byte, found *markers, value []byte) []byte {
	first, second := found.header, found.constant
	if first[0] > second[0] {
		first, second = second, first
	}

	result := make([]byte, 0, len(contents)+2*len(value))
	result = append(result, contents[:first[0]]...)
	result = append(result, value...)
	result = append(result, contents[first[1]:second[0]]...)
	result = append(result, value...)
	result = append(result, contents[second[1]:]...)

	return result
}

// removeLeftovers deletes the staging files go-update may leave next to the target.
func removeLeftovers(path string) {
	dir, name := filepath.Split(path)
	for _, leftover := range []string{"." + name + ".new", "." + name + ".old"} {
		leftoverPath := filepath.Join(dir, leftover)
		if _, err := os.Stat(leftoverPath); err == nil {
			_ = os.Remove(leftoverPath)
		}
	}
}
