package metadata

import (
	"bytes"
	"encoding/json"
	"slices"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Record is the update-check document consumed by the plugin's updater.
type Record struct {
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Version       string    `json:"version"`
	StableVersion string    `json:"stable_version,omitempty"`
	DownloadURL   string    `json:"download_url"`
	Homepage      string    `json:"homepage,omitempty"`
	Requires      string    `json:"requires,omitempty"`
	Tested        string    `json:"tested,omitempty"`
	RequiresPHP   string    `json:"requires_php,omitempty"`
	LastUpdated   string    `json:"last_updated"`
	Changelog     Changelog `json:"changelog"`
	Releases      Releases  `json:"releases"`
	Sections      Sections  `json:"sections"`
	Banners       *Banners  `json:"banners,omitempty"`
	Icons         *Icons    `json:"icons,omitempty"`
}

// Release holds per-version details.
type Release struct {
	DownloadURL string `json:"download_url"`
	Stable      bool   `json:"stable"`
	LastUpdated string `json:"last_updated"`
	// Checksum is the base64 SHA-512 of the archive, when known.
	Checksum string `json:"sha512,omitempty"`
}

// Sections are rendered HTML blocks shown in the plugin details dialog.
type Sections struct {
	Changelog string `json:"changelog"`
}

// Banners are the plugin details header images.
type Banners struct {
	Low  string `json:"low"`
	High string `json:"high"`
}

// Icons are the plugin list icons.
type Icons struct {
	X1 string `json:"1x"`
	X2 string `json:"2x"`
}

// Changelog maps a version to its entries; it serializes newest version first.
type Changelog map[string][]string

// MarshalJSON writes keys in descending version order.
func (c Changelog) MarshalJSON() ([]byte, error) {
	return marshalOrdered(c)
}

// Releases maps a version to its details; it serializes newest version first.
type Releases map[string]Release

// MarshalJSON writes keys in descending version order.
func (r Releases) MarshalJSON() ([]byte, error) {
	return marshalOrdered(r)
}

// marshalOrdered encodes m as a JSON object whose keys follow descendingVersions.
func marshalOrdered[T any](m map[string]T) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range descendingVersions(keys) {
		if i > 0 {
			buf.WriteByte(',')
		}

		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}

		value, err := json.Marshal(m[key])
		if err != nil {
			return nil, err
		}

		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// descendingVersions sorts version strings newest first.
// Strings that are not versions follow, in reverse lexical order.
func descendingVersions(keys []string) []string {
	var (
		versions = make(semver.Collection, 0, len(keys))
		others   []string
	)

	for _, key := range keys {
		v, err := semver.NewVersion(key)
		if err != nil {
			others = append(others, key)
			continue
		}

		versions = append(versions, v)
	}

	sort.Sort(sort.Reverse(versions))

	result := make([]string, 0, len(keys))
	for _, v := range versions {
		result = append(result, v.Original())
	}

	slices.Sort(others)
	slices.Reverse(others)

	return append(result, others...)
}

// clone returns a deep copy so callers can keep the loaded record untouched.
func (r *Record) clone() *Record {
	cloned := *r

	cloned.Changelog = make(Changelog, len(r.Changelog))
	for version, lines := range r.Changelog {
		cloned.Changelog[version] = slices.Clone(lines)
	}

	cloned.Releases = make(Releases, len(r.Releases))
	for version, details := range r.Releases {
		cloned.Releases[version] = details
	}

	if r.Banners != nil {
		banners := *r.Banners
		cloned.Banners = &banners
	}

	if r.Icons != nil {
		icons := *r.Icons
		cloned.Icons = &icons
	}

	return &cloned
}

// trimLines drops blank entries.
func trimLines(lines []string) []string {
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			result = append(result, line)
		}
	}

	return result
}
