package metadata

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"
)

// listItemPattern extracts entries from the HTML changelog of the legacy format.
var listItemPattern = regexp.MustCompile(`(?s)<li>(.*?)</li>`)

// legacyDocument is the earlier update.json layout: one entry per version in a list.
type legacyDocument struct {
	Plugin        string          `json:"plugin"`
	StableVersion string          `json:"stable_version"`
	Versions      []legacyVersion `json:"versions"`
}

type legacyVersion struct {
	Version     string   `json:"version"`
	DownloadURL string   `json:"download_url"`
	PluginURL   string   `json:"plugin_url"`
	LastUpdated string   `json:"last_updated"`
	Changelog   string   `json:"changelog"`
	Requires    string   `json:"requires"`
	Tested      string   `json:"tested"`
	RequiresPHP string   `json:"requires_php"`
	Banners     *Banners `json:"banners"`
	Icons       *Icons   `json:"icons"`
}

// decodeRecord parses either the current layout or the legacy list layout.
func decodeRecord(data []byte) (*Record, error) {
	var probe struct {
		Slug     string          `json:"slug"`
		Versions json.RawMessage `json:"versions"`
	}

	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	if probe.Slug == "" && len(probe.Versions) > 0 {
		var legacy legacyDocument
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, err
		}

		return legacy.convert(), nil
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}

	if record.Changelog == nil {
		record.Changelog = make(Changelog)
	}

	if record.Releases == nil {
		record.Releases = make(Releases)
	}

	return &record, nil
}

// convert maps the legacy layout onto a Record. The newest listed version becomes the pointer.
func (d *legacyDocument) convert() *Record {
	record := &Record{
		Name:          d.Plugin,
		Slug:          d.Plugin,
		StableVersion: d.StableVersion,
		Changelog:     make(Changelog, len(d.Versions)),
		Releases:      make(Releases, len(d.Versions)),
	}

	keys := make([]string, 0, len(d.Versions))
	byVersion := make(map[string]legacyVersion, len(d.Versions))

	for _, v := range d.Versions {
		keys = append(keys, v.Version)
		byVersion[v.Version] = v

		record.Changelog[v.Version] = legacyChangelogLines(v.Changelog)
		record.Releases[v.Version] = Release{
			DownloadURL: v.DownloadURL,
			Stable:      v.Version == d.StableVersion,
			LastUpdated: v.LastUpdated,
		}
	}

	if ordered := descendingVersions(keys); len(ordered) > 0 {
		newest := byVersion[ordered[0]]

		record.Version = newest.Version
		record.DownloadURL = newest.DownloadURL
		record.Homepage = newest.PluginURL
		record.LastUpdated = newest.LastUpdated
		record.Requires = newest.Requires
		record.Tested = newest.Tested
		record.RequiresPHP = newest.RequiresPHP
		record.Banners = newest.Banners
		record.Icons = newest.Icons
	}

	return record
}

// legacyChangelogLines turns "<h4>1.0.0</h4><ul><li>a</li></ul>" into ["a"].
func legacyChangelogLines(fragment string) []string {
	matches := listItemPattern.FindAllStringSubmatch(fragment, -1)

	lines := make([]string, 0, len(matches))
	for _, match := range matches {
		lines = append(lines, html.UnescapeString(strings.TrimSpace(match[1])))
	}

	return lines
}
