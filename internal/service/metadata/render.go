package metadata

import (
	"html/template"
	"strings"

	"github.com/Masterminds/sprig/v3"
)

// changelogTemplate renders the "changelog" section, newest version first.
const changelogTemplate = `{{- range . -}}
<h4>{{ .Version }}{{ if not .Stable }} <small>(beta)</small>{{ end }}</h4><ul>
{{- range .Lines }}<li>{{ . | trim }}</li>{{ end -}}
</ul>
{{ end -}}`

//nolint:gochecknoglobals // Parsed once; the template is immutable.
var changelogSection = template.Must(
	template.New("changelog").Funcs(sprig.FuncMap()).Parse(changelogTemplate),
)

// sectionEntry is the template input for one version.
type sectionEntry struct {
	Version string
	Stable  bool
	Lines   []string
}

// renderChangelog produces the HTML changelog section for the whole record.
func renderChangelog(record *Record) (string, error) {
	keys := make([]string, 0, len(record.Changelog))
	for version := range record.Changelog {
		keys = append(keys, version)
	}

	entries := make([]sectionEntry, 0, len(keys))
	for _, version := range descendingVersions(keys) {
		entries = append(entries, sectionEntry{
			Version: version,
			Stable:  record.Releases[version].Stable,
			Lines:   record.Changelog[version],
		})
	}

	var sb strings.Builder
	if err := changelogSection.Execute(&sb, entries); err != nil {
		return "", err
	}

	return strings.TrimSpace(sb.String()), nil
}
