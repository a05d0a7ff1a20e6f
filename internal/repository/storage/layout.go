package storage

import (
	"path"
	"strings"

	"github.com/oshokin/plugin-publisher/internal/domain/release"
)

// Layout derives object keys inside the bucket.
type Layout struct {
	// Prefix is prepended to every key, e.g. "plugins/". Empty keeps keys at the bucket root.
	Prefix string
}

// ArchiveKey returns the key of the release archive, "<prefix><slug>-<version>.zip".
func (l Layout) ArchiveKey(slug string, v release.Version) string {
	return l.key(slug + "-" + v.String() + ".zip")
}

// MetadataKey returns the key of the update metadata record, "<prefix><slug>.json".
func (l Layout) MetadataKey(slug string) string {
	return l.key(slug + ".json")
}

func (l Layout) key(name string) string {
	prefix := strings.Trim(l.Prefix, "/")
	if prefix == "" {
		return name
	}

	return path.Join(prefix, name)
}
