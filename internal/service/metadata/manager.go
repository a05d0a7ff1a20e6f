package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/plugin-publisher/internal/domain/release"
	"github.com/oshokin/plugin-publisher/internal/logger"
	"github.com/oshokin/plugin-publisher/internal/repository/storage"
	"github.com/oshokin/plugin-publisher/internal/version"
)

const (
	// LegacyFilename is the record name used before per-slug records, both on disk and in the bucket.
	LegacyFilename = "update.json"

	// dateLayout is the format of last_updated fields.
	dateLayout = "2006-01-02"

	// defaultFileMode is used for the record written to the output directory.
	defaultFileMode os.FileMode = 0o644
)

var (
	errLocalDirRequired = errors.New("metadata directory must be provided")
	errBadHTTPStatus    = errors.New("unexpected http status")
)

// Options configure a Manager.
type Options struct {
	// LocalDir holds "<slug>.json" between runs.
	LocalDir string
	// PublicURL is the public base URL of the bucket host.
	PublicURL string
	// Bucket is the bucket name, part of every public URL.
	Bucket string
	// Layout derives object keys.
	Layout storage.Layout
	// PluginDomain is the site serving banners, icons and the plugin homepage.
	PluginDomain string
	// Requires, Tested and RequiresPHP are copied into the record verbatim.
	Requires    string
	Tested      string
	RequiresPHP string
	// LegacyPaths are earlier local record files, e.g. "<root>/update.json", read when
	// LocalDir holds no record.
	LegacyPaths []string
	// RemoteFallback loads the published record when no local copy exists.
	RemoteFallback bool
	// HTTPClient is used for the remote fallback; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Change is the new release merged into a record.
type Change struct {
	Slug        string
	Name        string
	Version     release.Version
	Changelog   []string
	Stable      bool
	DownloadURL string
	// Checksum is the base64 SHA-512 of the archive.
	Checksum string
	Now      time.Time
}

// Manager loads, updates and saves update metadata records.
type Manager struct {
	opts Options
}

// NewManager validates options and returns a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.LocalDir == "" {
		return nil, errLocalDirRequired
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Manager{opts: opts}, nil
}

// Path returns the local location of the record for slug.
func (m *Manager) Path(slug string) string {
	return filepath.Join(m.opts.LocalDir, slug+".json")
}

// DownloadURL returns the public URL of the object stored under key:
// "<public url>/<bucket>/<key>".
func (m *Manager) DownloadURL(key string) string {
	base := strings.TrimRight(m.opts.PublicURL, "/")
	bucket := strings.Trim(m.opts.Bucket, "/")
	key = strings.TrimLeft(key, "/")

	parts := make([]string, 0, 3)
	for _, part := range []string{base, bucket, key} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	return strings.Join(parts, "/")
}

// Load returns the existing record for slug or nil when there is none.
// Sources are tried in order: the local record, the legacy local files, the published
// record and the legacy published object. A local record that cannot be parsed is
// reported and treated as absent; legacy sources belonging to another plugin are skipped.
func (m *Manager) Load(ctx context.Context, slug string) (*Record, error) {
	record, found, err := m.loadLocal(ctx, m.Path(slug), slug, false)
	if err != nil || found {
		return record, err
	}

	for _, legacyPath := range m.opts.LegacyPaths {
		record, found, err = m.loadLocal(ctx, legacyPath, slug, true)
		if err != nil || found {
			return record, err
		}
	}

	if m.opts.RemoteFallback && m.opts.PublicURL != "" {
		for _, candidate := range []struct {
			key    string
			legacy bool
		}{
			{key: m.opts.Layout.MetadataKey(slug)},
			{key: LegacyFilename, legacy: true},
		} {
			record, found, err = m.loadRemote(ctx, candidate.key, slug, candidate.legacy)
			if err != nil || found {
				return record, err
			}
		}
	}

	logger.InfoKV(ctx, "No metadata found, a new record will be created", "path", m.Path(slug))

	return nil, nil
}

// loadLocal reads the record at localPath. found reports that the search should stop here.
func (m *Manager) loadLocal(ctx context.Context, localPath, slug string, legacy bool) (*Record, bool, error) {
	data, err := os.ReadFile(filepath.Clean(localPath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("read metadata: %w", err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		if legacy {
			logger.WarnKV(ctx, "Legacy metadata is invalid, skipping", "path", localPath, "error", err)
			return nil, false, nil
		}

		logger.WarnKV(ctx, "Existing metadata is invalid, creating a new record", "path", localPath, "error", err)

		return nil, true, nil
	}

	if legacy && !belongsTo(record, slug) {
		logger.WarnKV(ctx, "Legacy metadata describes another plugin, skipping",
			"path", localPath, "plugin", record.Slug)

		return nil, false, nil
	}

	logger.InfoKV(ctx, "Loaded local metadata", "path", localPath, "version", record.Version)

	return record, true, nil
}

// loadRemote fetches the published object under key. found reports that the search should stop here.
func (m *Manager) loadRemote(ctx context.Context, key, slug string, legacy bool) (*Record, bool, error) {
	remoteURL := m.DownloadURL(key)
	if _, err := url.ParseRequestURI(remoteURL); err != nil {
		return nil, false, fmt.Errorf("invalid metadata url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, http.NoBody)
	if err != nil {
		return nil, false, err
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch metadata: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	switch response.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusForbidden:
		logger.DebugKV(ctx, "No published metadata", "url", remoteURL)
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("%s, %s: %w", remoteURL, response.Status, errBadHTTPStatus)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read metadata response: %w", err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		logger.WarnKV(ctx, "Published metadata is invalid", "url", remoteURL, "error", err)
		return nil, !legacy, nil
	}

	if legacy && !belongsTo(record, slug) {
		logger.WarnKV(ctx, "Legacy published metadata describes another plugin, skipping",
			"url", remoteURL, "plugin", record.Slug)

		return nil, false, nil
	}

	logger.InfoKV(ctx, "Loaded published metadata", "url", remoteURL, "version", record.Version)

	return record, true, nil
}

// belongsTo reports whether record can describe slug.
func belongsTo(record *Record, slug string) bool {
	return record.Slug == "" || record.Slug == slug
}

// Update merges change into record and returns the result; record itself is not modified.
// The changelog and release details for the version are always overwritten, while the
// "version" pointer never moves back to an older release.
func (m *Manager) Update(record *Record, change Change) (*Record, error) {
	if record == nil {
		record = &Record{}
	}

	updated := record.clone()
	if updated.Changelog == nil {
		updated.Changelog = make(Changelog)
	}

	if updated.Releases == nil {
		updated.Releases = make(Releases)
	}

	now := change.Now
	if now.IsZero() {
		now = time.Now()
	}

	date := now.Format(dateLayout)
	versionKey := change.Version.String()

	updated.Slug = change.Slug
	if change.Name != "" {
		updated.Name = change.Name
	} else if updated.Name == "" {
		updated.Name = change.Slug
	}

	updated.Changelog[versionKey] = trimLines(change.Changelog)
	updated.Releases[versionKey] = Release{
		DownloadURL: change.DownloadURL,
		Stable:      change.Stable,
		LastUpdated: date,
		Checksum:    change.Checksum,
	}

	current, err := release.ParseVersion(updated.Version)
	if err != nil || change.Version.Compare(current) >= 0 {
		updated.Version = versionKey
		updated.DownloadURL = change.DownloadURL
		updated.LastUpdated = date
	}

	updated.StableVersion = highestStable(updated.Releases)

	m.applyEnvironment(updated)

	section, err := renderChangelog(updated)
	if err != nil {
		return nil, fmt.Errorf("render changelog: %w", err)
	}

	updated.Sections.Changelog = section

	return updated, nil
}

// Save writes record as indented JSON and returns the file path.
func (m *Manager) Save(record *Record) (string, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	data = append(data, '\n')
	target := m.Path(record.Slug)

	if err = writeFileAtomic(target, data); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	return target, nil
}

// applyEnvironment fills the fields derived from settings.
func (m *Manager) applyEnvironment(record *Record) {
	if m.opts.Requires != "" {
		record.Requires = m.opts.Requires
	}

	if m.opts.Tested != "" {
		record.Tested = m.opts.Tested
	}

	if m.opts.RequiresPHP != "" {
		record.RequiresPHP = m.opts.RequiresPHP
	}

	domain := strings.TrimRight(m.opts.PluginDomain, "/")
	if domain == "" {
		return
	}

	record.Homepage = domain + "/" + record.Slug
	record.Banners = &Banners{
		Low:  domain + path.Join("/updates/banners", "low.jpg"),
		High: domain + path.Join("/updates/banners", "high.jpg"),
	}
	record.Icons = &Icons{
		X1: domain + path.Join("/updates/icons", "icon-128x128.png"),
		X2: domain + path.Join("/updates/icons", "icon-256x256.png"),
	}
}

// highestStable returns the greatest version flagged stable, or "" when none is.
func highestStable(releases Releases) string {
	var (
		best  release.Version
		found bool
	)

	for key, details := range releases {
		if !details.Stable {
			continue
		}

		v, err := release.ParseVersion(key)
		if err != nil {
			continue
		}

		if !found || v.GreaterThan(best) {
			best, found = v, true
		}
	}

	if !found {
		return ""
	}

	return best.String()
}

// writeFileAtomic writes data to a temporary file next to target and renames it into place.
func writeFileAtomic(target string, data []byte) (err error) {
	dir := filepath.Dir(target)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+"-*.tmp")
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}

	if err = tmp.Chmod(defaultFileMode); err != nil {
		return err
	}

	if err = tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), target)
}
