package integration

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/plugin-publisher/internal/config"
)

const entryTemplate = `<?php
/**
 * Plugin Name: My Plugin
 * Version: %[1]s
 */

define( 'MY_PLUGIN_VERSION', '%[1]s' );
`

// putCall is one object written to memoryStore.
type putCall struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

// memoryStore keeps uploaded objects in memory and can fail on a chosen key.
type memoryStore struct {
	mu      sync.Mutex
	calls   []putCall
	failKey string
	failErr error
}

func (s *memoryStore) Put(_ context.Context, bucket, key, localPath, contentType string) (int64, error) {
	if key == s.failKey {
		return 0, s.failErr
	}

	body, err := os.ReadFile(localPath)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, putCall{bucket: bucket, key: key, contentType: contentType, body: body})

	return int64(len(body)), nil
}

func (s *memoryStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.calls))
	for _, call := range s.calls {
		keys = append(keys, call.key)
	}

	return keys
}

func (s *memoryStore) object(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].key == key {
			return s.calls[i].body
		}
	}

	return nil
}

// newPluginProject lays out a my-plugin directory with compiled assets and noise that must stay out of the archive.
func newPluginProject(t *testing.T, version string) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "my-plugin")

	files := map[string]string{
		"my-plugin.php":             fmt.Sprintf(entryTemplate, version),
		"readme.txt":                "=== My Plugin ===\n",
		"includes/class-main.php":   "<?php\n",
		"assets/js/app.js":          "console.log('ok');\n",
		"dist/js/frontend.js":       "console.log('built');\n",
		".env":                      "SECRET=1\n",
		"backup.zip":                "not really a zip",
		"old/legacy.php":            "<?php\n",
		"node_modules/pkg/index.js": "module.exports = {};\n",
		"logs/debug.log":            "noise\n",
		"includes/.git/HEAD":        "ref: refs/heads/main\n",
	}

	for name, contents := range files {
		target := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
		require.NoError(t, os.WriteFile(target, []byte(contents), 0o644))
	}

	return root
}

// testConfig returns configuration pointing at a fake bucket.
func testConfig(publicURL string) *config.Config {
	settings := config.DefaultSettings()
	settings.RemoteMetadataFallback = publicURL != ""

	if publicURL == "" {
		publicURL = "https://cdn.example.com"
	}

	return &config.Config{
		BucketName:   "plugins",
		PublicURL:    publicURL,
		PluginDomain: "https://example.com",
		KeyPrefix:    "wp",
		Timeout:      10 * time.Second,
		Settings:     settings,
	}
}

// zipNames lists the entry names of a ZIP archive.
func zipNames(t *testing.T, path string) []string {
	t.Helper()

	reader, err := zip.OpenReader(path)
	require.NoError(t, err)

	defer func() {
		_ = reader.Close()
	}()

	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
	}

	sort.Strings(names)

	return names
}
