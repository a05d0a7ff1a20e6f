package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/plugin-publisher/internal/domain/release"
	"github.com/oshokin/plugin-publisher/internal/service/archive"
)

// Environment variable names read from the process environment and the .env file.
const (
	EnvAccessKeyID     = "R2_ACCESS_KEY_ID"
	EnvSecretAccessKey = "R2_SECRET_ACCESS_KEY"
	EnvEndpointURL     = "R2_ENDPOINT_URL"
	EnvBucketName      = "R2_BUCKET_NAME"
	EnvPublicURL       = "R2_PUBLIC_URL"
	EnvPluginDomain    = "PLUGIN_DOMAIN"
	EnvKeyPrefix       = "PUBLISH_KEY_PREFIX"
	EnvTimeout         = "PUBLISH_TIMEOUT"
)

const (
	// DefaultEnvFilename is the dotenv file read from the working directory.
	DefaultEnvFilename = ".env"

	// DefaultSettingsFilename is the optional YAML file with non-secret settings.
	DefaultSettingsFilename = "plugin-publisher.yaml"

	// DefaultTimeout bounds each upload.
	DefaultTimeout = 5 * time.Minute

	// DefaultFilePermissions is the default file permission for settings files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errMissingVariable is returned for every required variable that is empty.
	errMissingVariable = errors.New("missing environment variable")
)

// Config holds everything the publisher needs besides the request itself.
type Config struct {
	// AccessKeyID and SecretAccessKey authenticate against the bucket.
	AccessKeyID     string
	SecretAccessKey string
	// EndpointURL is the S3-compatible API endpoint.
	EndpointURL string
	// BucketName is the bucket receiving archives and metadata.
	BucketName string
	// PublicURL is the public base URL used to build download links.
	PublicURL string
	// PluginDomain is the site serving banners, icons and the plugin homepage.
	PluginDomain string
	// KeyPrefix is prepended to object keys.
	KeyPrefix string
	// Timeout bounds each upload.
	Timeout time.Duration
	// Settings are the non-secret options from the YAML settings file.
	Settings Settings
}

// Settings are persisted in YAML next to the project or in the working directory.
type Settings struct {
	// EntryExtension is the entry file extension; "php" when empty.
	EntryExtension string `yaml:"entry_extension,omitempty"`
	// VersionConstant pins the define() name; any *VERSION constant matches when empty.
	VersionConstant string `yaml:"version_constant,omitempty"`
	// OutputDir receives archives and the local metadata copy; relative to the project root.
	OutputDir string `yaml:"output_dir,omitempty"`
	// Requires, Tested and RequiresPHP are copied into the metadata record.
	Requires    string `yaml:"requires,omitempty"`
	Tested      string `yaml:"tested,omitempty"`
	RequiresPHP string `yaml:"requires_php,omitempty"`
	// RemoteMetadataFallback loads the published record when no local copy exists.
	RemoteMetadataFallback bool `yaml:"remote_metadata_fallback"`
	// Exclude extends the default exclusion rules.
	Exclude archive.Rules `yaml:"exclude"`
	// ReplaceDefaultExclusions makes Exclude the complete rule set.
	ReplaceDefaultExclusions bool `yaml:"replace_default_exclusions"`
}

// DefaultSettings returns settings matching the values the metadata has always carried.
func DefaultSettings() Settings {
	return Settings{
		EntryExtension:         release.DefaultEntryExtension,
		OutputDir:              release.DefaultOutputDir,
		Requires:               "5.8",
		Tested:                 "6.6",
		RequiresPHP:            "7.4",
		RemoteMetadataFallback: true,
	}
}

// Rules returns the effective exclusion rules.
func (s Settings) Rules() archive.Rules {
	if s.ReplaceDefaultExclusions {
		return s.Exclude
	}

	return archive.DefaultRules().Merge(s.Exclude)
}

// LoadOptions locate the configuration sources.
type LoadOptions struct {
	// EnvFile is the dotenv file; a missing default file is ignored.
	EnvFile string
	// SettingsPath is the YAML settings file; a missing default file is ignored.
	SettingsPath string
}

// Load reads the dotenv file, the environment and the settings file.
// Process environment variables take precedence over the dotenv file.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	v.SetDefault(strings.ToLower(EnvTimeout), DefaultTimeout.String())
	v.AutomaticEnv()

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFilename
	}

	if err := readEnvFile(v, envFile, opts.EnvFile != ""); err != nil {
		return nil, err
	}

	timeout, err := parseTimeout(v.GetString(EnvTimeout))
	if err != nil {
		return nil, err
	}

	settings, err := LoadSettings(opts.SettingsPath)
	if err != nil {
		return nil, err
	}

	return &Config{
		AccessKeyID:     strings.TrimSpace(v.GetString(EnvAccessKeyID)),
		SecretAccessKey: strings.TrimSpace(v.GetString(EnvSecretAccessKey)),
		EndpointURL:     strings.TrimSpace(v.GetString(EnvEndpointURL)),
		BucketName:      strings.TrimSpace(v.GetString(EnvBucketName)),
		PublicURL:       strings.TrimSpace(v.GetString(EnvPublicURL)),
		PluginDomain:    strings.TrimSpace(v.GetString(EnvPluginDomain)),
		KeyPrefix:       strings.TrimSpace(v.GetString(EnvKeyPrefix)),
		Timeout:         timeout,
		Settings:        settings,
	}, nil
}

// readEnvFile merges a dotenv file into v. A missing file is an error only when required.
func readEnvFile(v *viper.Viper, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}

		return fmt.Errorf("read env file: %w", err)
	}

	v.SetConfigFile(filepath.Clean(path))
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read env file: %w", err)
	}

	return nil
}

// LoadSettings reads YAML settings on top of DefaultSettings.
// An empty path means DefaultSettingsFilename, which may be absent.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	required := path != ""
	if path == "" {
		path = DefaultSettingsFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return settings, nil
		}

		return settings, fmt.Errorf("read settings: %w", err)
	}

	if err = yaml.Unmarshal(contents, &settings); err != nil {
		return settings, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = settings.Rules().Validate(); err != nil {
		return settings, fmt.Errorf("invalid settings: %w", err)
	}

	return settings, nil
}

// SaveSettings writes settings to the provided path.
func SaveSettings(path string, settings *Settings) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultSettingsFilename
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// parseTimeout reads the upload timeout; blank or non-positive values mean DefaultTimeout.
func parseTimeout(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultTimeout, nil
	}

	timeout, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", EnvTimeout, err)
	}

	if timeout <= 0 {
		return DefaultTimeout, nil
	}

	return timeout, nil
}

// Validate checks required fields and URL formats.
// Credentials and the endpoint are only required when uploads will happen.
func Validate(cfg *Config, skipUpload bool) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	type field struct {
		name  string
		value string
	}

	required := []field{
		{name: EnvBucketName, value: cfg.BucketName},
		{name: EnvPublicURL, value: cfg.PublicURL},
		{name: EnvPluginDomain, value: cfg.PluginDomain},
	}

	if !skipUpload {
		required = append([]field{
			{name: EnvAccessKeyID, value: cfg.AccessKeyID},
			{name: EnvSecretAccessKey, value: cfg.SecretAccessKey},
			{name: EnvEndpointURL, value: cfg.EndpointURL},
		}, required...)
	}

	var errs []error

	for _, f := range required {
		if f.value == "" {
			errs = append(errs, fmt.Errorf("%w: %s", errMissingVariable, f.name))
		}
	}

	for _, f := range []field{
		{name: EnvPublicURL, value: cfg.PublicURL},
		{name: EnvPluginDomain, value: cfg.PluginDomain},
	} {
		if f.value == "" {
			continue
		}

		if _, err := url.ParseRequestURI(f.value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", f.name, err))
		}
	}

	return errors.Join(errs...)
}
