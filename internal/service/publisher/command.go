package publisher

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/oshokin/plugin-publisher/internal/config"
	"github.com/oshokin/plugin-publisher/internal/domain/release"
	"github.com/oshokin/plugin-publisher/internal/logger"
	"github.com/oshokin/plugin-publisher/internal/repository/entryfile"
	"github.com/oshokin/plugin-publisher/internal/repository/storage"
	"github.com/oshokin/plugin-publisher/internal/service/archive"
	"github.com/oshokin/plugin-publisher/internal/service/distributor"
	"github.com/oshokin/plugin-publisher/internal/service/metadata"
)

var errConfigRequired = errors.New("configuration is required")

// Options are inputs accepted by the publisher entry point.
type Options struct {
	// Request describes the release.
	Request release.Request
	// Config is the loaded configuration.
	Config *config.Config
	// SkipUpload builds the archive and metadata locally without touching the bucket.
	SkipUpload bool
	// Store overrides the S3 store built from Config.
	Store storage.ObjectStore
	// HTTPClient is used to fetch published metadata; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Run validates the request, wires the components and publishes the release.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "plugin-publisher")

	if opts == nil || opts.Config == nil {
		return nil, errConfigRequired
	}

	req := opts.Request
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := config.Validate(opts.Config, opts.SkipUpload || opts.Store != nil); err != nil {
		return nil, err
	}

	project, err := newProject(ctx, &req, &opts.Config.Settings)
	if err != nil {
		return nil, err
	}

	outputDir := project.OutputDir(opts.Config.Settings.OutputDir)

	guard, err := acquireGuard(ctx, outputDir)
	if err != nil {
		return nil, err
	}

	defer guard.release(ctx)

	pipeline, err := newPipeline(opts, project, outputDir)
	if err != nil {
		return nil, err
	}

	result, err := pipeline.Publish(ctx, project, &req)
	if err != nil {
		logger.ErrorKV(ctx, "Publish failed", "error", err)
		return nil, err
	}

	return result, nil
}

// newProject resolves and validates the project directory.
func newProject(ctx context.Context, req *release.Request, settings *config.Settings) (*release.Project, error) {
	project, err := release.NewProject(req.ProjectPath, req.Slug)
	if err != nil {
		return nil, err
	}

	if settings.EntryExtension != "" {
		project.EntryExtension = settings.EntryExtension
	}

	if err = project.Validate(); err != nil {
		return nil, err
	}

	if !project.RootMatchesSlug() {
		logger.WarnKV(ctx, "Project directory name differs from the slug, the archive folder uses the slug",
			"root", project.Root, "slug", project.Slug)
	}

	return project, nil
}

// newPipeline builds the production collaborators from configuration.
func newPipeline(opts *Options, project *release.Project, outputDir string) (*Pipeline, error) {
	cfg := opts.Config
	layout := storage.Layout{Prefix: cfg.KeyPrefix}

	manager, err := metadata.NewManager(metadata.Options{
		LocalDir:       outputDir,
		LegacyPaths:    []string{filepath.Join(project.Root, metadata.LegacyFilename)},
		PublicURL:      cfg.PublicURL,
		Bucket:         cfg.BucketName,
		Layout:         layout,
		PluginDomain:   cfg.PluginDomain,
		Requires:       cfg.Settings.Requires,
		Tested:         cfg.Settings.Tested,
		RequiresPHP:    cfg.Settings.RequiresPHP,
		RemoteFallback: cfg.Settings.RemoteMetadataFallback,
		HTTPClient:     opts.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	// The legacy record in the root is a build artifact, not plugin code.
	rules := cfg.Settings.Rules().Merge(archive.Rules{Paths: []string{metadata.LegacyFilename}})

	deps := Dependencies{
		Locator:    entryfile.NewLocator(cfg.Settings.VersionConstant),
		Builder:    archive.NewBuilder(rules, outputDir),
		Metadata:   manager,
		Bucket:     cfg.BucketName,
		Layout:     layout,
		SkipUpload: opts.SkipUpload,
	}

	if !opts.SkipUpload {
		store := opts.Store
		if store == nil {
			store, err = storage.NewS3Store(cfg.EndpointURL, storage.Credentials{
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
			})
			if err != nil {
				return nil, err
			}
		}

		deps.Uploader, err = distributor.New(store, distributor.WithTimeout(cfg.Timeout))
		if err != nil {
			return nil, err
		}
	}

	return NewPipeline(deps)
}
