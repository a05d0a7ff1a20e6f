package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/plugin-publisher/internal/domain/release"
	"github.com/oshokin/plugin-publisher/internal/logger"
	"github.com/oshokin/plugin-publisher/internal/repository/storage"
	"github.com/oshokin/plugin-publisher/internal/service/archive"
	"github.com/oshokin/plugin-publisher/internal/service/distributor"
	"github.com/oshokin/plugin-publisher/internal/service/metadata"
)

var (
	errMissingDependency = errors.New("pipeline dependency is not set")
	errNilInput          = errors.New("project and request are required")
)

// VersionLocator reads and rewrites the version markers of the entry file.
type VersionLocator interface {
	Read(project *release.Project) (release.Version, error)
	Write(project *release.Project, next release.Version) error
	PluginName(project *release.Project) (string, error)
}

// ArchiveBuilder packages the project.
type ArchiveBuilder interface {
	Build(ctx context.Context, project *release.Project, version release.Version) (*archive.Archive, error)
}

// MetadataManager maintains the update metadata record.
type MetadataManager interface {
	Load(ctx context.Context, slug string) (*metadata.Record, error)
	Update(record *metadata.Record, change metadata.Change) (*metadata.Record, error)
	Save(record *metadata.Record) (string, error)
	DownloadURL(key string) string
}

// Uploader stores local files in the bucket.
type Uploader interface {
	Upload(ctx context.Context, localPath, bucket, key string) (*distributor.RemoteObject, error)
}

// Dependencies wire a Pipeline.
type Dependencies struct {
	Locator  VersionLocator
	Builder  ArchiveBuilder
	Metadata MetadataManager
	// Uploader may be nil when SkipUpload is set.
	Uploader Uploader
	// Bucket receives both artifacts.
	Bucket string
	// Layout derives object keys.
	Layout storage.Layout
	// SkipUpload stops the run after update-metadata.
	SkipUpload bool
	// Now stamps metadata dates; nil means time.Now.
	Now func() time.Time
}

// Result summarizes a completed run.
type Result struct {
	Previous release.Version
	Current  release.Version
	Archive  *archive.Archive
	// Record is the saved metadata and RecordPath its local file.
	Record     *metadata.Record
	RecordPath string
	// Objects lists uploads in the order they happened; empty for dry runs.
	Objects []*distributor.RemoteObject
}

// Pipeline runs the publish stages in order.
type Pipeline struct {
	deps Dependencies
}

// NewPipeline checks that every collaborator is present.
func NewPipeline(deps Dependencies) (*Pipeline, error) {
	if deps.Locator == nil || deps.Builder == nil || deps.Metadata == nil {
		return nil, errMissingDependency
	}

	if deps.Uploader == nil && !deps.SkipUpload {
		return nil, errMissingDependency
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Pipeline{deps: deps}, nil
}

// Publish executes read-version, bump, rewrite-entry-file, build-archive, update-metadata,
// upload-archive and upload-metadata. The request must already be validated.
func (p *Pipeline) Publish(ctx context.Context, project *release.Project, req *release.Request) (*Result, error) {
	if project == nil || req == nil {
		return nil, errNilInput
	}

	ctx = logger.WithKV(ctx, "slug", project.Slug)
	result := new(Result)

	// read-version
	if err := ctx.Err(); err != nil {
		return nil, stageError(StageReadVersion, err)
	}

	current, err := p.deps.Locator.Read(project)
	if err != nil {
		return nil, stageError(StageReadVersion, err)
	}

	result.Previous = current

	// bump
	next := current.Bump(req.Bump)
	result.Current = next

	logger.InfoKV(ctx, "Version bumped", "stage", StageBump, "from", current, "to", next, "kind", req.Bump)

	// rewrite-entry-file
	if err = ctx.Err(); err != nil {
		return nil, stageError(StageRewriteEntry, err)
	}

	if err = p.deps.Locator.Write(project, next); err != nil {
		return nil, stageError(StageRewriteEntry, err)
	}

	logger.InfoKV(ctx, "Entry file rewritten", "stage", StageRewriteEntry, "path", project.EntryFile())

	// build-archive
	result.Archive, err = p.deps.Builder.Build(ctx, project, next)
	if err != nil {
		return nil, stageError(StageBuildArchive, err)
	}

	logger.InfoKV(ctx, "Archive built",
		"stage", StageBuildArchive,
		"path", result.Archive.Path,
		"files", result.Archive.Files)

	// update-metadata
	if err = p.updateMetadata(ctx, project, req, result); err != nil {
		return nil, stageError(StageUpdateMetadata, err)
	}

	if p.deps.SkipUpload {
		logger.Info(ctx, "Upload skipped")

		return result, nil
	}

	// upload-archive
	archiveObject, err := p.deps.Uploader.Upload(ctx,
		result.Archive.Path,
		p.deps.Bucket,
		p.deps.Layout.ArchiveKey(project.Slug, next))
	if err != nil {
		return nil, stageError(StageUploadArchive, err)
	}

	result.Objects = append(result.Objects, archiveObject)

	// upload-metadata
	metadataObject, err := p.deps.Uploader.Upload(ctx,
		result.RecordPath,
		p.deps.Bucket,
		p.deps.Layout.MetadataKey(project.Slug))
	if err != nil {
		return nil, stageError(StageUploadMetadata, err)
	}

	result.Objects = append(result.Objects, metadataObject)

	logger.InfoKV(ctx, "Publish completed", "stage", StageDone, "version", next)

	return result, nil
}

// updateMetadata loads the previous record, merges the new release and saves it.
func (p *Pipeline) updateMetadata(
	ctx context.Context,
	project *release.Project,
	req *release.Request,
	result *Result,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	previous, err := p.deps.Metadata.Load(ctx, project.Slug)
	if err != nil {
		return err
	}

	name, err := p.deps.Locator.PluginName(project)
	if err != nil {
		return err
	}

	record, err := p.deps.Metadata.Update(previous, metadata.Change{
		Slug:        project.Slug,
		Name:        name,
		Version:     result.Current,
		Changelog:   req.Changelog,
		Stable:      req.IsStable,
		DownloadURL: p.deps.Metadata.DownloadURL(p.deps.Layout.ArchiveKey(project.Slug, result.Current)),
		Checksum:    result.Archive.Checksum,
		Now:         p.deps.Now(),
	})
	if err != nil {
		return err
	}

	recordPath, err := p.deps.Metadata.Save(record)
	if err != nil {
		return err
	}

	result.Record = record
	result.RecordPath = recordPath

	logger.InfoKV(ctx, "Metadata updated",
		"stage", StageUpdateMetadata,
		"path", recordPath,
		"pointer", record.Version,
		"stable", record.StableVersion)

	return nil
}
