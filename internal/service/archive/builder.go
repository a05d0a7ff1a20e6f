package archive

import (
	"archive/zip"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/plugin-publisher/internal/domain/release"
	"github.com/oshokin/plugin-publisher/internal/logger"
)

const (
	// fileMode and dirMode are stored in every header so permissions do not leak host state.
	fileMode fs.FileMode = 0o644
	dirMode  fs.FileMode = 0o755 | fs.ModeDir
)

// fixedModTime is the earliest timestamp the ZIP format can represent.
//
//nolint:gochecknoglobals // Immutable timestamp shared by all headers.
var fixedModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

var errNilProject = errors.New("project is not set")

// Archive describes a ZIP written by Builder.
type Archive struct {
	// Path is the absolute location of the archive on disk.
	Path string
	// Name is "<slug>-<version>.zip".
	Name string
	// Entries lists archive paths in the order they were written.
	Entries []string
	// Files counts regular file entries.
	Files int
	// Checksum is the base64 SHA-512 of the archive bytes.
	Checksum string
}

// Builder produces release archives.
type Builder struct {
	rules     Rules
	outputDir string
}

// NewBuilder returns a Builder writing into outputDir with the given rules.
// An empty outputDir means the project's default output directory.
func NewBuilder(rules Rules, outputDir string) *Builder {
	return &Builder{
		rules:     rules,
		outputDir: outputDir,
	}
}

// entry is a walked path that survived the rules.
type entry struct {
	source string
	name   string
	isDir  bool
}

// Build writes "<output>/<slug>-<version>.zip" and returns its description.
// A previous archive with the same name is replaced; other archives are left alone.
func (b *Builder) Build(ctx context.Context, project *release.Project, version release.Version) (*Archive, error) {
	if project == nil {
		return nil, errNilProject
	}

	info, err := os.Stat(project.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: project root: %w", release.ErrArchiveIO, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: project root %s is not a directory", release.ErrArchiveIO, project.Root)
	}

	if err = b.rules.Validate(); err != nil {
		return nil, err
	}

	outputDir := project.OutputDir(b.outputDir)

	entries, files, err := collect(ctx, project, withOutputDir(b.rules, project.Root, outputDir))
	if err != nil {
		return nil, err
	}

	if files == 0 {
		return nil, fmt.Errorf("%w: no files left in %s after exclusions", release.ErrArchiveIO, project.Root)
	}

	archive := &Archive{
		Path:    filepath.Join(outputDir, project.ArchiveName(version)),
		Name:    project.ArchiveName(version),
		Entries: make([]string, 0, len(entries)),
		Files:   files,
	}

	for _, e := range entries {
		archive.Entries = append(archive.Entries, e.name)
	}

	if err = writeArchive(ctx, archive.Path, entries); err != nil {
		return nil, err
	}

	if archive.Checksum, err = fileChecksum(archive.Path); err != nil {
		return nil, fmt.Errorf("%w: checksum: %w", release.ErrArchiveIO, err)
	}

	logger.InfoKV(ctx, "Archive created",
		"path", archive.Path,
		"files", archive.Files,
		"entries", len(archive.Entries))

	return archive, nil
}

// withOutputDir returns rules that also exclude outputDir when it lies inside root.
func withOutputDir(rules Rules, root, outputDir string) Rules {
	rel, err := filepath.Rel(root, outputDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return rules
	}

	return rules.Merge(Rules{Paths: []string{filepath.ToSlash(rel)}})
}

// collect walks the project and returns surviving entries in lexical order.
func collect(ctx context.Context, project *release.Project, rules Rules) ([]entry, int, error) {
	m, err := newMatcher(rules, project.Root)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", release.ErrArchiveIO, err)
	}

	var (
		entries []entry
		files   int
	)

	walkErr := filepath.WalkDir(project.Root, func(current string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if current == project.Root {
			return nil
		}

		rel, err := filepath.Rel(project.Root, current)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)
		name := path.Join(project.Slug, rel)

		isDir := d.IsDir()
		if !isDir && !d.Type().IsRegular() {
			// Follow symlinks to regular files only.
			target, statErr := os.Stat(current)
			if statErr != nil || !target.Mode().IsRegular() {
				logger.DebugKV(ctx, "Skipping non-regular file", "path", rel)
				return nil
			}
		}

		switch m.evaluate(rel, isDir) {
		case exclude:
			logger.DebugKV(ctx, "Excluded from archive", "path", rel)

			if isDir {
				return fs.SkipDir
			}

			return nil
		case hollow:
			entries = append(entries, entry{source: current, name: name + "/", isDir: true})
			return fs.SkipDir
		case include:
		}

		if isDir {
			return nil
		}

		entries = append(entries, entry{source: current, name: name})
		files++

		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, 0, walkErr
		}

		return nil, 0, fmt.Errorf("%w: walk %s: %w", release.ErrArchiveIO, project.Root, walkErr)
	}

	return entries, files, nil
}

// writeArchive writes entries into a temporary file next to target and renames it into place.
func writeArchive(ctx context.Context, target string, entries []entry) (err error) {
	dir := filepath.Dir(target)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create output directory: %w", release.ErrArchiveIO, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temporary archive: %w", release.ErrArchiveIO, err)
	}

	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)

	for _, e := range entries {
		if err = ctx.Err(); err != nil {
			return err
		}

		if err = addEntry(zw, e); err != nil {
			return fmt.Errorf("%w: add %s: %w", release.ErrArchiveIO, e.name, err)
		}
	}

	if err = zw.Close(); err != nil {
		return fmt.Errorf("%w: finalize archive: %w", release.ErrArchiveIO, err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close archive: %w", release.ErrArchiveIO, err)
	}

	if err = os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("%w: move archive into place: %w", release.ErrArchiveIO, err)
	}

	return nil
}

// addEntry writes a single header and, for files, its contents.
func addEntry(zw *zip.Writer, e entry) error {
	header := &zip.FileHeader{
		Name:     e.name,
		Method:   zip.Deflate,
		Modified: fixedModTime,
	}

	if e.isDir {
		header.Method = zip.Store
		header.SetMode(dirMode)

		_, err := zw.CreateHeader(header)

		return err
	}

	header.SetMode(fileMode)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	f, err := os.Open(filepath.Clean(e.source))
	if err != nil {
		return err
	}

	defer func() {
		_ = f.Close()
	}()

	_, err = io.Copy(w, f)

	return err
}

// fileChecksum returns the base64 SHA-512 of the file at path.
func fileChecksum(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := sha512.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
