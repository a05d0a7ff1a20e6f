package distributor

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/plugin-publisher/internal/domain/release"
	"github.com/oshokin/plugin-publisher/internal/logger"
	"github.com/oshokin/plugin-publisher/internal/repository/storage"
)

// DefaultTimeout bounds a single upload when no timeout is configured.
const DefaultTimeout = 5 * time.Minute

var errStoreRequired = errors.New("object store is not set")

// RemoteObject describes an uploaded object.
type RemoteObject struct {
	Bucket      string
	Key         string
	LocalPath   string
	ContentType string
	Size        int64
}

// Distributor uploads local files through an ObjectStore.
type Distributor struct {
	store   storage.ObjectStore
	timeout time.Duration
}

// Option customizes a Distributor.
type Option func(*Distributor)

// WithTimeout bounds each Upload call; zero or negative keeps DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Distributor) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// New returns a Distributor backed by store.
func New(store storage.ObjectStore, opts ...Option) (*Distributor, error) {
	if store == nil {
		return nil, errStoreRequired
	}

	d := &Distributor{
		store:   store,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Upload overwrites bucket/key with the contents of localPath.
func (d *Distributor) Upload(ctx context.Context, localPath, bucket, key string) (*RemoteObject, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", release.ErrUpload, key, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s: %s is a directory", release.ErrUpload, key, localPath)
	}

	contentType := ContentType(localPath)

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	logger.InfoKV(ctx, "Uploading object",
		"bucket", bucket,
		"key", key,
		"size", info.Size(),
		"content_type", contentType)

	size, err := d.store.Put(callCtx, bucket, key, localPath, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", release.ErrUpload, bucket, key, err)
	}

	logger.InfoKV(ctx, "Uploaded object", "bucket", bucket, "key", key)

	return &RemoteObject{
		Bucket:      bucket,
		Key:         key,
		LocalPath:   localPath,
		ContentType: contentType,
		Size:        size,
	}, nil
}

// ContentType picks the MIME type sent with an object.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return "application/zip"
	case ".json":
		return "application/json"
	}

	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}

	return "application/octet-stream"
}
