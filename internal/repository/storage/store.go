package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/oshokin/plugin-publisher/internal/version"
)

// DefaultRegion is accepted by Cloudflare R2 and ignored by most other S3-compatible stores.
const DefaultRegion = "auto"

var (
	errEndpointRequired    = errors.New("storage endpoint must be provided")
	errCredentialsRequired = errors.New("storage credentials must be provided")
)

// ObjectStore uploads local files to a bucket.
type ObjectStore interface {
	// Put overwrites bucket/key with the contents of localPath and returns the stored size.
	Put(ctx context.Context, bucket, key, localPath, contentType string) (int64, error)
}

// Credentials are the static access keys of the bucket.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store implements ObjectStore on top of minio-go.
type S3Store struct {
	client *minio.Client
}

var _ ObjectStore = (*S3Store)(nil)

// NewS3Store connects to endpoint (a URL such as https://<account>.r2.cloudflarestorage.com).
// Plain host names are treated as HTTPS.
func NewS3Store(endpoint string, creds Credentials) (*S3Store, error) {
	host, secure, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, errCredentialsRequired
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, ""),
		Secure: secure,
		Region: DefaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	client.SetAppInfo(version.Name, version.Version)

	return &S3Store{client: client}, nil
}

// Put uploads localPath as a single full-object write.
func (s *S3Store) Put(ctx context.Context, bucket, key, localPath, contentType string) (int64, error) {
	info, err := s.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, err
	}

	return info.Size, nil
}

// splitEndpoint returns the host[:port] and whether TLS is used.
func splitEndpoint(endpoint string) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, errEndpointRequired
	}

	if !strings.Contains(endpoint, "://") {
		return strings.TrimRight(endpoint, "/"), true, nil
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse storage endpoint: %w", err)
	}

	if parsed.Host == "" {
		return "", false, fmt.Errorf("parse storage endpoint %q: %w", endpoint, errEndpointRequired)
	}

	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported storage endpoint scheme %q", parsed.Scheme)
	}
}
