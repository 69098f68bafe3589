// Google Cloud Storage backend for the galleryd blob store.
//
// Proxies all blob operations to an upstream GCS bucket via the official
// Go client library. Keys map to {prefix}{key} in the upstream bucket.
//
// Credentials are resolved via Application Default Credentials
// (GOOGLE_APPLICATION_CREDENTIALS, gcloud auth, metadata server), with an
// optional explicit service account key file.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCSAPI defines the subset of the GCS client interface that the blob store
// uses. This allows mocking in tests.
type GCSAPI interface {
	// NewWriter returns a writer for the given object.
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
	// Delete deletes the given object.
	Delete(ctx context.Context, bucket, object string) error
	// Exists reports whether the given object exists.
	Exists(ctx context.Context, bucket, object string) (bool, error)
	// BucketExists reports whether the bucket is accessible.
	BucketExists(ctx context.Context, bucket string) error
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	return c.client.Bucket(bucket).Object(object).NewWriter(ctx)
}

func (c *realGCSClient) Delete(ctx context.Context, bucket, object string) error {
	return c.client.Bucket(bucket).Object(object).Delete(ctx)
}

func (c *realGCSClient) Exists(ctx context.Context, bucket, object string) (bool, error) {
	_, err := c.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		if isGCSNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *realGCSClient) BucketExists(ctx context.Context, bucket string) error {
	_, err := c.client.Bucket(bucket).Attrs(ctx)
	return err
}

// GCSStore implements the Store interface by proxying blob operations to
// Google Cloud Storage.
type GCSStore struct {
	// Bucket is the upstream GCS bucket name.
	Bucket string
	// Prefix is the key prefix for all blobs in the bucket.
	Prefix string
	// client is the GCS client (satisfying GCSAPI).
	client GCSAPI
}

// NewGCSStore creates a new GCSStore for the given bucket and verifies it
// is accessible.
func NewGCSStore(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	s := &GCSStore{
		Bucket: bucket,
		Prefix: prefix,
		client: &realGCSClient{client: client},
	}

	if err := s.client.BucketExists(ctx, bucket); err != nil {
		return nil, fmt.Errorf("cannot access upstream GCS bucket %q: %w", bucket, err)
	}

	slog.Info("GCS blob store initialized", "bucket", bucket, "prefix", prefix)
	return s, nil
}

// NewGCSStoreWithClient creates a GCSStore with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewGCSStoreWithClient(bucket, prefix string, client GCSAPI) *GCSStore {
	return &GCSStore{Bucket: bucket, Prefix: prefix, client: client}
}

// upstreamObject maps a blob key to its upstream GCS object name.
func (s *GCSStore) upstreamObject(key string) string {
	return s.Prefix + key
}

// Put uploads blob data to the upstream bucket. GCS object writes commit on
// Close, so a failed or retried write never exposes partial data.
func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error) {
	w := s.client.NewWriter(ctx, s.Bucket, s.upstreamObject(key))

	written, err := io.Copy(w, r)
	if err != nil {
		w.Close()
		return 0, fmt.Errorf("writing to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("committing GCS object: %w", err)
	}
	return written, nil
}

// Remove deletes the blob from the upstream bucket, returning ErrNotFound
// when the object does not exist.
func (s *GCSStore) Remove(ctx context.Context, key string) error {
	err := s.client.Delete(ctx, s.Bucket, s.upstreamObject(key))
	if err != nil {
		if isGCSNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting from GCS: %w", err)
	}
	return nil
}

// PublicURL derives the stable public GCS URL for the key. Pure, no I/O.
func (s *GCSStore) PublicURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.Bucket, s.upstreamObject(key))
}

// Exists checks whether the blob exists in the upstream bucket.
func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.client.Exists(ctx, s.Bucket, s.upstreamObject(key))
}

// HealthCheck verifies the upstream bucket is reachable.
func (s *GCSStore) HealthCheck(ctx context.Context) error {
	if err := s.client.BucketExists(ctx, s.Bucket); err != nil {
		return fmt.Errorf("GCS health check: %w", err)
	}
	return nil
}

// isGCSNotFound checks if a GCS error indicates a missing object.
func isGCSNotFound(err error) bool {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return true
	}
	return status.Code(err) == codes.NotFound
}
