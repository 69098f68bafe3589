// AWS S3 backend for the galleryd blob store.
//
// Proxies all blob operations to an upstream S3 bucket via the AWS SDK for
// Go v2. Asset metadata stays in the metadata store; this backend handles
// raw bytes only. Keys map to {prefix}{key} in the upstream bucket.
//
// Credentials are resolved via the standard AWS credential chain
// (env vars, ~/.aws/credentials, IAM role, etc.), with optional static
// credential and endpoint overrides for MinIO-style deployments.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API defines the subset of the AWS S3 client interface that the blob
// store uses. This allows mocking in tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Options configures an S3Store.
type S3Options struct {
	// Bucket is the upstream S3 bucket name.
	Bucket string
	// Region is the AWS region of the bucket.
	Region string
	// Prefix is the key prefix for all blobs in the bucket.
	Prefix string
	// EndpointURL overrides the S3 endpoint (MinIO etc.).
	EndpointURL string
	// UsePathStyle forces path-style addressing. Implied for custom endpoints.
	UsePathStyle bool
	// AccessKeyID and SecretAccessKey are optional static credentials;
	// when empty the default chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store implements the Store interface by proxying blob operations to an
// upstream Amazon S3 (or S3-compatible) bucket.
type S3Store struct {
	opts   S3Options
	client S3API
}

// NewS3Store creates a new S3Store for the given bucket. It initializes the
// AWS SDK client using the default credential chain unless static
// credentials are provided, and verifies the bucket is reachable.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
			o.UsePathStyle = true
		})
	} else if opts.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	s := &S3Store{
		opts:   opts,
		client: s3.NewFromConfig(cfg, s3Opts...),
	}

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(opts.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("cannot access upstream S3 bucket %q: %w", opts.Bucket, err)
	}

	slog.Info("S3 blob store initialized", "bucket", opts.Bucket, "region", opts.Region, "prefix", opts.Prefix)
	return s, nil
}

// NewS3StoreWithClient creates an S3Store with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewS3StoreWithClient(opts S3Options, client S3API) *S3Store {
	return &S3Store{opts: opts, client: client}
}

// upstreamKey maps a blob key to its upstream S3 key.
func (s *S3Store) upstreamKey(key string) string {
	return s.opts.Prefix + key
}

// Put uploads blob data to the upstream bucket. S3 PutObject is atomic per
// key, so a retry after an ambiguous failure is last-write-wins.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error) {
	// Buffer the body: the SDK needs a seekable or length-known payload
	// for signing, and image uploads are bounded by the server's
	// MaxUploadSize.
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading blob data: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(s.upstreamKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return 0, fmt.Errorf("uploading to S3: %w", err)
	}
	return int64(len(data)), nil
}

// Remove deletes the blob from the upstream bucket. S3 DeleteObject is
// idempotent and does not distinguish a missing key, so absence is detected
// with a HeadObject first to honor the ErrNotFound contract.
func (s *S3Store) Remove(ctx context.Context, key string) error {
	upKey := s.upstreamKey(key)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(upKey),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("checking S3 object: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(upKey),
	}); err != nil {
		return fmt.Errorf("deleting from S3: %w", err)
	}
	return nil
}

// PublicURL derives the stable S3 URL for the key: virtual-hosted style for
// real AWS, path style when a custom endpoint is configured. Pure, no I/O.
func (s *S3Store) PublicURL(key string) string {
	upKey := s.upstreamKey(key)
	if s.opts.EndpointURL != "" {
		return strings.TrimRight(s.opts.EndpointURL, "/") + "/" + s.opts.Bucket + "/" + upKey
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, upKey)
}

// Exists checks whether the blob exists in the upstream bucket.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.upstreamKey(key)),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking S3 object: %w", err)
	}
	return true, nil
}

// HealthCheck verifies the upstream bucket is reachable.
func (s *S3Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.opts.Bucket),
	})
	if err != nil {
		return fmt.Errorf("S3 health check: %w", err)
	}
	return nil
}

// isAWSNotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" || code == "NoSuchBucket" {
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
