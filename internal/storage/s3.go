package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Storage wraps LocalStorage and adds s3:// locations.
// Local paths are delegated to LocalStorage; output shards bound for S3
// are staged locally and uploaded with a single PutObject once complete.
type S3Storage struct {
	*LocalStorage
	client *s3.Client
	region string
}

// NewS3Storage creates a new S3Storage instance.
// The tempDir parameter specifies where staged shards are stored.
func NewS3Storage(tempDir string, cfg S3Config) (*S3Storage, error) {
	local, err := NewLocalStorage(tempDir)
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Storage{
		LocalStorage: local,
		client:       s3.NewFromConfig(awsCfg, clientOpts...),
		region:       cfg.Region,
	}, nil
}

// Open streams an S3 object, or opens a local file for other locations.
func (s *S3Storage) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, ok := ParseS3URL(location)
	if !ok {
		return s.LocalStorage.Open(ctx, location)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s: %w", location, err)
	}
	return out.Body, nil
}

// WriteAtomic stages the shard locally and uploads it when write succeeds.
// An S3 object only becomes visible once PutObject completes, so a failed
// run never leaves a partial shard behind.
func (s *S3Storage) WriteAtomic(ctx context.Context, location string, write func(w io.Writer) error) error {
	bucket, key, ok := ParseS3URL(location)
	if !ok {
		return s.LocalStorage.WriteAtomic(ctx, location, write)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	staged, err := s.stage(path.Base(key), write)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(staged) }()

	f, err := os.Open(staged) // #nosec G304 - staged path is created above
	if err != nil {
		return fmt.Errorf("open staged shard: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload to S3: %w", err)
	}

	return nil
}

// Verify interface implementation at compile time.
var _ Storage = (*S3Storage)(nil)
