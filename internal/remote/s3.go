package remote

import (
	"bytes"
	"context"
	"fmt"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config controls the generic S3-compatible sink (MinIO and friends).
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	Insecure  bool
	AccessKey string
	SecretKey string
}

// S3Sink replicates documents to any S3-compatible endpoint.
type S3Sink struct {
	client *minio.Client
	cfg    S3Config
}

// NewS3 constructs a generic S3 sink. When no static credentials are
// supplied the standard AWS environment variables are consulted.
func NewS3(cfg S3Config) (*S3Sink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("remote: s3 sink requires endpoint and bucket")
	}
	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewEnvAWS()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("remote: s3 client: %w", err)
	}
	return &S3Sink{client: client, cfg: cfg}, nil
}

// Name identifies the sink in logs.
func (s *S3Sink) Name() string {
	return fmt.Sprintf("s3://%s/%s", s.cfg.Endpoint, s.cfg.Bucket)
}

// Upload writes the payload to the configured bucket.
func (s *S3Sink) Upload(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, joinKey(s.cfg.Prefix, key),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("remote: s3 upload %q: %w", key, err)
	}
	return nil
}
