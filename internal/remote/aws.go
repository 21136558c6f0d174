package remote

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AWSConfig controls the AWS S3 sink.
type AWSConfig struct {
	Bucket string
	Prefix string
	Region string
}

// AWSSink replicates documents to AWS S3 using the default credential chain.
type AWSSink struct {
	client *s3.Client
	cfg    AWSConfig
}

// NewAWS constructs an AWS S3 sink.
func NewAWS(ctx context.Context, cfg AWSConfig) (*AWSSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("remote: aws sink requires a bucket")
	}
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("remote: load aws config: %w", err)
	}
	return &AWSSink{client: s3.NewFromConfig(sdkCfg), cfg: cfg}, nil
}

// Name identifies the sink in logs.
func (s *AWSSink) Name() string {
	return fmt.Sprintf("aws://%s", s.cfg.Bucket)
}

// Upload writes the payload to the configured bucket.
func (s *AWSSink) Upload(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(joinKey(s.cfg.Prefix, key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("remote: aws upload %q: %w", key, err)
	}
	return nil
}
