// Package remote provides the optional object-storage sinks the persistence
// gateway replicates saved documents to. A sink failure is never fatal; the
// gateway logs it and moves on.
package remote

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Sink uploads a document payload to remote storage.
type Sink interface {
	Name() string
	Upload(ctx context.Context, key string, data []byte) error
}

// Open constructs a sink from a URL. Supported schemes:
//
//	aws://bucket[/prefix]?region=us-east-1
//	s3://host[:port]/bucket[/prefix]?region=&insecure=true
//	azure://account/container[/prefix]
//
// An empty URL yields a nil sink (replication disabled).
func Open(ctx context.Context, raw string) (Sink, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("remote: parse sink URL: %w", err)
	}
	switch u.Scheme {
	case "aws":
		cfg, err := buildAWSConfig(u)
		if err != nil {
			return nil, err
		}
		return NewAWS(ctx, cfg)
	case "s3":
		cfg, err := buildS3Config(u)
		if err != nil {
			return nil, err
		}
		return NewS3(cfg)
	case "azure":
		cfg, err := buildAzureConfig(u)
		if err != nil {
			return nil, err
		}
		return NewAzure(cfg)
	default:
		return nil, fmt.Errorf("remote: sink scheme %q not supported", u.Scheme)
	}
}

func buildAWSConfig(u *url.URL) (AWSConfig, error) {
	bucket := strings.TrimSpace(u.Host)
	if bucket == "" {
		return AWSConfig{}, fmt.Errorf("remote: aws sink missing bucket (expected aws://bucket[/prefix])")
	}
	region := strings.TrimSpace(u.Query().Get("region"))
	if region == "" {
		region = strings.TrimSpace(os.Getenv("SMARTPARK_AWS_REGION"))
	}
	if region == "" {
		region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	}
	if region == "" {
		return AWSConfig{}, fmt.Errorf("remote: aws sink requires region (set ?region= or AWS_REGION)")
	}
	return AWSConfig{
		Bucket: bucket,
		Prefix: strings.Trim(u.Path, "/"),
		Region: region,
	}, nil
}

func buildS3Config(u *url.URL) (S3Config, error) {
	endpoint := strings.TrimSpace(u.Host)
	if endpoint == "" {
		return S3Config{}, fmt.Errorf("remote: s3 sink missing host (expected s3://host[:port]/bucket[/prefix])")
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return S3Config{}, fmt.Errorf("remote: s3 sink missing bucket (expected s3://host[:port]/bucket[/prefix])")
	}
	bucket, prefix := path, ""
	if i := strings.IndexByte(path, '/'); i >= 0 {
		bucket, prefix = path[:i], strings.Trim(path[i+1:], "/")
	}
	query := u.Query()
	return S3Config{
		Endpoint:  endpoint,
		Bucket:    bucket,
		Prefix:    prefix,
		Region:    strings.TrimSpace(query.Get("region")),
		Insecure:  query.Get("insecure") == "true",
		AccessKey: strings.TrimSpace(os.Getenv("SMARTPARK_S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("SMARTPARK_S3_SECRET_KEY")),
	}, nil
}

func buildAzureConfig(u *url.URL) (AzureConfig, error) {
	account := strings.TrimSpace(u.Host)
	if account == "" {
		return AzureConfig{}, fmt.Errorf("remote: azure sink missing account (expected azure://account/container[/prefix])")
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return AzureConfig{}, fmt.Errorf("remote: azure sink missing container (expected azure://account/container[/prefix])")
	}
	container, prefix := path, ""
	if i := strings.IndexByte(path, '/'); i >= 0 {
		container, prefix = path[:i], strings.Trim(path[i+1:], "/")
	}
	return AzureConfig{
		Account:    account,
		Container:  container,
		Prefix:     prefix,
		AccountKey: strings.TrimSpace(os.Getenv("SMARTPARK_AZURE_ACCOUNT_KEY")),
	}, nil
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
