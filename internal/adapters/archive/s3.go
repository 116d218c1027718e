package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/okian/histsync/pkg/retry"
)

const defaultRegion = "us-east-1"

// S3Config locates the archive bucket.
type S3Config struct {
	Bucket          string
	Region          string // default: us-east-1
	Endpoint        string // custom endpoint for S3-compatible stores
	Prefix          string // key prefix, e.g. "histsync/"
	AccessKeyID     string // static credentials; empty uses the default chain
	SecretAccessKey string
	UsePathStyle    bool
}

// PutObjectAPI is the slice of the S3 client the backend uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Backend uploads objects to S3 or an S3-compatible store.
type S3Backend struct {
	client  PutObjectAPI
	cfg     S3Config
	retryer *retry.Retryer
}

// NewS3Backend creates an S3 backend. Without WithClient the AWS default
// configuration is loaded.
func NewS3Backend(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	b := &S3Backend{
		cfg: cfg,
		retryer: retry.New(
			retry.WithMaxAttempts(retry.DefaultMaxAttempts),
			retry.WithInitialBackoff(retry.DefaultInitialBackoff),
			retry.WithMaxBackoff(10*time.Second),
			retry.WithRetryIf(retry.IsTransient),
		),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.client != nil {
		return b, nil
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}
	b.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return b, nil
}

// Name implements Backend.
func (b *S3Backend) Name() string { return "s3" }

// Put implements Backend and returns the s3:// URI of the object.
func (b *S3Backend) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := b.cfg.Prefix + name
	res := b.retryer.Do(ctx, func(ctx context.Context) error {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/x-snappy"),
		})
		if err != nil {
			return fmt.Errorf("S3 put object failed: %w", err)
		}
		return nil
	})
	if res.Err != nil {
		return "", res.Err
	}
	return fmt.Sprintf("s3://%s/%s", b.cfg.Bucket, key), nil
}
