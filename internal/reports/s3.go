package reports

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lodestar-cd/lodestar/internal/config"
)

// s3Storage publishes reports to an S3 bucket.
type s3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

func newS3(ctx context.Context, cfg *config.AmazonS3) (*s3Storage, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		secret, ok := value.(config.SecretAWS)
		if !ok {
			return nil, fmt.Errorf("reports: expected aws_auth credentials, got %T", value)
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(secret.AccessKeyID, secret.SecretAccessKey, secret.SessionToken)))
	}

	awscfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		if cfg.URL != "" { // test servers use path-style addressing
			o.BaseEndpoint = aws.String(cfg.URL)
			o.UsePathStyle = true
		}
	})

	return &s3Storage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *s3Storage) Upload(ctx context.Context, r io.Reader, key string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path.Join(s.prefix, key)),
		Body:   r,
	})
	return err
}
