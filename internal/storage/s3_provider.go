package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"renovation-service/internal/config"
)

// S3Provider implements BlobStore on AWS S3 (or any S3-compatible endpoint)
type S3Provider struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string
	logger   *logrus.Logger
}

// NewS3Provider creates a new S3 blob store
func NewS3Provider(cfg config.AWSConfig, bucket string, logger *logrus.Logger) (*S3Provider, error) {
	if logger == nil {
		logger = logrus.New()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Provider{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		bucket:   bucket,
		logger:   logger,
	}, nil
}

// Put uploads the content to s3://bucket/key
func (p *S3Provider) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   content,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := p.uploader.Upload(ctx, input); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"bucket": p.bucket,
			"key":    key,
		}).Error("Failed to upload to S3")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return key, nil
}

// SignedURL returns a presigned GET URL for the key
func (p *S3Provider) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	request, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign S3 URL: %w", err)
	}
	return request.URL, nil
}
