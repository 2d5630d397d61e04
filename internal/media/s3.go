package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

var errMissingBucket = errors.New("media: bucket is required")

// S3Config configures an S3Store. Endpoint switches the client to path-style
// addressing for S3-compatible servers such as MinIO.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	MaxBytes      int64
	Clock         func() time.Time
	Logger        *zap.Logger
}

// S3Store keeps avatars in an S3 bucket.
type S3Store struct {
	client    *s3.Client
	bucket    string
	publicURL string
	maxBytes  int64
	clock     func() time.Time
	logger    *zap.Logger
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errMissingBucket
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	publicURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if publicURL == "" {
		if endpoint != "" {
			publicURL = endpoint + "/" + bucket
		} else {
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAvatarBytes
	}

	return &S3Store{
		client:    client,
		bucket:    bucket,
		publicURL: publicURL,
		maxBytes:  maxBytes,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Upload validates the image and writes it under a fresh dated key.
func (s *S3Store) Upload(ctx context.Context, upload Upload) (Object, error) {
	data, contentType, err := ReadImage(upload, s.maxBytes)
	if err != nil {
		return Object{}, err
	}

	key := avatarKey(s.clock().UTC(), upload.Filename, contentType)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("avatar upload failed",
			zap.String("bucket", s.bucket),
			zap.String("key", key),
			zap.Error(err))
		return Object{}, fmt.Errorf("media: put object: %w", err)
	}

	s.logger.Debug("avatar uploaded",
		zap.String("key", key),
		zap.Int("bytes", len(data)))
	return Object{URL: s.publicURL + "/" + key, ID: key}, nil
}

func (s *S3Store) Delete(ctx context.Context, objectID string) error {
	key := strings.TrimSpace(objectID)
	if key == "" {
		return ErrMissingObjectID
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("media: delete object %s: %w", key, err)
	}
	return nil
}
