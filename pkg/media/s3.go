package media

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Config configures the S3 backend.
type S3Config struct {
	Region   string
	Bucket   string
	Endpoint string // custom endpoint, e.g. MinIO
	Prefix   string // object key prefix

	// PublicRead serves objects from their bucket URL; otherwise
	// PublicURL(BaseURL, key) redirects to a presigned URL.
	PublicRead bool
	BaseURL    string
	PresignTTL time.Duration
}

// S3 stores media in an S3 bucket.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	cfg      S3Config
	now      func() time.Time
	log      *zap.Logger
}

// NewS3 loads AWS credentials from the environment and creates the backend.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 10 * time.Minute
	}

	awsConf, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		cfg:      cfg,
		now:      time.Now,
		log:      logger.With(zap.String("component", "media-s3")),
	}, nil
}

// Save implements Storage.
func (s *S3) Save(ctx context.Context, u Upload) (models.MediaAttachment, error) {
	src, err := u.Open()
	if err != nil {
		return models.MediaAttachment{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	key := s.newKey(u.OriginalName)
	ct := contentType(u)

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        src,
		ContentType: aws.String(ct),
	})
	if err != nil {
		return models.MediaAttachment{}, fmt.Errorf("s3 upload: %w", err)
	}

	s.log.Debug("media uploaded", zap.String("bucket", s.cfg.Bucket), zap.String("key", key))

	return models.MediaAttachment{
		StorageKey:  key,
		DisplayName: u.OriginalName,
		ContentType: ct,
		SizeBytes:   u.Size,
		AccessURL:   s.accessURL(key),
	}, nil
}

// newKey always carries a random suffix. PutObject overwrites silently, so
// two uploads of one name in the same millisecond must not share a key.
func (s *S3) newKey(originalName string) string {
	return uniqueKey(BuildKey(s.now(), originalName))
}

// Remove implements Storage.
func (s *S3) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}

// PresignURL returns a time-limited GET URL for key.
func (s *S3) PresignURL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.objectKey(key)),
	}, s3.WithPresignExpires(s.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return req.URL, nil
}

func (s *S3) objectKey(key string) string {
	return s.cfg.Prefix + key
}

func (s *S3) accessURL(key string) string {
	if !s.cfg.PublicRead {
		return PublicURL(s.cfg.BaseURL, key)
	}
	escaped := s.cfg.Prefix + url.PathEscape(key)
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.cfg.Endpoint, s.cfg.Bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, escaped)
}
