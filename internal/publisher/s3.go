package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"content-scheduler/internal/config"
	"content-scheduler/internal/models"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive publishes by writing the item document to posts/<content-id>.json.
type S3Archive struct {
	client objectPutter
	bucket string
	now    func() time.Time
}

// NewS3Archive builds an archive publisher from the S3_* settings.
func NewS3Archive(ctx context.Context, cfg config.Config) (*S3Archive, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("s3 publisher requires S3_BUCKET")
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newS3Archive(client, cfg.S3Bucket), nil
}

func newS3Archive(client objectPutter, bucket string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, now: time.Now}
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	}), nil
}

func (a *S3Archive) Publish(ctx context.Context, item models.ContentItem) (models.PublishResult, error) {
	body, err := json.Marshal(newPayload(item, a.now()))
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("encode payload: %w", err)
	}
	key := fmt.Sprintf("posts/%s.json", item.ID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return models.PublishResult{}, fmt.Errorf("put s3 object: %w", err)
	}
	return models.PublishResult{Success: true, ExternalRef: fmt.Sprintf("s3://%s/%s", a.bucket, key)}, nil
}
