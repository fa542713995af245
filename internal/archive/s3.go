package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bleepstore/integrity/internal/config"
	"github.com/bleepstore/integrity/internal/invoker"
)

// S3PutAPI is the subset of the S3 client the sink uses.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads reports to an S3 bucket.
type S3Sink struct {
	Bucket string
	Prefix string
	client S3PutAPI
}

// NewS3Sink builds an S3 client from the target configuration.
func NewS3Sink(ctx context.Context, bucket, prefix string, target config.TargetConfig) (*S3Sink, error) {
	cfg, err := invoker.LoadAWSConfig(ctx, target)
	if err != nil {
		return nil, err
	}
	return NewS3SinkWithClient(bucket, prefix, invoker.NewS3Client(cfg, target)), nil
}

// NewS3SinkWithClient returns an S3Sink using client.
func NewS3SinkWithClient(bucket, prefix string, client S3PutAPI) *S3Sink {
	return &S3Sink{Bucket: bucket, Prefix: prefix, client: client}
}

// Upload implements Sink.
func (s *S3Sink) Upload(ctx context.Context, name string, data []byte) error {
	key := objectName(s.Prefix, name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3://%s: %w", key, s.Bucket, err)
	}
	return nil
}

func (s *S3Sink) String() string {
	return "s3://" + objectName(s.Bucket, s.Prefix)
}
