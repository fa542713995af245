package archive

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSAPI is the subset of the GCS client the sink uses.
type GCSAPI interface {
	// NewWriter returns a writer for the given GCS object.
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

// GCSSink uploads reports to a GCS bucket. Credentials are resolved via
// Application Default Credentials.
type GCSSink struct {
	Bucket string
	Prefix string
	client GCSAPI
}

// NewGCSSink creates a GCS client. Extra client options (endpoint,
// credentials file) may be passed through opts.
func NewGCSSink(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSSink, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return NewGCSSinkWithClient(bucket, prefix, &realGCSClient{client: client}), nil
}

// NewGCSSinkWithClient returns a GCSSink using client.
func NewGCSSinkWithClient(bucket, prefix string, client GCSAPI) *GCSSink {
	return &GCSSink{Bucket: bucket, Prefix: prefix, client: client}
}

// Upload implements Sink. The object is committed by Close.
func (s *GCSSink) Upload(ctx context.Context, name string, data []byte) error {
	object := objectName(s.Prefix, name)
	w := s.client.NewWriter(ctx, s.Bucket, object)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing %s to gs://%s: %w", object, s.Bucket, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("committing %s to gs://%s: %w", object, s.Bucket, err)
	}
	return nil
}

func (s *GCSSink) String() string {
	return "gs://" + objectName(s.Bucket, s.Prefix)
}
