// Package archive uploads finished run reports to durable storage.
//
// Destinations are URLs:
//
//	s3://bucket/prefix                     Amazon S3 or the service under test
//	gs://bucket/prefix                     Google Cloud Storage
//	azblob://container/prefix?account=acct Azure Blob Storage
//	file:///dir                            local directory
package archive

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/bleepstore/integrity/internal/config"
)

// Sink stores named report documents.
type Sink interface {
	// Upload stores data under name, relative to the sink's prefix.
	Upload(ctx context.Context, name string, data []byte) error
	// String describes the destination for logs.
	String() string
}

// Open returns the sink for rawURL. S3 destinations reuse the target's
// credentials and endpoint.
func Open(ctx context.Context, rawURL string, target config.TargetConfig) (Sink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing archive url %q: %w", rawURL, err)
	}
	prefix := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("archive url %q: missing bucket", rawURL)
		}
		return NewS3Sink(ctx, u.Host, prefix, target)
	case "gs":
		if u.Host == "" {
			return nil, fmt.Errorf("archive url %q: missing bucket", rawURL)
		}
		return NewGCSSink(ctx, u.Host, prefix)
	case "azblob":
		if u.Host == "" {
			return nil, fmt.Errorf("archive url %q: missing container", rawURL)
		}
		account := u.Query().Get("account")
		if account == "" {
			return nil, fmt.Errorf("archive url %q: missing account parameter", rawURL)
		}
		return NewAzureSink(u.Host, fmt.Sprintf("https://%s.blob.core.windows.net/", account), prefix)
	case "file", "":
		dir := u.Path
		if u.Scheme == "" {
			dir = rawURL
		}
		return NewFileSink(dir)
	}
	return nil, fmt.Errorf("archive url %q: unsupported scheme %q", rawURL, u.Scheme)
}

// objectName joins the sink prefix and a document name.
func objectName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
