// Package invoker executes named storage operations against the service under
// test and reports them the way the aws s3api command line does: an exit
// status plus standard output and standard error.
//
// Two executors are provided. CLI runs the aws binary as a subprocess; SDK
// performs the same operations in-process through aws-sdk-go-v2 and renders
// CLI-shaped JSON. Fault-injection toggles go through FaultClient for both.
package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	herr "github.com/bleepstore/integrity/internal/errors"
)

// Op names a storage operation.
type Op string

// Recognized operations.
const (
	OpCreateBucket            Op = "create-bucket"
	OpDeleteBucket            Op = "delete-bucket"
	OpPutObject               Op = "put-object"
	OpGetObject               Op = "get-object"
	OpHeadObject              Op = "head-object"
	OpDeleteObject            Op = "delete-object"
	OpCreateMultipartUpload   Op = "create-multipart-upload"
	OpUploadPart              Op = "upload-part"
	OpListParts               Op = "list-parts"
	OpCompleteMultipartUpload Op = "complete-multipart-upload"
	OpAbortMultipartUpload    Op = "abort-multipart-upload"
	OpEnableFault             Op = "enable-fi"
	OpDisableFault            Op = "disable-fi"
)

// Exit statuses reported by the aws command line and mirrored by SDK.
const (
	ExitOK = 0
	// ExitServiceError is reported when the service rejected the request.
	ExitServiceError = 254
	// ExitClientError is reported for local failures: bad parameters,
	// unreadable files, connection errors.
	ExitClientError = 255
)

// Params carries the parameters an operation may need. Unused fields are
// ignored.
type Params struct {
	Bucket string
	Key    string
	// Body is the path of the file uploaded by put-object and upload-part.
	Body string
	// Download is the path get-object writes the object to.
	Download   string
	UploadID   string
	PartNumber int
	// Manifest is the path of the completion manifest.
	Manifest string
	// Fault and Frequency parameterize enable-fi and disable-fi.
	Fault     string
	Frequency string
}

// Result is the outcome of one invocation.
type Result struct {
	ExitStatus int
	Stdout     []byte
	Stderr     []byte
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool {
	return r.ExitStatus == ExitOK
}

// Invoker executes a storage operation. A non-success exit status is not an
// error; the error return is reserved for invocations that could not run at
// all (cancellation, timeouts, a missing executable).
type Invoker interface {
	Invoke(ctx context.Context, op Op, p Params) (Result, error)
}

// Func adapts a function to the Invoker interface.
type Func func(ctx context.Context, op Op, p Params) (Result, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, op Op, p Params) (Result, error) {
	return f(ctx, op, p)
}

// CompletedPart is one entry of a completion manifest.
type CompletedPart struct {
	PartNumber int    `json:"PartNumber"`
	ETag       string `json:"ETag"`
}

// Manifest is the completion document passed to complete-multipart-upload.
type Manifest struct {
	Parts []CompletedPart `json:"Parts"`
}

// WriteManifest writes m as JSON to path.
func WriteManifest(path string, m Manifest) error {
	if m.Parts == nil {
		m.Parts = []CompletedPart{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest %q: %w", path, err)
	}
	return nil
}

// ReadManifest reads a completion manifest from path.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("reading manifest %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, herr.ErrMalformedOutput.WithDetail("manifest %q: %v", path, err)
	}
	return m, nil
}

// CreateMultipartUploadOutput is the JSON printed by create-multipart-upload.
type CreateMultipartUploadOutput struct {
	Bucket   string `json:"Bucket,omitempty"`
	Key      string `json:"Key,omitempty"`
	UploadID string `json:"UploadId"`
}

// UploadPartOutput is the JSON printed by upload-part.
type UploadPartOutput struct {
	ETag string `json:"ETag"`
}

// Part is one entry of list-parts output.
type Part struct {
	PartNumber int    `json:"PartNumber"`
	ETag       string `json:"ETag"`
	Size       int64  `json:"Size"`
}

// ListPartsOutput is the JSON printed by list-parts.
type ListPartsOutput struct {
	Bucket   string `json:"Bucket,omitempty"`
	Key      string `json:"Key,omitempty"`
	UploadID string `json:"UploadId,omitempty"`
	Parts    []Part `json:"Parts"`
}

// Manifest keeps only PartNumber and ETag of a listing, in listing
// order.
func (o ListPartsOutput) Manifest() Manifest {
	m := Manifest{Parts: make([]CompletedPart, 0, len(o.Parts))}
	for _, p := range o.Parts {
		m.Parts = append(m.Parts, CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}
	return m
}

// ObjectOutput is the JSON printed by put-object, get-object and head-object.
type ObjectOutput struct {
	ETag          string `json:"ETag,omitempty"`
	ContentLength *int64 `json:"ContentLength,omitempty"`
}

// Decode unmarshals the JSON standard output of r into v.
func Decode[T any](op Op, r Result) (T, error) {
	var v T
	if err := json.Unmarshal(r.Stdout, &v); err != nil {
		return v, herr.ErrMalformedOutput.WithDetail("%s: %v", op, err)
	}
	return v, nil
}
