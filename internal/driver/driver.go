// Package driver runs object lifecycles against the storage invoker: put,
// get, verify and delete for single objects, and create, upload, list,
// complete, get, verify and delete for multipart uploads.
package driver

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	herr "github.com/bleepstore/integrity/internal/errors"
	"github.com/bleepstore/integrity/internal/invoker"
	"github.com/bleepstore/integrity/internal/logging"
	"github.com/bleepstore/integrity/internal/verify"
)

// Result describes one lifecycle run.
type Result struct {
	Bucket string
	Key    string
	// Size is the number of reference bytes the object was built from.
	Size          int64
	ExpectFailure bool
	// Retrieved reports whether get-object succeeded.
	Retrieved bool
	UploadID  string
	Verdict   verify.Verdict
	Duration  time.Duration
}

// Driver issues lifecycle operations. It never retries.
type Driver struct {
	inv      invoker.Invoker
	manifest string
	log      *slog.Logger
}

// New returns a Driver writing completion manifests to manifestPath.
func New(inv invoker.Invoker, manifestPath string, log *slog.Logger) *Driver {
	return &Driver{inv: inv, manifest: manifestPath, log: logging.With(log, "driver")}
}

// WithManifest returns a copy of d writing manifests to path.
func (d *Driver) WithManifest(path string) *Driver {
	cp := *d
	cp.manifest = path
	return &cp
}

// PutAndGet uploads body to bucket/key, reads it back into download and
// verifies it against body unless the read is expected to fail. The object
// is deleted after the read either way.
func (d *Driver) PutAndGet(ctx context.Context, bucket, key, body, download string, expectGetFailure bool) (Result, error) {
	start := time.Now()
	r := Result{Bucket: bucket, Key: key, ExpectFailure: expectGetFailure}
	if info, err := os.Stat(body); err == nil {
		r.Size = info.Size()
	}

	p := invoker.Params{Bucket: bucket, Key: key, Body: body}
	if _, err := d.require(ctx, invoker.OpPutObject, p); err != nil {
		return d.done(r, start), err
	}

	err := d.getVerifyDelete(ctx, &r, download, []string{body})
	return d.done(r, start), err
}

// MultipartUpload uploads parts in order as parts 1..N of a new multipart
// upload, completes it from the service's own part listing and then reads,
// verifies and deletes the object like PutAndGet. The reference is the
// concatenation of parts. A failure after the upload was created aborts it.
func (d *Driver) MultipartUpload(ctx context.Context, bucket, key string, parts []string, download string, expectGetFailure bool) (Result, error) {
	start := time.Now()
	r := Result{Bucket: bucket, Key: key, ExpectFailure: expectGetFailure}
	for _, part := range parts {
		if info, err := os.Stat(part); err == nil {
			r.Size += info.Size()
		}
	}

	base := invoker.Params{Bucket: bucket, Key: key}
	res, err := d.require(ctx, invoker.OpCreateMultipartUpload, base)
	if err != nil {
		return d.done(r, start), err
	}
	created, err := invoker.Decode[invoker.CreateMultipartUploadOutput](invoker.OpCreateMultipartUpload, res)
	if err != nil {
		return d.done(r, start), err
	}
	if created.UploadID == "" {
		return d.done(r, start), herr.ErrMalformedOutput.WithDetail("create-multipart-upload %s/%s: empty UploadId", bucket, key)
	}
	r.UploadID = created.UploadID
	base.UploadID = created.UploadID

	if err := d.uploadAndComplete(ctx, base, parts); err != nil {
		d.abort(ctx, base)
		return d.done(r, start), err
	}

	err = d.getVerifyDelete(ctx, &r, download, parts)
	return d.done(r, start), err
}

func (d *Driver) uploadAndComplete(ctx context.Context, base invoker.Params, parts []string) error {
	for i, part := range parts {
		p := base
		p.PartNumber = i + 1
		p.Body = part
		if _, err := d.require(ctx, invoker.OpUploadPart, p); err != nil {
			return err
		}
	}

	res, err := d.require(ctx, invoker.OpListParts, base)
	if err != nil {
		return err
	}
	listing, err := invoker.Decode[invoker.ListPartsOutput](invoker.OpListParts, res)
	if err != nil {
		return err
	}
	if err := invoker.WriteManifest(d.manifest, listing.Manifest()); err != nil {
		return err
	}

	p := base
	p.Manifest = d.manifest
	_, err = d.require(ctx, invoker.OpCompleteMultipartUpload, p)
	return err
}

// getVerifyDelete removes any stale download, reads the object back,
// verifies it against refs and deletes it.
func (d *Driver) getVerifyDelete(ctx context.Context, r *Result, download string, refs []string) error {
	if err := os.Remove(download); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	p := invoker.Params{Bucket: r.Bucket, Key: r.Key, Download: download}
	res, err := d.inv.Invoke(ctx, invoker.OpGetObject, p)
	if err != nil {
		return err
	}
	r.Retrieved = res.OK()

	r.Verdict, err = verify.VerifyFiles(r.Retrieved, download, refs, verify.OutcomeFor(r.ExpectFailure))
	if err != nil {
		return err
	}
	if !r.Verdict.Pass && r.Verdict.Reason == verify.ExpectedSuccessButFailed {
		r.Verdict.Detail = "get-object: " + stderrLine(res)
	}

	if _, err := d.require(ctx, invoker.OpDeleteObject, invoker.Params{Bucket: r.Bucket, Key: r.Key}); err != nil {
		if verr := r.Verdict.Err(); verr != nil {
			d.log.Warn("delete after failed verification", "key", r.Key, "error", err)
			return verr
		}
		return err
	}
	return r.Verdict.Err()
}

// require invokes op and converts a non-success status into
// ErrInvocationFailure.
func (d *Driver) require(ctx context.Context, op invoker.Op, p invoker.Params) (invoker.Result, error) {
	res, err := d.inv.Invoke(ctx, op, p)
	if err != nil {
		return res, err
	}
	if !res.OK() {
		return res, herr.ErrInvocationFailure.WithDetail("%s %s/%s: exit status %d: %s",
			op, p.Bucket, p.Key, res.ExitStatus, stderrLine(res))
	}
	return res, nil
}

// abort makes one attempt to abort a multipart upload.
func (d *Driver) abort(ctx context.Context, p invoker.Params) {
	res, err := d.inv.Invoke(ctx, invoker.OpAbortMultipartUpload, p)
	if err != nil || !res.OK() {
		d.log.Warn("failed to abort multipart upload", "key", p.Key, "upload_id", p.UploadID,
			"exit_status", res.ExitStatus, "error", err)
	}
}

func (d *Driver) done(r Result, start time.Time) Result {
	r.Duration = time.Since(start)
	return r
}

func stderrLine(res invoker.Result) string {
	s := strings.TrimSpace(string(res.Stderr))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
