package sweep

import (
	"fmt"
	"strings"

	"github.com/bleepstore/integrity/internal/corruption"
	"github.com/bleepstore/integrity/internal/invoker"
	"github.com/bleepstore/integrity/internal/matrix"
	"github.com/bleepstore/integrity/internal/payload"
)

func (s *Sweeper) describePutGet(sc matrix.Single, spec corruption.Spec, obj payload.ObjectSpec, p paths) {
	base := invoker.Params{Bucket: s.opts.Bucket, Key: sc.Key}
	put := base
	put.Body = p.body
	get := base
	get.Download = p.download

	var sb strings.Builder
	fmt.Fprintln(&sb, "Testing PUT, followed by GET.")
	fmt.Fprintf(&sb, "Bucket name: %s\n", s.opts.Bucket)
	fmt.Fprintf(&sb, "Object key: %s\n", sc.Key)
	fmt.Fprintf(&sb, "Object size: %d\n", sc.Size)
	fmt.Fprintf(&sb, "First byte: %c\n", obj.Marker)
	fmt.Fprintf(&sb, "Kind of corruption: %s\n", spec.Category())
	fmt.Fprintf(&sb, "PUT filename (input): %s\n", p.body)
	fmt.Fprintf(&sb, "GET filename (output): %s\n", p.download)
	fmt.Fprintf(&sb, "GET must be successful: %t\n", !sc.ExpectFailure)
	fmt.Fprintln(&sb, "Commands:")
	fmt.Fprintf(&sb, "  integrity -create-random-file %s -random-file-size %d -random-file-first-byte %c\n", p.body, sc.Size, obj.Marker)
	fmt.Fprintf(&sb, "  %s\n", s.opts.Describe.Line(invoker.OpPutObject, put))
	fmt.Fprintf(&sb, "  rm -vf %s\n", p.download)
	fmt.Fprintf(&sb, "  %s && \\\n    cmp %s %s\n", s.opts.Describe.Line(invoker.OpGetObject, get), p.body, p.download)
	fmt.Fprintf(&sb, "  %s\n", s.opts.Describe.Line(invoker.OpDeleteObject, base))
	fmt.Fprintln(s.out, sb.String())
}

func (s *Sweeper) describeMultipart(mp matrix.Multipart, plan matrix.PartPlan, parts []string, p paths) {
	base := invoker.Params{Bucket: s.opts.Bucket, Key: mp.Key, UploadID: "$UPLOAD_ID"}

	var sb strings.Builder
	fmt.Fprintln(&sb, "Testing multipart upload, followed by GET.")
	fmt.Fprintf(&sb, "Bucket name: %s\n", s.opts.Bucket)
	fmt.Fprintf(&sb, "Object key: %s\n", mp.Key)
	fmt.Fprintf(&sb, "Part size: %d\n", mp.PartSize)
	fmt.Fprintf(&sb, "Number of full parts: %d\n", mp.PartCount)
	fmt.Fprintf(&sb, "Last part size: %d\n", mp.LastPartSize)
	fmt.Fprintf(&sb, "Kind of corruption: %s\n", plan.Spec.Category())
	if !plan.Spec.IsNoop() {
		fmt.Fprintf(&sb, "Corrupted part: %d\n", plan.Corrupted+1)
	}
	fmt.Fprintf(&sb, "GET filename (output): %s\n", p.download)
	fmt.Fprintf(&sb, "GET must be successful: %t\n", !mp.ExpectFailure)
	fmt.Fprintln(&sb, "Commands:")
	for i, part := range plan.Parts {
		fmt.Fprintf(&sb, "  integrity -create-random-file %s -random-file-size %d -random-file-first-byte %c\n", parts[i], part.Size, part.Marker)
	}
	fmt.Fprintf(&sb, "  UPLOAD_ID=$(%s --query UploadId --output text)\n", s.opts.Describe.Line(invoker.OpCreateMultipartUpload, invoker.Params{Bucket: s.opts.Bucket, Key: mp.Key}))
	for i, part := range parts {
		up := base
		up.PartNumber = i + 1
		up.Body = part
		fmt.Fprintf(&sb, "  %s\n", s.opts.Describe.Line(invoker.OpUploadPart, up))
	}
	fmt.Fprintf(&sb, "  %s | jq '{Parts: [.Parts[] | {PartNumber, ETag}]}' > %s\n", s.opts.Describe.Line(invoker.OpListParts, base), p.manifest)
	complete := base
	complete.Manifest = p.manifest
	fmt.Fprintf(&sb, "  %s\n", s.opts.Describe.Line(invoker.OpCompleteMultipartUpload, complete))
	get := invoker.Params{Bucket: s.opts.Bucket, Key: mp.Key, Download: p.download}
	fmt.Fprintf(&sb, "  rm -vf %s\n", p.download)
	fmt.Fprintf(&sb, "  %s && \\\n    cat %s | cmp - %s\n", s.opts.Describe.Line(invoker.OpGetObject, get), strings.Join(parts, " "), p.download)
	fmt.Fprintf(&sb, "  %s\n", s.opts.Describe.Line(invoker.OpDeleteObject, invoker.Params{Bucket: s.opts.Bucket, Key: mp.Key}))
	fmt.Fprintln(s.out, sb.String())
}
