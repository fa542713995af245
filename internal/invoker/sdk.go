package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/bleepstore/integrity/internal/config"
)

// S3API defines the subset of the AWS S3 client interface that the SDK
// invoker uses. This allows mocking in tests.
type S3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	ListParts(ctx context.Context, params *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// sdkOperation maps an Op to the API operation name quoted in error output.
var sdkOperation = map[Op]string{
	OpCreateBucket:            "CreateBucket",
	OpDeleteBucket:            "DeleteBucket",
	OpPutObject:               "PutObject",
	OpGetObject:               "GetObject",
	OpHeadObject:              "HeadObject",
	OpDeleteObject:            "DeleteObject",
	OpCreateMultipartUpload:   "CreateMultipartUpload",
	OpUploadPart:              "UploadPart",
	OpListParts:               "ListParts",
	OpCompleteMultipartUpload: "CompleteMultipartUpload",
	OpAbortMultipartUpload:    "AbortMultipartUpload",
}

// SDK runs storage operations in-process through aws-sdk-go-v2. Its output
// mirrors what `aws s3api ... --output json` prints, so callers can treat
// both executors alike.
type SDK struct {
	client S3API
	// Faults serves enable-fi and disable-fi. Nil rejects them.
	Faults *FaultClient
}

// LoadAWSConfig resolves the AWS configuration for target. Static
// credentials are used if provided, otherwise the default chain.
func LoadAWSConfig(ctx context.Context, target config.TargetConfig) (aws.Config, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(target.Region))

	if target.AccessKey != "" && target.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(target.AccessKey, target.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// NewS3Client builds an S3 client for target from a resolved AWS config,
// honouring a custom endpoint and path-style addressing.
func NewS3Client(cfg aws.Config, target config.TargetConfig) *s3.Client {
	var s3Opts []func(*s3.Options)
	if target.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(target.Endpoint)
		})
	}
	if target.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(cfg, s3Opts...)
}

// NewSDK creates an SDK invoker for target.
func NewSDK(ctx context.Context, target config.TargetConfig, faults *FaultClient) (*SDK, error) {
	cfg, err := LoadAWSConfig(ctx, target)
	if err != nil {
		return nil, err
	}
	return &SDK{client: NewS3Client(cfg, target), Faults: faults}, nil
}

// NewSDKWithClient creates an SDK invoker with a pre-configured S3 client.
// This is primarily used for testing with mock clients.
func NewSDKWithClient(client S3API, faults *FaultClient) *SDK {
	return &SDK{client: client, Faults: faults}
}

// Invoke performs op. Service errors yield ExitServiceError with the
// CLI-formatted message on stderr; local failures yield ExitClientError.
func (s *SDK) Invoke(ctx context.Context, op Op, p Params) (Result, error) {
	switch op {
	case OpEnableFault, OpDisableFault:
		if s.Faults == nil {
			return Result{}, fmt.Errorf("%s: fault injection is not configured", op)
		}
		return s.Faults.Invoke(ctx, op, p)

	case OpCreateBucket:
		out, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(p.Bucket)})
		if err != nil {
			return failure(ctx, op, err)
		}
		return jsonResult(struct {
			Location string `json:"Location,omitempty"`
		}{aws.ToString(out.Location)})

	case OpDeleteBucket:
		if _, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(p.Bucket)}); err != nil {
			return failure(ctx, op, err)
		}
		return Result{}, nil

	case OpPutObject:
		return s.putObject(ctx, p)

	case OpGetObject:
		return s.getObject(ctx, p)

	case OpHeadObject:
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(p.Bucket),
			Key:    aws.String(p.Key),
		})
		if err != nil {
			return failure(ctx, op, err)
		}
		return jsonResult(ObjectOutput{ETag: aws.ToString(out.ETag), ContentLength: out.ContentLength})

	case OpDeleteObject:
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.Bucket),
			Key:    aws.String(p.Key),
		})
		if err != nil {
			return failure(ctx, op, err)
		}
		return Result{}, nil

	case OpCreateMultipartUpload:
		out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket: aws.String(p.Bucket),
			Key:    aws.String(p.Key),
		})
		if err != nil {
			return failure(ctx, op, err)
		}
		return jsonResult(CreateMultipartUploadOutput{
			Bucket:   p.Bucket,
			Key:      p.Key,
			UploadID: aws.ToString(out.UploadId),
		})

	case OpUploadPart:
		return s.uploadPart(ctx, p)

	case OpListParts:
		return s.listParts(ctx, p)

	case OpCompleteMultipartUpload:
		return s.completeMultipartUpload(ctx, p)

	case OpAbortMultipartUpload:
		_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(p.Bucket),
			Key:      aws.String(p.Key),
			UploadId: aws.String(p.UploadID),
		})
		if err != nil {
			return failure(ctx, op, err)
		}
		return Result{}, nil
	}
	return Result{}, fmt.Errorf("unknown storage operation %q", op)
}

func (s *SDK) putObject(ctx context.Context, p Params) (Result, error) {
	f, size, err := openBody(p.Body)
	if err != nil {
		return clientError(err), nil
	}
	defer f.Close()

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.Bucket),
		Key:           aws.String(p.Key),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return failure(ctx, OpPutObject, err)
	}
	return jsonResult(ObjectOutput{ETag: aws.ToString(out.ETag)})
}

// getObject streams the object into p.Download. A partially written download
// is removed when the transfer fails.
func (s *SDK) getObject(ctx context.Context, p Params) (Result, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.Bucket),
		Key:    aws.String(p.Key),
	})
	if err != nil {
		return failure(ctx, OpGetObject, err)
	}
	defer out.Body.Close()

	f, err := os.Create(p.Download)
	if err != nil {
		return clientError(fmt.Errorf("opening download %q: %w", p.Download, err)), nil
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(p.Download)
		return failure(ctx, OpGetObject, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p.Download)
		return clientError(fmt.Errorf("closing download %q: %w", p.Download, err)), nil
	}
	return jsonResult(ObjectOutput{ETag: aws.ToString(out.ETag), ContentLength: out.ContentLength})
}

func (s *SDK) uploadPart(ctx context.Context, p Params) (Result, error) {
	f, size, err := openBody(p.Body)
	if err != nil {
		return clientError(err), nil
	}
	defer f.Close()

	out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(p.Bucket),
		Key:           aws.String(p.Key),
		UploadId:      aws.String(p.UploadID),
		PartNumber:    aws.Int32(int32(p.PartNumber)),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return failure(ctx, OpUploadPart, err)
	}
	return jsonResult(UploadPartOutput{ETag: aws.ToString(out.ETag)})
}

// listParts follows every page of the listing.
func (s *SDK) listParts(ctx context.Context, p Params) (Result, error) {
	listing := ListPartsOutput{Bucket: p.Bucket, Key: p.Key, UploadID: p.UploadID, Parts: []Part{}}
	pager := s3.NewListPartsPaginator(s.client, &s3.ListPartsInput{
		Bucket:   aws.String(p.Bucket),
		Key:      aws.String(p.Key),
		UploadId: aws.String(p.UploadID),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return failure(ctx, OpListParts, err)
		}
		for _, part := range page.Parts {
			listing.Parts = append(listing.Parts, Part{
				PartNumber: int(aws.ToInt32(part.PartNumber)),
				ETag:       aws.ToString(part.ETag),
				Size:       aws.ToInt64(part.Size),
			})
		}
	}
	return jsonResult(listing)
}

func (s *SDK) completeMultipartUpload(ctx context.Context, p Params) (Result, error) {
	manifest, err := ReadManifest(p.Manifest)
	if err != nil {
		return clientError(err), nil
	}
	parts := make([]types.CompletedPart, 0, len(manifest.Parts))
	for _, cp := range manifest.Parts {
		parts = append(parts, types.CompletedPart{
			ETag:       aws.String(cp.ETag),
			PartNumber: aws.Int32(int32(cp.PartNumber)),
		})
	}

	out, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(p.Bucket),
		Key:             aws.String(p.Key),
		UploadId:        aws.String(p.UploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return failure(ctx, OpCompleteMultipartUpload, err)
	}
	return jsonResult(struct {
		Bucket   string `json:"Bucket,omitempty"`
		Key      string `json:"Key,omitempty"`
		ETag     string `json:"ETag,omitempty"`
		Location string `json:"Location,omitempty"`
	}{p.Bucket, p.Key, aws.ToString(out.ETag), aws.ToString(out.Location)})
}

func openBody(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing parameter '--body': %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat body %q: %w", path, err)
	}
	return f, info.Size(), nil
}

// failure classifies an SDK error. Cancellation is returned as an error;
// service errors and transport errors become non-success results.
func failure(ctx context.Context, op Op, err error) (Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, fmt.Errorf("%s: %w", op, ctxErr)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		msg := fmt.Sprintf("An error occurred (%s) when calling the %s operation: %s",
			apiErr.ErrorCode(), sdkOperation[op], apiErr.ErrorMessage())
		return Result{ExitStatus: ExitServiceError, Stderr: []byte(msg)}, nil
	}
	return clientError(err), nil
}

func clientError(err error) Result {
	return Result{ExitStatus: ExitClientError, Stderr: []byte(err.Error())}
}

func jsonResult(v any) (Result, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return Result{}, fmt.Errorf("encoding output: %w", err)
	}
	return Result{Stdout: data}, nil
}
