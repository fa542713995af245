package invoker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bleepstore/integrity/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAWS writes an executable script standing in for the aws binary.
func fakeAWS(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aws")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestS3APIArgs(t *testing.T) {
	tests := []struct {
		op   Op
		p    Params
		want string
	}{
		{OpCreateBucket, Params{Bucket: "b"}, "s3api create-bucket --bucket b --output json"},
		{OpPutObject, Params{Bucket: "b", Key: "k", Body: "/tmp/body"}, "s3api put-object --bucket b --key k --body /tmp/body --output json"},
		{OpGetObject, Params{Bucket: "b", Key: "k", Download: "/tmp/out"}, "s3api get-object --bucket b --key k /tmp/out --output json"},
		{OpUploadPart, Params{Bucket: "b", Key: "k", UploadID: "u", PartNumber: 2, Body: "p2"}, "s3api upload-part --bucket b --key k --part-number 2 --upload-id u --body p2 --output json"},
		{OpListParts, Params{Bucket: "b", Key: "k", UploadID: "u"}, "s3api list-parts --bucket b --key k --upload-id u --output json"},
		{OpCompleteMultipartUpload, Params{Bucket: "b", Key: "k", UploadID: "u", Manifest: "/tmp/parts.json"}, "s3api complete-multipart-upload --multipart-upload file:///tmp/parts.json --bucket b --key k --upload-id u --output json"},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			args, err := s3apiArgs(tt.op, tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.Join(args, " "))
		})
	}

	_, err := s3apiArgs("rename-object", Params{})
	assert.Error(t, err)
}

func TestCLIInvokeSuccess(t *testing.T) {
	aws := fakeAWS(t, `echo "$@"; echo "region=$AWS_DEFAULT_REGION" >&2`)
	cli := NewCLI(
		config.TargetConfig{Endpoint: "http://127.0.0.1:9000", Region: "eu-west-1"},
		config.InvokerConfig{AWSCLI: aws},
		nil,
	)

	res, err := cli.Invoke(context.Background(), OpHeadObject, Params{Bucket: "b", Key: "k"})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "s3api head-object --bucket b --key k --output json --endpoint-url http://127.0.0.1:9000\n", string(res.Stdout))
	assert.Equal(t, "region=eu-west-1\n", string(res.Stderr))
}

func TestCLIInvokeExitStatus(t *testing.T) {
	aws := fakeAWS(t, `echo "An error occurred (NoSuchKey)" >&2; exit 254`)
	cli := NewCLI(config.TargetConfig{}, config.InvokerConfig{AWSCLI: aws}, nil)

	res, err := cli.Invoke(context.Background(), OpGetObject, Params{Bucket: "b", Key: "k", Download: "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, 254, res.ExitStatus)
	assert.False(t, res.OK())
	assert.Contains(t, string(res.Stderr), "NoSuchKey")
}

func TestCLIMissingExecutable(t *testing.T) {
	cli := NewCLI(config.TargetConfig{}, config.InvokerConfig{AWSCLI: filepath.Join(t.TempDir(), "missing")}, nil)
	_, err := cli.Invoke(context.Background(), OpCreateBucket, Params{Bucket: "b"})
	assert.Error(t, err)
}

func TestCLIFaultWithoutClient(t *testing.T) {
	cli := NewCLI(config.TargetConfig{}, config.InvokerConfig{}, nil)
	_, err := cli.Invoke(context.Background(), OpDisableFault, Params{Fault: "x"})
	assert.Error(t, err)
}

func TestCommandLine(t *testing.T) {
	got := CommandLine(OpPutObject, Params{Bucket: "test", Key: "size=1_i=0", Body: "./s3-object.bin"}, "", "")
	assert.Equal(t, "aws s3api put-object --bucket test --key size=1_i=0 --body ./s3-object.bin", got)

	got = CommandLine(OpGetObject, Params{Bucket: "test", Key: "k", Download: "my file"}, "http://localhost", "")
	assert.Equal(t, `aws s3api get-object --bucket test --key k "my file" --endpoint-url http://localhost`, got)

	got = CommandLine(OpEnableFault, Params{Fault: "di_data_corrupted_on_write", Frequency: "always"}, "http://s3", "x-fi")
	assert.Contains(t, got, "x-fi: enable,always,di_data_corrupted_on_write,0,0")
}
