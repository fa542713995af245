package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bleepstore/integrity/internal/config"
)

// CLI runs storage operations through the aws s3api command line.
type CLI struct {
	// AWS is the aws executable.
	AWS string
	// Endpoint is passed as --endpoint-url when set.
	Endpoint string
	// Env is appended to the process environment of every invocation.
	Env []string
	// Faults serves enable-fi and disable-fi. Nil rejects them.
	Faults *FaultClient
}

// NewCLI builds a CLI invoker from the target and invoker settings. Static
// credentials and the region are exported through the environment.
func NewCLI(target config.TargetConfig, inv config.InvokerConfig, faults *FaultClient) *CLI {
	c := &CLI{AWS: inv.AWSCLI, Endpoint: target.Endpoint, Faults: faults}
	if c.AWS == "" {
		c.AWS = "aws"
	}
	if target.Region != "" {
		c.Env = append(c.Env, "AWS_DEFAULT_REGION="+target.Region)
	}
	if target.AccessKey != "" && target.SecretKey != "" {
		c.Env = append(c.Env,
			"AWS_ACCESS_KEY_ID="+target.AccessKey,
			"AWS_SECRET_ACCESS_KEY="+target.SecretKey,
		)
	}
	return c
}

// Invoke runs `aws s3api <op> ...` and captures its exit status and output.
func (c *CLI) Invoke(ctx context.Context, op Op, p Params) (Result, error) {
	if op == OpEnableFault || op == OpDisableFault {
		if c.Faults == nil {
			return Result{}, fmt.Errorf("%s: fault injection is not configured", op)
		}
		return c.Faults.Invoke(ctx, op, p)
	}

	args, err := s3apiArgs(op, p)
	if err != nil {
		return Result{}, err
	}
	if c.Endpoint != "" {
		args = append(args, "--endpoint-url", c.Endpoint)
	}

	cmd := exec.CommandContext(ctx, c.AWS, args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, fmt.Errorf("%s: %w", op, ctxErr)
	}
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("running %s %s: %w", c.AWS, op, err)
		}
		res.ExitStatus = exitErr.ExitCode()
	}
	return res, nil
}

// s3apiArgs returns the aws arguments for op, starting at "s3api".
func s3apiArgs(op Op, p Params) ([]string, error) {
	args := []string{"s3api", string(op)}
	switch op {
	case OpCreateBucket, OpDeleteBucket:
		args = append(args, "--bucket", p.Bucket)
	case OpPutObject:
		args = append(args, "--bucket", p.Bucket, "--key", p.Key, "--body", p.Body)
	case OpGetObject:
		args = append(args, "--bucket", p.Bucket, "--key", p.Key, p.Download)
	case OpHeadObject, OpDeleteObject, OpCreateMultipartUpload:
		args = append(args, "--bucket", p.Bucket, "--key", p.Key)
	case OpUploadPart:
		args = append(args, "--bucket", p.Bucket, "--key", p.Key,
			"--part-number", strconv.Itoa(p.PartNumber), "--upload-id", p.UploadID, "--body", p.Body)
	case OpListParts, OpAbortMultipartUpload:
		args = append(args, "--bucket", p.Bucket, "--key", p.Key, "--upload-id", p.UploadID)
	case OpCompleteMultipartUpload:
		args = append(args, "--multipart-upload", "file://"+p.Manifest,
			"--bucket", p.Bucket, "--key", p.Key, "--upload-id", p.UploadID)
	default:
		return nil, fmt.Errorf("unknown storage operation %q", op)
	}
	return append(args, "--output", "json"), nil
}

// CommandLine renders the manual command equivalent to invoking op with p.
// The fault-injection header is described for enable-fi and disable-fi.
func CommandLine(op Op, p Params, endpoint, faultHeader string) string {
	if op == OpEnableFault || op == OpDisableFault {
		return fmt.Sprintf("curl -X PUT %s -H '%s: %s' (SigV4 signed)",
			orDefault(endpoint, "<endpoint>"), orDefault(faultHeader, "x-seagate-faultinjection"), FaultDirective(op, p))
	}
	args, err := s3apiArgs(op, p)
	if err != nil {
		return "# " + err.Error()
	}
	// Drop the trailing --output json; it only matters to the harness.
	args = args[:len(args)-2]
	if endpoint != "" {
		args = append(args, "--endpoint-url", endpoint)
	}
	var sb strings.Builder
	sb.WriteString("aws")
	for _, a := range args {
		sb.WriteByte(' ')
		sb.WriteString(shellQuote(a))
	}
	return sb.String()
}

func shellQuote(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\"'$`\\") {
		return strconv.Quote(s)
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
