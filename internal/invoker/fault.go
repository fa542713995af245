package invoker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// emptyPayloadHash is the SHA-256 of an empty request body.
var emptyPayloadHash = func() string {
	sum := sha256.Sum256(nil)
	return hex.EncodeToString(sum[:])
}()

// FaultClient toggles named server-side fault points. Each toggle is a
// SigV4-signed request to the service endpoint carrying the directive in a
// dedicated header.
type FaultClient struct {
	Endpoint    string
	Region      string
	Header      string
	Method      string
	Credentials aws.CredentialsProvider
	HTTP        *http.Client
	signer      *v4.Signer
}

// NewFaultClient returns a FaultClient signing with creds. A nil creds sends
// unsigned requests.
func NewFaultClient(endpoint, region, header, method string, creds aws.CredentialsProvider) *FaultClient {
	if method == "" {
		method = http.MethodPut
	}
	return &FaultClient{
		Endpoint:    endpoint,
		Region:      region,
		Header:      header,
		Method:      method,
		Credentials: creds,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		signer:      v4.NewSigner(),
	}
}

// FaultDirective renders the header value for a fault toggle:
// "<enable|disable>,<frequency|noop>,<name>,0,0".
func FaultDirective(op Op, p Params) string {
	if op == OpDisableFault {
		return fmt.Sprintf("disable,noop,%s,0,0", p.Fault)
	}
	return fmt.Sprintf("enable,%s,%s,0,0", p.Frequency, p.Fault)
}

// Invoke sends the fault toggle. A 2xx response is success; any other status
// is a service error; transport failures are client errors.
func (f *FaultClient) Invoke(ctx context.Context, op Op, p Params) (Result, error) {
	if op != OpEnableFault && op != OpDisableFault {
		return Result{}, fmt.Errorf("fault client cannot run %q", op)
	}
	if f.Endpoint == "" {
		return Result{ExitStatus: ExitClientError, Stderr: []byte("fault injection requires target.endpoint")}, nil
	}

	req, err := http.NewRequestWithContext(ctx, f.Method, f.Endpoint, http.NoBody)
	if err != nil {
		return Result{ExitStatus: ExitClientError, Stderr: []byte(err.Error())}, nil
	}
	req.Header.Set(f.Header, FaultDirective(op, p))
	req.Header.Set("X-Amz-Content-Sha256", emptyPayloadHash)

	if f.Credentials != nil {
		creds, err := f.Credentials.Retrieve(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("retrieving credentials: %w", err)
		}
		signer := f.signer
		if signer == nil {
			signer = v4.NewSigner()
		}
		if err := signer.SignHTTP(ctx, creds, req, emptyPayloadHash, "s3", f.Region, time.Now()); err != nil {
			return Result{}, fmt.Errorf("signing fault request: %w", err)
		}
	}

	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return Result{ExitStatus: ExitClientError, Stderr: []byte(err.Error())}, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		msg := fmt.Sprintf("An error occurred (%d) when calling the %s operation: %s",
			resp.StatusCode, op, bytes.TrimSpace(body))
		return Result{ExitStatus: ExitServiceError, Stderr: []byte(msg)}, nil
	}
	return Result{Stdout: body}, nil
}
