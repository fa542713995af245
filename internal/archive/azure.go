package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureBlobAPI is the subset of the Azure Blob client the sink uses.
type AzureBlobAPI interface {
	UploadBlob(ctx context.Context, containerName, blobName string, data []byte) error
}

// realAzureClient wraps the official Azure SDK client to satisfy AzureBlobAPI.
type realAzureClient struct {
	client *azblob.Client
}

func clientOptions() *azblob.ClientOptions {
	return &azblob.ClientOptions{ClientOptions: policy.ClientOptions{
		Retry: policy.RetryOptions{MaxRetries: 3, RetryDelay: time.Second},
	}}
}

// newRealAzureClient creates a real Azure Blob client. If connectionString is
// non-empty, it uses connection string auth. Otherwise it falls back to
// DefaultAzureCredential.
func newRealAzureClient(accountURL, connectionString string) (*realAzureClient, error) {
	if connectionString != "" {
		client, err := azblob.NewClientFromConnectionString(connectionString, clientOptions())
		if err != nil {
			return nil, fmt.Errorf("creating Azure Blob client from connection string: %w", err)
		}
		return &realAzureClient{client: client}, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}
	client, err := azblob.NewClient(accountURL, cred, clientOptions())
	if err != nil {
		return nil, fmt.Errorf("creating Azure Blob client: %w", err)
	}
	return &realAzureClient{client: client}, nil
}

func (c *realAzureClient) UploadBlob(ctx context.Context, containerName, blobName string, data []byte) error {
	_, err := c.client.UploadBuffer(ctx, containerName, blobName, data, nil)
	return err
}

// AzureSink uploads reports to an Azure Blob container.
type AzureSink struct {
	Container  string
	AccountURL string
	Prefix     string
	client     AzureBlobAPI
}

// NewAzureSink creates an Azure client. AZURE_STORAGE_CONNECTION_STRING, when
// set, takes precedence over the default credential chain.
func NewAzureSink(container, accountURL, prefix string) (*AzureSink, error) {
	client, err := newRealAzureClient(accountURL, os.Getenv("AZURE_STORAGE_CONNECTION_STRING"))
	if err != nil {
		return nil, err
	}
	return NewAzureSinkWithClient(container, accountURL, prefix, client), nil
}

// NewAzureSinkWithClient returns an AzureSink using client.
func NewAzureSinkWithClient(container, accountURL, prefix string, client AzureBlobAPI) *AzureSink {
	return &AzureSink{Container: container, AccountURL: accountURL, Prefix: prefix, client: client}
}

// Upload implements Sink.
func (s *AzureSink) Upload(ctx context.Context, name string, data []byte) error {
	blob := objectName(s.Prefix, name)
	if err := s.client.UploadBlob(ctx, s.Container, blob, data); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			return fmt.Errorf("uploading %s to Azure container %s: %s (HTTP %d): %w",
				blob, s.Container, respErr.ErrorCode, respErr.StatusCode, err)
		}
		return fmt.Errorf("uploading %s to Azure container %s: %w", blob, s.Container, err)
	}
	return nil
}

func (s *AzureSink) String() string {
	return s.AccountURL + objectName(s.Container, s.Prefix)
}
