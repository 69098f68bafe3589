// Azure Blob Storage backend for the galleryd blob store.
//
// Proxies all blob operations to an upstream Azure Blob container via the
// official Azure SDK for Go. Keys map to {prefix}{key} in the container.
//
// Credentials are resolved via DefaultAzureCredential (env vars, managed
// identity, Azure CLI, etc.).
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// AzureBlobAPI defines the subset of the Azure Blob Storage client interface
// that the blob store uses. This allows mocking in tests.
type AzureBlobAPI interface {
	// UploadBlob uploads data to a blob, overwriting if it already exists.
	UploadBlob(ctx context.Context, containerName, blobName string, data []byte) error
	// DeleteBlob deletes a blob. Returns an error if the blob does not exist.
	DeleteBlob(ctx context.Context, containerName, blobName string) error
	// BlobExists checks if a blob exists.
	BlobExists(ctx context.Context, containerName, blobName string) (bool, error)
}

// AzureStore implements the Store interface by proxying blob operations to
// Azure Blob Storage.
type AzureStore struct {
	// Container is the upstream Azure Blob container name.
	Container string
	// AccountURL is the storage account URL (https://account.blob.core.windows.net).
	AccountURL string
	// Prefix is the key prefix for all blobs in the container.
	Prefix string
	// client is the Azure Blob client (satisfying AzureBlobAPI).
	client AzureBlobAPI
}

// NewAzureStore creates a new AzureStore for the given container using
// DefaultAzureCredential, and verifies the container is accessible.
func NewAzureStore(ctx context.Context, container, accountURL, prefix string) (*AzureStore, error) {
	if container == "" {
		return nil, fmt.Errorf("azure container name is required")
	}
	if accountURL == "" {
		return nil, fmt.Errorf("azure account URL is required")
	}

	client, err := newRealAzureClient(accountURL)
	if err != nil {
		return nil, fmt.Errorf("creating Azure client: %w", err)
	}

	s := &AzureStore{
		Container:  container,
		AccountURL: strings.TrimRight(accountURL, "/"),
		Prefix:     prefix,
		client:     client,
	}

	// Verify the upstream container is accessible by probing a blob name
	// that cannot exist.
	if _, err := s.client.BlobExists(ctx, container, "\x00nonexistent\x00"); err != nil {
		return nil, fmt.Errorf("cannot access upstream Azure container %q: %w", container, err)
	}

	slog.Info("Azure blob store initialized", "container", container, "account", accountURL, "prefix", prefix)
	return s, nil
}

// NewAzureStoreWithClient creates an AzureStore with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewAzureStoreWithClient(container, accountURL, prefix string, client AzureBlobAPI) *AzureStore {
	return &AzureStore{
		Container:  container,
		AccountURL: strings.TrimRight(accountURL, "/"),
		Prefix:     prefix,
		client:     client,
	}
}

// upstreamBlob maps a blob key to its upstream Azure blob name.
func (s *AzureStore) upstreamBlob(key string) string {
	return s.Prefix + key
}

// Put uploads blob data to the upstream container, overwriting any existing
// blob at the same name (last-write-wins).
func (s *AzureStore) Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading blob data: %w", err)
	}
	if err := s.client.UploadBlob(ctx, s.Container, s.upstreamBlob(key), data); err != nil {
		return 0, fmt.Errorf("uploading to Azure Blob: %w", err)
	}
	return int64(len(data)), nil
}

// Remove deletes the blob from the upstream container, returning ErrNotFound
// when the blob does not exist.
func (s *AzureStore) Remove(ctx context.Context, key string) error {
	err := s.client.DeleteBlob(ctx, s.Container, s.upstreamBlob(key))
	if err != nil {
		if isAzureNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting from Azure Blob: %w", err)
	}
	return nil
}

// PublicURL derives the stable Azure blob URL for the key. Pure, no I/O.
func (s *AzureStore) PublicURL(key string) string {
	return s.AccountURL + "/" + s.Container + "/" + s.upstreamBlob(key)
}

// Exists checks whether the blob exists in the upstream container.
func (s *AzureStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.client.BlobExists(ctx, s.Container, s.upstreamBlob(key))
}

// HealthCheck verifies the upstream container is reachable.
func (s *AzureStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.BlobExists(ctx, s.Container, "\x00health\x00"); err != nil {
		return fmt.Errorf("Azure health check: %w", err)
	}
	return nil
}

// isAzureNotFound checks if an Azure error indicates a missing blob.
func isAzureNotFound(err error) bool {
	if err == nil {
		return false
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == 404 || respErr.ErrorCode == "BlobNotFound" {
			return true
		}
	}
	// Mock clients in tests return plain errors.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blobnotfound") || strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
