package remote

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureConfig controls the Azure Blob Storage sink.
type AzureConfig struct {
	Account    string
	Container  string
	Prefix     string
	AccountKey string
	// Endpoint overrides the derived https://<account>.blob.core.windows.net.
	Endpoint string
}

// AzureSink replicates documents to an Azure Blob Storage container.
type AzureSink struct {
	client *azblob.Client
	cfg    AzureConfig
}

// NewAzure constructs an Azure sink with shared-key credentials.
func NewAzure(cfg AzureConfig) (*AzureSink, error) {
	if cfg.Account == "" || cfg.Container == "" {
		return nil, fmt.Errorf("remote: azure sink requires account and container")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("remote: azure sink requires SMARTPARK_AZURE_ACCOUNT_KEY")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("remote: azure credential: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: azure client: %w", err)
	}
	return &AzureSink{client: client, cfg: cfg}, nil
}

// Name identifies the sink in logs.
func (s *AzureSink) Name() string {
	return fmt.Sprintf("azure://%s/%s", s.cfg.Account, s.cfg.Container)
}

// Upload writes the payload to the configured container.
func (s *AzureSink) Upload(ctx context.Context, key string, data []byte) error {
	_, err := s.client.UploadBuffer(ctx, s.cfg.Container, joinKey(s.cfg.Prefix, key), data, nil)
	if err != nil {
		return fmt.Errorf("remote: azure upload %q: %w", key, err)
	}
	return nil
}
