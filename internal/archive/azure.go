package archive

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/omnicapture/agent/internal/config"
)

// AzureProvider uploads block blobs into a container; Bucket names the
// container.
type AzureProvider struct {
	client    *azblob.Client
	container string
}

func NewAzureProvider(cfg config.ArchiveConfig) (*AzureProvider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("azure archive requires a container in bucket")
	}
	if cfg.ConnectionString == "" {
		return nil, errors.New("azure archive requires a connection string")
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}
	return &AzureProvider{client: client, container: cfg.Bucket}, nil
}

func (p *AzureProvider) Name() string { return "azure" }

func (p *AzureProvider) Close() error { return nil }

func (p *AzureProvider) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := p.client.UploadFile(ctx, p.container, key, f, &azblob.UploadFileOptions{}); err != nil {
		return fmt.Errorf("azure upload %s: %w", key, err)
	}
	return nil
}
