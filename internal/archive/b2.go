package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Backblaze/blazer/b2"

	"github.com/omnicapture/agent/internal/config"
)

// B2Provider uploads to a Backblaze B2 bucket using an application key.
type B2Provider struct {
	bucket *b2.Bucket
}

func NewB2Provider(ctx context.Context, cfg config.ArchiveConfig) (*B2Provider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("b2 archive requires a bucket")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("b2 archive requires access_key_id and secret_access_key")
	}
	client, err := b2.NewClient(ctx, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("create b2 client: %w", err)
	}
	bucket, err := client.Bucket(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("open b2 bucket %s: %w", cfg.Bucket, err)
	}
	return &B2Provider{bucket: bucket}, nil
}

func (p *B2Provider) Name() string { return "b2" }

func (p *B2Provider) Close() error { return nil }

func (p *B2Provider) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	w := p.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("b2 write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("b2 close %s: %w", key, err)
	}
	return nil
}
