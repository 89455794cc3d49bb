// Package archive copies finished recordings to a configured destination.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/omnicapture/agent/internal/config"
	"github.com/omnicapture/agent/internal/logging"
)

var log = logging.L("archive")

// ErrUnknownProvider is returned by New for an unrecognised provider name.
var ErrUnknownProvider = errors.New("unknown archive provider")

// Provider stores a local file under a remote key.
type Provider interface {
	Name() string
	Upload(ctx context.Context, localPath, key string) error
	Close() error
}

// New builds the provider selected by cfg.Provider. It returns (nil, nil)
// when archiving is disabled.
func New(ctx context.Context, cfg config.ArchiveConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "local":
		return NewLocalProvider(cfg.LocalPath), nil
	case "s3":
		return NewS3Provider(ctx, cfg)
	case "gcs":
		return NewGCSProvider(ctx, cfg)
	case "azure":
		return NewAzureProvider(cfg)
	case "b2":
		return NewB2Provider(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// ObjectKey joins prefix and the base name of localPath with forward slashes.
func ObjectKey(prefix, localPath string) string {
	name := filepath.Base(localPath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
