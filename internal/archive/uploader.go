package archive

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/omnicapture/agent/internal/config"
	"github.com/omnicapture/agent/internal/logging"
	"github.com/omnicapture/agent/internal/observe"
	"github.com/omnicapture/agent/internal/workerpool"
)

const (
	uploadQueueSize   = 16
	defaultRetryDelay = 2 * time.Second
)

// Uploader archives finished recordings in the background. Upload failures
// are logged and counted; they never propagate to the recording.
type Uploader struct {
	provider Provider
	prefix   string
	attempts uint
	delay    time.Duration
	pool     *workerpool.Pool
	metrics  *observe.Metrics
}

// NewUploader runs uploads for provider on cfg.Workers goroutines with
// cfg.Retries attempts each. metrics may be nil.
func NewUploader(provider Provider, cfg config.ArchiveConfig, metrics *observe.Metrics) *Uploader {
	return &Uploader{
		provider: provider,
		prefix:   cfg.Prefix,
		attempts: uint(max(cfg.Retries, 1)),
		delay:    defaultRetryDelay,
		pool:     workerpool.New(cfg.Workers, uploadQueueSize),
		metrics:  metrics,
	}
}

// Enqueue schedules localPath for upload. It matches the OnFinished
// observer callback.
func (u *Uploader) Enqueue(localPath string) {
	key := ObjectKey(u.prefix, localPath)
	err := u.pool.Submit(workerpool.Job{
		Name: "archive:" + key,
		Run: func(ctx context.Context) error {
			return u.Upload(ctx, localPath)
		},
	})
	if err != nil {
		log.Warn("archive upload not scheduled", logging.KeyPath, localPath, logging.KeyError, err)
	}
}

// Upload copies localPath to the provider, retrying transient failures.
func (u *Uploader) Upload(ctx context.Context, localPath string) error {
	key := ObjectKey(u.prefix, localPath)
	logger := logging.FromContext(ctx).With("provider", u.provider.Name(), "key", key)
	start := time.Now()

	err := retry.Do(
		func() error {
			err := u.provider.Upload(ctx, localPath, key)
			if isPermanent(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Attempts(u.attempts),
		retry.Delay(u.delay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("archive upload retry", "attempt", n+1, logging.KeyError, err)
		}),
	)

	status := "success"
	if err != nil {
		status = "failed"
		logger.Error("archive upload failed", logging.KeyError, err)
	} else {
		logger.Info("recording archived", logging.KeyDurationMs, time.Since(start).Milliseconds())
	}
	if u.metrics != nil {
		u.metrics.RecordUpload(ctx, u.provider.Name(), status)
	}
	return err
}

// Close waits for pending uploads until ctx ends, then releases the provider.
func (u *Uploader) Close(ctx context.Context) error {
	u.pool.Shutdown(ctx)
	return u.provider.Close()
}

// isPermanent reports failures that a retry cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, fs.ErrNotExist)
}

func contentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".mp4":
		return "video/mp4"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
