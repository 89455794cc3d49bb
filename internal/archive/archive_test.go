package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnicapture/agent/internal/config"
)

func writeRecording(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("recording-bytes"), 0o644))
	return p
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "a.mp4", ObjectKey("", "/tmp/x/a.mp4"))
	assert.Equal(t, "clips/a.mp4", ObjectKey("clips", "/tmp/x/a.mp4"))
	assert.Equal(t, "clips/2026/a.gif", ObjectKey("/clips/2026/", "a.gif"))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, config.ArchiveConfig{})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = New(ctx, config.ArchiveConfig{Provider: "Local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name())

	_, err = New(ctx, config.ArchiveConfig{Provider: "ftp"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = New(ctx, config.ArchiveConfig{Provider: "azure", Bucket: "c"})
	assert.Error(t, err)
	_, err = New(ctx, config.ArchiveConfig{Provider: "b2", Bucket: "b"})
	assert.Error(t, err)
}

func TestLocalProviderUpload(t *testing.T) {
	src := writeRecording(t, "recording_20260101_120000.mp4")
	old := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, old, old))

	root := t.TempDir()
	p := NewLocalProvider(root)
	require.NoError(t, p.Upload(context.Background(), src, "clips/recording_20260101_120000.mp4"))

	dest := filepath.Join(root, "clips", "recording_20260101_120000.mp4")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "recording-bytes", string(data))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))

	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestLocalProviderRejectsTraversal(t *testing.T) {
	src := writeRecording(t, "a.mp4")
	p := NewLocalProvider(t.TempDir())

	err := p.Upload(context.Background(), src, "../escape.mp4")
	assert.ErrorContains(t, err, "outside archive root")
}

func TestLocalProviderValidation(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, NewLocalProvider("").Upload(ctx, "a", "b"))
	assert.Error(t, NewLocalProvider(t.TempDir()).Upload(ctx, "", "b"))
	assert.Error(t, NewLocalProvider(t.TempDir()).Upload(ctx, "a", ""))

	err := NewLocalProvider(t.TempDir()).Upload(ctx, filepath.Join(t.TempDir(), "missing.mp4"), "k")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type flakyProvider struct {
	mu       sync.Mutex
	failures int
	calls    int
	keys     []string
}

func (f *flakyProvider) Name() string { return "flaky" }
func (f *flakyProvider) Close() error { return nil }

func (f *flakyProvider) Upload(_ context.Context, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient")
	}
	f.keys = append(f.keys, key)
	return nil
}

func newTestUploader(p Provider, retries int) *Uploader {
	u := NewUploader(p, config.ArchiveConfig{Prefix: "rec", Workers: 1, Retries: retries}, nil)
	u.delay = time.Millisecond
	return u
}

func TestUploaderRetries(t *testing.T) {
	p := &flakyProvider{failures: 2}
	u := newTestUploader(p, 3)
	defer u.Close(context.Background())

	require.NoError(t, u.Upload(context.Background(), "/out/a.mp4"))
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []string{"rec/a.mp4"}, p.keys)
}

func TestUploaderGivesUp(t *testing.T) {
	p := &flakyProvider{failures: 10}
	u := newTestUploader(p, 2)
	defer u.Close(context.Background())

	err := u.Upload(context.Background(), "/out/a.mp4")
	assert.EqualError(t, err, "transient")
	assert.Equal(t, 2, p.calls)
}

func TestUploaderMissingFileNotRetried(t *testing.T) {
	root := t.TempDir()
	u := newTestUploader(NewLocalProvider(root), 5)
	defer u.Close(context.Background())

	err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUploaderEnqueueDrainsOnClose(t *testing.T) {
	src := writeRecording(t, "b.gif")
	root := t.TempDir()
	u := newTestUploader(NewLocalProvider(root), 1)

	u.Enqueue(src)
	require.NoError(t, u.Close(context.Background()))

	_, err := os.Stat(filepath.Join(root, "rec", "b.gif"))
	assert.NoError(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", contentType("x.MP4"))
	assert.Equal(t, "image/gif", contentType("x.gif"))
	assert.Equal(t, "application/octet-stream", contentType("x.wav"))
}
