package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// containedPath resolves untrustedPath below basePath and rejects keys that
// escape it.
func containedPath(basePath, untrustedPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absJoined, err := filepath.Abs(filepath.Join(absBase, filepath.FromSlash(untrustedPath)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q resolves outside archive root %q", untrustedPath, absBase)
	}
	return absJoined, nil
}

// LocalProvider archives recordings into a directory on a local or mounted
// filesystem.
type LocalProvider struct {
	BasePath string
}

func NewLocalProvider(basePath string) *LocalProvider {
	return &LocalProvider{BasePath: filepath.Clean(basePath)}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) Close() error { return nil }

// Upload copies localPath to BasePath/key, preserving its modification time.
func (p *LocalProvider) Upload(ctx context.Context, localPath, key string) error {
	if p.BasePath == "" || p.BasePath == "." {
		return errors.New("local provider base path is required")
	}
	if localPath == "" {
		return errors.New("local source path is required")
	}
	if key == "" {
		return errors.New("object key is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	destPath, err := containedPath(p.BasePath, key)
	if err != nil {
		return err
	}
	return copyFile(localPath, destPath)
}

func copyFile(srcPath, destPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	// Write to a sibling temp file so a crashed copy never looks complete.
	tmp := destPath + ".part"
	destFile, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	_, err = io.Copy(destFile, srcFile)
	if closeErr := destFile.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, destPath)
	}
	if err == nil {
		err = os.Chtimes(destPath, info.ModTime(), info.ModTime())
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}
