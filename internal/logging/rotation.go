package logging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	defaultLogLimitMB = 20
	defaultLogBackups = 3
)

// RollingFile appends to a log file and moves it aside once it reaches a
// byte limit, keeping the newest backups as path.1 (newest) to path.N.
type RollingFile struct {
	path  string
	limit int64
	keep  int

	mu   sync.Mutex
	f    *os.File
	size int64
}

// OpenRollingFile opens (or creates) path for appending. Non-positive
// limits fall back to 20 MiB and three backups.
func OpenRollingFile(path string, limitMB, keep int) (*RollingFile, error) {
	if limitMB <= 0 {
		limitMB = defaultLogLimitMB
	}
	if keep <= 0 {
		keep = defaultLogBackups
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rf := &RollingFile{path: path, limit: int64(limitMB) << 20, keep: keep}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Setup configures the global logger from the log_* config values. When file
// is non-empty, records go to both stderr and the rolling file; the returned
// closer releases the file and is a no-op otherwise.
func Setup(format, level, file string, maxSizeMB, maxBackups int) (io.Closer, error) {
	if file == "" {
		Init(format, level, os.Stderr)
		return nopCloser{}, nil
	}

	rf, err := OpenRollingFile(file, maxSizeMB, maxBackups)
	if err != nil {
		Init(format, level, os.Stderr)
		return nopCloser{}, err
	}
	Init(format, level, io.MultiWriter(os.Stderr, rf))
	return rf, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (rf *RollingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.f == nil {
		return 0, os.ErrClosed
	}
	// An oversized record still lands in a fresh file rather than looping.
	if rf.size > 0 && rf.size+int64(len(p)) > rf.limit {
		if err := rf.roll(); err != nil {
			return 0, fmt.Errorf("roll log file: %w", err)
		}
	}
	n, err := rf.f.Write(p)
	rf.size += int64(n)
	return n, err
}

func (rf *RollingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.f == nil {
		return nil
	}
	err := rf.f.Close()
	rf.f = nil
	return err
}

func (rf *RollingFile) open() error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rf.f, rf.size = f, info.Size()
	return nil
}

// roll shifts path.N-1 to path.N down to path to path.1, dropping the oldest,
// then starts an empty file. A failed shift still reopens the live file so
// logging continues.
func (rf *RollingFile) roll() error {
	closeErr := rf.f.Close()
	rf.f = nil

	var errs []error
	if closeErr != nil {
		errs = append(errs, closeErr)
	}
	for n := rf.keep; n > 0; n-- {
		if err := os.Rename(rf.backup(n-1), rf.backup(n)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := rf.open(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// backup names the nth backup; zero is the live file.
func (rf *RollingFile) backup(n int) string {
	if n == 0 {
		return rf.path
	}
	return fmt.Sprintf("%s.%d", rf.path, n)
}
