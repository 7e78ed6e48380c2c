package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrS3NotConfigured is returned when an s3:// location is used
// without S3 configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// LocalStorage implements the Storage interface using local disk.
// It also owns the staging directory used by S3Storage.
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates a new LocalStorage instance.
// The tempDir parameter specifies where staged files are kept.
// If tempDir is empty, os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "mvad")
	}

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &LocalStorage{tempDir: tempDir}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// Open opens a local shard for reading.
func (s *LocalStorage) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if strings.HasPrefix(location, s3Scheme) {
		return nil, ErrS3NotConfigured
	}

	f, err := os.Open(location) // #nosec G304 - location is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open shard: %w", err)
	}

	return f, nil
}

// WriteAtomic writes to a temporary file next to location and renames it
// into place once write and close succeed.
func (s *LocalStorage) WriteAtomic(ctx context.Context, location string, write func(w io.Writer) error) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if strings.HasPrefix(location, s3Scheme) {
		return ErrS3NotConfigured
	}

	dir := filepath.Dir(location)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := s.writeTemp(dir, "."+filepath.Base(location)+".tmp-*", write)
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, location); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename shard into place: %w", err)
	}

	return nil
}

// stage writes to a temporary file in the staging directory and returns
// its path. The caller removes it.
func (s *LocalStorage) stage(name string, write func(w io.Writer) error) (string, error) {
	return s.writeTemp(s.tempDir, name+"_*", write)
}

func (s *LocalStorage) writeTemp(dir, pattern string, write func(w io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fileName := f.Name()
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", err
	}

	if err := f.Chmod(0644); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("chmod temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return fileName, nil
}

// Verify interface implementation at compile time.
var _ Storage = (*LocalStorage)(nil)
