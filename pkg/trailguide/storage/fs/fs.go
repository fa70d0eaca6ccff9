// Package fs is a filesystem implementation of the trailguide.BlobStore
// interface. Uploads are written to a temporary file in the same directory and
// renamed into place, so a key never resolves to a partially written payload.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

// Backend stores blobs as flat files under a base directory.
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend.
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a new filesystem storage backend, creating the base directory if
// it doesn't exist.
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

// path resolves key inside the base directory, rejecting traversal outside it.
func (b *Backend) path(key string) (string, error) {
	p := filepath.Join(b.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Clean(b.baseDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return p, nil
}

// Upload writes the blob atomically: data lands in a temporary file first and
// is renamed over the final path once complete.
func (b *Backend) Upload(ctx context.Context, key string, r io.Reader) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to publish file: %w", err)
	}
	return nil
}

// Download opens the blob for reading.
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, trailguide.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes the blob.
func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); os.IsNotExist(err) {
		return trailguide.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Meta retrieves size and modification time for a blob.
func (b *Backend) Meta(ctx context.Context, key string) (*trailguide.BlobMeta, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, trailguide.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	return &trailguide.BlobMeta{
		Key:       key,
		Size:      info.Size(),
		UpdatedAt: info.ModTime(),
	}, nil
}
