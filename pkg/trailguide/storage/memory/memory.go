// Package memory is an in-memory implementation of the trailguide.BlobStore
// interface, used in tests and as a throwaway backend for local development.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

type object struct {
	data      []byte
	updatedAt time.Time
}

// Backend holds blobs in a map guarded by a RWMutex.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates a new in-memory storage backend.
func New() *Backend {
	return &Backend{objects: make(map[string]object)}
}

// Upload stores the blob. The payload is buffered fully before the map is
// touched, so readers never observe a partial write.
func (b *Backend) Upload(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: data, updatedAt: time.Now()}
	return nil
}

// Download returns a reader over a copy-free view of the stored payload.
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, trailguide.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete removes the blob.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return trailguide.ErrNotFound
	}
	delete(b.objects, key)
	return nil
}

// Meta retrieves metadata for a stored blob.
func (b *Backend) Meta(ctx context.Context, key string) (*trailguide.BlobMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, trailguide.ErrNotFound
	}
	return &trailguide.BlobMeta{
		Key:       key,
		Size:      int64(len(obj.data)),
		UpdatedAt: obj.updatedAt,
	}, nil
}
