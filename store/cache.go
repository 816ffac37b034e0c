// Package store keeps local state between runs: the catalog checkpoint in a
// blob bucket and per-target status in a sqlite database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"packt-downloader/model"
)

// CatalogKey is the object holding the serialized catalog.
const CatalogKey = "books.cache"

// ErrMalformedCache is returned when the checkpoint exists but cannot be
// decoded.
var ErrMalformedCache = errors.New("store: malformed catalog cache")

// CatalogCache persists the enumerated catalog so later runs can skip
// listing. Writes are serialized.
type CatalogCache struct {
	bucket *blob.Bucket
	key    string
	mu     sync.Mutex
}

func NewCatalogCache(bucket *blob.Bucket, key string) *CatalogCache {
	if key == "" {
		key = CatalogKey
	}
	return &CatalogCache{bucket: bucket, key: key}
}

// OpenCatalogCache opens the cache in the bucket at bucketURL, for example
// "file:///var/lib/packtdl" or "mem://".
func OpenCatalogCache(ctx context.Context, bucketURL string) (*CatalogCache, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache bucket: %w", err)
	}
	return NewCatalogCache(bucket, CatalogKey), nil
}

// OpenCatalogCacheFile keeps the cache in a plain file; its directory is
// created when missing.
func OpenCatalogCacheFile(path string) (*CatalogCache, error) {
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache directory: %w", err)
	}
	return NewCatalogCache(bucket, filepath.Base(path)), nil
}

// Load returns the cached catalog. ok is false when no checkpoint exists.
func (c *CatalogCache) Load(ctx context.Context) (items []model.CatalogItem, ok bool, err error) {
	data, err := c.bucket.ReadAll(ctx, c.key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read catalog cache: %w", err)
	}

	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedCache, err)
	}
	for i, item := range items {
		if item.ProductID == "" {
			return nil, false, fmt.Errorf("%w: item %d has no productId", ErrMalformedCache, i)
		}
	}
	return items, true, nil
}

// Save replaces the checkpoint with items.
func (c *CatalogCache) Save(ctx context.Context, items []model.CatalogItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if items == nil {
		items = []model.CatalogItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode catalog cache: %w", err)
	}
	if err := c.bucket.WriteAll(ctx, c.key, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("failed to write catalog cache: %w", err)
	}
	return nil
}

// Clear drops the checkpoint. Clearing a missing checkpoint is not an error.
func (c *CatalogCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.bucket.Delete(ctx, c.key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("failed to delete catalog cache: %w", err)
	}
	return nil
}

func (c *CatalogCache) Close() error {
	return c.bucket.Close()
}
