package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// CompressedCache stores zstd-compressed payloads in an inner cache.
// Resolved trees and OSV records are JSON and compress well; this mostly
// matters for Redis memory and SQLite file size.
type CompressedCache struct {
	inner Cache
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// Compressed wraps inner. level follows zstd levels (1 fastest .. 22 best).
func Compressed(inner Cache, level int) (*CompressedCache, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &CompressedCache{inner: inner, enc: enc, dec: dec}, nil
}

// Get decompresses the stored value. A payload that is not valid zstd is
// deleted and reported as a miss.
func (c *CompressedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := c.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		_ = c.inner.Delete(ctx, key)
		return nil, false, nil
	}
	return out, true, nil
}

// Set compresses data before storing it.
func (c *CompressedCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.inner.Set(ctx, key, c.enc.EncodeAll(data, nil), ttl)
}

// Exists delegates to the inner cache.
func (c *CompressedCache) Exists(ctx context.Context, key string) (bool, error) {
	return c.inner.Exists(ctx, key)
}

// Delete delegates to the inner cache.
func (c *CompressedCache) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, key)
}

// Close releases the codec and closes the inner cache.
func (c *CompressedCache) Close() error {
	c.dec.Close()
	if err := c.enc.Close(); err != nil {
		c.inner.Close()
		return err
	}
	return c.inner.Close()
}

var _ Cache = (*CompressedCache)(nil)
