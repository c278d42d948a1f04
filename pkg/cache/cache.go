// Package cache provides the key/value store with TTL that memoizes
// resolution results, vulnerability lookups and registry responses.
//
// # Backends
//
//   - [FileCache]: one JSON envelope per key on disk, atomic writes
//   - [MemoryCache]: in-process concurrent map
//   - [RedisCache]: shared cache for server deployments
//   - [SQLiteCache]: single-file embedded store
//   - [NullCache]: caching disabled
//
// Any backend can be wrapped with [Compressed] to store zstd payloads.
//
// # Correctness
//
// Entries are advisory. A missing, expired or undecodable entry is a miss:
// the caller recomputes and may store again. Corruption never surfaces as
// an error from [GetJSON]. Backends must support concurrent reads and
// writes to distinct keys; no cross-key locking is performed.
//
// # Keys
//
// Keys are deterministic hashes of normalized input, built with
// [GenerateKey] or a [Keyer]:
//
//	key := cache.GenerateKey("resolve", "pypi", "Requests==2.31.0")
//	keyer := cache.NewDefaultKeyer()
//	key = keyer.ResolveKey("pypi", "requests==2.31.0")
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/matzehuels/stackaudit/pkg/observability"
)

// Default TTLs per entry kind.
const (
	TTLResolve = time.Hour
	TTLHTTP    = 24 * time.Hour
	TTLVuln    = 6 * time.Hour
)

// Cache is a key/value store with per-entry TTL.
//
// Get reports hit=false for missing and expired entries without an error.
// A ttl of zero stores the entry without expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON loads key and decodes it into v.
//
// A payload that cannot be decoded is deleted and reported as a miss.
// Backend read errors are returned so callers can log them; callers should
// still treat them as a miss.
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	kind := keyKind(key)
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		observability.Cache().OnCacheError(ctx, kind, err)
		return false, err
	}
	if !ok {
		observability.Cache().OnCacheMiss(ctx, kind)
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		_ = c.Delete(ctx, key)
		observability.Cache().OnCacheError(ctx, kind, err)
		observability.Cache().OnCacheMiss(ctx, kind)
		return false, nil
	}
	observability.Cache().OnCacheHit(ctx, kind)
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		observability.Cache().OnCacheError(ctx, keyKind(key), err)
		return err
	}
	observability.Cache().OnCacheSet(ctx, keyKind(key), len(data))
	return nil
}

// keyKind returns the namespace of a key ("resolve", "http", ...) for metrics.
func keyKind(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}
