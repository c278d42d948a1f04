package cache

import (
	"context"
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Options selects and configures a backend.
type Options struct {
	Backend  string // file (default), memory, redis, sqlite or none
	Dir      string // root directory for file and sqlite backends
	RedisURL string // connection URL for the redis backend
	Compress bool   // wrap the backend with zstd compression
}

// Open constructs the configured backend.
func Open(ctx context.Context, opts Options) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch opts.Backend {
	case "", BackendFile:
		if opts.Dir == "" {
			return nil, fmt.Errorf("file cache requires a directory")
		}
		c, err = NewFileCache(opts.Dir)
	case BackendMemory:
		c = NewMemoryCache()
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis cache requires a URL")
		}
		c, err = NewRedisCache(ctx, opts.RedisURL)
	case BackendSQLite:
		if opts.Dir == "" {
			return nil, fmt.Errorf("sqlite cache requires a directory")
		}
		c, err = NewSQLiteCache(filepath.Join(opts.Dir, "cache.db"))
	case BackendNone:
		return NewNullCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	if opts.Compress {
		cc, err := Compressed(c, 3)
		if err != nil {
			c.Close()
			return nil, err
		}
		return cc, nil
	}
	return c, nil
}
