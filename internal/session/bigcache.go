package session

import (
	"context"
	"time"

	"github.com/allegro/bigcache"
)

// DefaultTTL is the lifetime of a stored session value.
const DefaultTTL = 12 * time.Hour

// BigCacheStorage is an in-process Storage whose entries are evicted once
// they outlive the session TTL.
type BigCacheStorage struct {
	cache *bigcache.BigCache
}

type BigCacheConfig struct {
	// TTL is the session lifetime. Defaults to DefaultTTL.
	TTL time.Duration
	// Size is the maximum size of the cache in MB. Zero means no limit.
	Size int
}

func NewBigCacheStorage(config BigCacheConfig) (*BigCacheStorage, error) {
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}
	defaults := bigcache.DefaultConfig(config.TTL)
	// Only a handful of keys are ever stored.
	defaults.Shards = 16
	defaults.MaxEntriesInWindow = 16
	defaults.CleanWindow = time.Minute
	defaults.HardMaxCacheSize = config.Size

	cache, err := bigcache.NewBigCache(defaults)
	if err != nil {
		return nil, err
	}
	return &BigCacheStorage{cache: cache}, nil
}

func (s *BigCacheStorage) Get(_ context.Context, key string) (string, bool, error) {
	b, err := s.cache.Get(key)
	if err != nil {
		// bigcache only fails a lookup when the entry is absent.
		return "", false, nil
	}
	return string(b), true, nil
}

func (s *BigCacheStorage) Set(_ context.Context, key, value string) error {
	if err := s.cache.Set(key, []byte(value)); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *BigCacheStorage) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		// deleting an absent entry is reported as an error; ignore it.
		_ = s.cache.Delete(k)
	}
	return nil
}

// Close stops the cache's background cleaner.
func (s *BigCacheStorage) Close() error {
	return s.cache.Close()
}
