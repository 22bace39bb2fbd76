package session

import (
	"context"
	"fmt"

	"github.com/openclaw/missioncontrol/internal"
)

// Storage is a session-scoped key-value store. Implementations return an
// error wrapping internal.ErrStorageUnavailable when the backend denies
// access.
type Storage interface {
	// Get retrieves the value for key, reporting whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, overwriting any existing value.
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*BigCacheStorage)(nil)
	_ Storage = (*RedisStorage)(nil)
	_ Storage = (*FileStorage)(nil)
	_ Storage = UnavailableStorage{}
)

// MemoryStorage is a process-local Storage.
type MemoryStorage struct {
	m *internal.SafeMap[string, string]
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: internal.NewSafeMap[string, string]()}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.m.Get(key)
	return v, ok, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.m.Set(key, value)
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, keys ...string) error {
	s.m.Delete(keys...)
	return nil
}

// UnavailableStorage is a Storage that denies every operation, e.g. when no
// session storage is configured.
type UnavailableStorage struct{}

func (UnavailableStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, internal.ErrStorageUnavailable
}

func (UnavailableStorage) Set(context.Context, string, string) error {
	return internal.ErrStorageUnavailable
}

func (UnavailableStorage) Delete(context.Context, ...string) error {
	return internal.ErrStorageUnavailable
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", internal.ErrStorageUnavailable, op, err)
}
