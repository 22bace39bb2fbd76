package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return NewCache(CacheConfig{RetryDelay: time.Millisecond})
}

func TestKey_HasPrefix(t *testing.T) {
	tests := []struct {
		name   string
		key    Key
		prefix Key
		want   bool
	}{
		{"exact", Key{"boards"}, Key{"boards"}, true},
		{"prefix", Key{"boards", "b1", "tasks"}, Key{"boards"}, true},
		{"empty prefix", Key{"boards"}, Key{}, true},
		{"different", Key{"healthz"}, Key{"boards"}, false},
		{"longer prefix", Key{"boards"}, Key{"boards", "b1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.HasPrefix(tt.prefix))
		})
	}
}

func TestCache_SetData(t *testing.T) {
	cache := newTestCache(t)
	key := Key{"boards"}

	_, ok := Data[[]string](cache, key)
	assert.False(t, ok)

	cache.SetData(key, []string{"ops", "dev"})

	got, ok := Data[[]string](cache, key)
	require.True(t, ok)
	assert.Equal(t, []string{"ops", "dev"}, got)

	st, ok := cache.State(key)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.False(t, st.DataUpdatedAt.IsZero())

	// wrong type
	_, ok = Data[int](cache, key)
	assert.False(t, ok)
}

func TestCache_Update(t *testing.T) {
	cache := newTestCache(t)
	key := Key{"boards"}

	Update(cache, key, func(old []string) []string {
		return append(old, "ops")
	})
	Update(cache, key, func(old []string) []string {
		return append(old, "dev")
	})

	got, _ := Data[[]string](cache, key)
	assert.Equal(t, []string{"ops", "dev"}, got)
}

func TestCache_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("shares in-flight fetch", func(t *testing.T) {
		cache := newTestCache(t)
		var calls atomic.Int32
		release := make(chan struct{})
		q := New(cache, Key{"boards"}, func(ctx context.Context) (string, error) {
			calls.Add(1)
			<-release
			return "boards", nil
		}, Options{})

		var wg sync.WaitGroup
		results := make([]string, 3)
		for i := range results {
			wg.Go(func() {
				results[i], _ = q.Refetch(ctx)
			})
		}
		require.Eventually(t, func() bool {
			return q.Result().FetchStatus == FetchFetching
		}, time.Second, time.Millisecond)
		// give the other callers time to join the flight
		time.Sleep(10 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, []string{"boards", "boards", "boards"}, results)
	})

	t.Run("retries once by default", func(t *testing.T) {
		cache := newTestCache(t)
		var calls atomic.Int32
		q := New(cache, Key{"boards"}, func(ctx context.Context) (string, error) {
			if calls.Add(1) == 1 {
				return "", errors.New("transient")
			}
			return "boards", nil
		}, Options{})

		got, err := q.Refetch(ctx)
		require.NoError(t, err)
		assert.Equal(t, "boards", got)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("surfaces error after retry", func(t *testing.T) {
		cache := newTestCache(t)
		var calls atomic.Int32
		q := New(cache, Key{"boards"}, func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", errors.New("bad request")
		}, Options{})

		_, err := q.Refetch(ctx)
		assert.EqualError(t, err, "bad request")
		assert.Equal(t, int32(DefaultQueryRetry+1), calls.Load())

		r := q.Result()
		assert.Equal(t, StatusError, r.Status)
		assert.EqualError(t, r.Err, "bad request")
		assert.Equal(t, 2, r.FailureCount)
	})

	t.Run("error keeps previous data", func(t *testing.T) {
		cache := newTestCache(t)
		cache.SetData(Key{"boards"}, "previous")
		q := New(cache, Key{"boards"}, func(ctx context.Context) (string, error) {
			return "", errors.New("offline")
		}, Options{Retry: new(0)})

		_, err := q.Refetch(ctx)
		require.Error(t, err)

		r := q.Result()
		assert.Equal(t, StatusError, r.Status)
		assert.Equal(t, "previous", r.Data)
	})

	t.Run("caller gives up", func(t *testing.T) {
		cache := newTestCache(t)
		release := make(chan struct{})
		q := New(cache, Key{"boards"}, func(ctx context.Context) (string, error) {
			<-release
			return "boards", nil
		}, Options{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := q.Refetch(ctx)
		assert.ErrorIs(t, err, context.Canceled)

		// the detached fetch still completes and populates the cache
		close(release)
		require.Eventually(t, func() bool {
			return q.Result().Status == StatusSuccess
		}, time.Second, time.Millisecond)
	})
}

func TestCache_Cancel(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)
	key := Key{"boards"}
	cache.SetData(key, "previous")

	started := make(chan struct{})
	release := make(chan struct{})
	q := New(cache, key, func(ctx context.Context) (string, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "late", nil
	}, Options{})

	errs := make(chan error, 1)
	go func() {
		_, err := q.Refetch(ctx)
		errs <- err
	}()
	<-started

	cache.Cancel(Key{"boards"})

	assert.ErrorIs(t, <-errs, ErrAbandoned)
	close(release)

	got, _ := Data[string](cache, key)
	assert.Equal(t, "previous", got)
	assert.Equal(t, FetchIdle, q.Result().FetchStatus)
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	var boardFetches, taskFetches atomic.Int32
	boards := New(cache, Key{"boards"}, func(ctx context.Context) (int32, error) {
		return boardFetches.Add(1), nil
	}, Options{StaleTime: new(time.Hour)})
	tasks := New(cache, Key{"boards", "b1", "tasks"}, func(ctx context.Context) (int32, error) {
		return taskFetches.Add(1), nil
	}, Options{StaleTime: new(time.Hour)})
	health := New(cache, Key{"healthz"}, func(ctx context.Context) (int32, error) {
		return 1, nil
	}, Options{StaleTime: new(time.Hour)})

	unmountBoards := boards.Mount(ctx)
	defer unmountBoards()
	_, err := tasks.Refetch(ctx)
	require.NoError(t, err)
	_, err = health.Refetch(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return boardFetches.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, cache.Invalidate(ctx, Key{"boards"}))

	// mounted query is refetched, unmounted one only marked stale
	assert.Equal(t, int32(2), boardFetches.Load())
	assert.Equal(t, int32(1), taskFetches.Load())
	assert.True(t, tasks.Result().IsStale)
	assert.False(t, health.Result().IsStale)
	assert.False(t, boards.Result().IsStale)
}

func TestCache_Remove(t *testing.T) {
	cache := newTestCache(t)
	cache.SetData(Key{"boards"}, 1)
	cache.SetData(Key{"boards", "b1"}, 2)
	cache.SetData(Key{"healthz"}, 3)

	cache.Remove(Key{"boards"})
	assert.Equal(t, 1, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_GC(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(CacheConfig{GCTime: 20 * time.Millisecond})
	key := Key{"boards"}

	q := New(cache, key, func(ctx context.Context) (string, error) {
		return "boards", nil
	}, Options{})
	unmount := q.Mount(ctx)
	require.Eventually(t, func() bool {
		return q.Result().Status == StatusSuccess
	}, time.Second, time.Millisecond)

	// observed entries are retained
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, cache.Len())

	unmount()
	require.Eventually(t, func() bool {
		return cache.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCache_GC_RestartedByWrite(t *testing.T) {
	cache := NewCache(CacheConfig{GCTime: 100 * time.Millisecond})
	key := Key{"boards"}

	cache.SetData(key, "first")
	time.Sleep(60 * time.Millisecond)
	cache.SetData(key, "second")

	// retained past the first write's gc time
	time.Sleep(60 * time.Millisecond)
	got, ok := Data[string](cache, key)
	require.True(t, ok)
	assert.Equal(t, "second", got)

	require.Eventually(t, func() bool {
		return cache.Len() == 0
	}, time.Second, 5*time.Millisecond)
}
