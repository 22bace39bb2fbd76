package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openclaw/missioncontrol/internal"
)

// ErrDisabled is returned when refetching a query whose enabling condition
// does not hold.
var ErrDisabled = errors.New("query is disabled")

const (
	// RefetchIfStale fetches on mount when the cached data is stale.
	RefetchIfStale RefetchOnMount = iota
	// RefetchAlways fetches on every mount.
	RefetchAlways
	// RefetchNever fetches on mount only when there is no cached data.
	RefetchNever
)

type (
	// RefetchOnMount determines whether mounting a query triggers a fetch.
	RefetchOnMount int

	// Func performs a read.
	Func[T any] func(ctx context.Context) (T, error)

	// Options is the per-query cache policy.
	Options struct {
		// Enabled, if non-nil, must report true for the query to fetch.
		Enabled func(ctx context.Context) bool
		// StaleTime overrides the cache's freshness window.
		StaleTime *time.Duration
		// GCTime overrides the cache's retention of unobserved data.
		GCTime time.Duration
		// RefetchInterval, if non-zero, polls while the query is mounted.
		RefetchInterval time.Duration
		RefetchOnMount  RefetchOnMount
		// Retry overrides DefaultQueryRetry.
		Retry *int
		// RetryDelay overrides the cache's delay before the first retry.
		RetryDelay time.Duration
	}

	// Query is a cached read bound to a key.
	Query[T any] struct {
		cache *Cache
		key   Key
		fn    Func[T]
		opts  Options
	}

	// Result is a typed snapshot of a query's cache entry.
	Result[T any] struct {
		Data          T
		Err           error
		Status        Status
		FetchStatus   FetchStatus
		DataUpdatedAt time.Time
		FailureCount  int
		IsStale       bool
	}
)

func New[T any](cache *Cache, key Key, fn Func[T], opts Options) *Query[T] {
	return &Query[T]{cache: cache, key: key, fn: fn, opts: opts}
}

func (q *Query[T]) Key() Key { return q.key }

// Enabled reports whether the query may fetch.
func (q *Query[T]) Enabled(ctx context.Context) bool {
	return q.opts.Enabled == nil || q.opts.Enabled(ctx)
}

// Refetch fetches the query regardless of freshness, sharing any fetch already
// in flight for the key.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	var zero T
	if !q.Enabled(ctx) {
		return zero, ErrDisabled
	}
	p := retryPolicy{
		retries: internal.Deref(q.opts.Retry, DefaultQueryRetry),
		delay:   q.cache.retryDelay,
	}
	if q.opts.RetryDelay > 0 {
		p.delay = q.opts.RetryDelay
	}
	v, err := q.cache.fetch(ctx, q.key, p, func(ctx context.Context) (any, error) {
		return q.fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// Fetch returns the cached data if fresh, otherwise it refetches.
func (q *Query[T]) Fetch(ctx context.Context) (T, error) {
	if !q.cache.isStale(q.key, q.staleTime()) {
		if data, ok := Data[T](q.cache, q.key); ok {
			return data, nil
		}
	}
	return q.Refetch(ctx)
}

// Mount makes the query an active observer of its key until the returned func
// is called: it is fetched according to RefetchOnMount, polled every
// RefetchInterval, and refetched when its key is invalidated. Fetches happen
// in the background; their outcome is available from Result.
func (q *Query[T]) Mount(ctx context.Context) (unmount func()) {
	ctx, cancel := context.WithCancel(ctx)
	remove := q.cache.observe(q.key, &observer{
		refetch: func(ctx context.Context) error {
			if !q.Enabled(ctx) {
				return nil
			}
			_, err := q.Refetch(ctx)
			return err
		},
	}, q.opts.GCTime)

	var wg sync.WaitGroup
	wg.Go(func() {
		if q.fetchOnMount(ctx) {
			q.Refetch(ctx)
		}
		if q.opts.RefetchInterval <= 0 {
			return
		}
		ticker := time.NewTicker(q.opts.RefetchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if q.Enabled(ctx) {
					q.Refetch(ctx)
				}
			}
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			remove()
		})
	}
}

// Result returns the current state of the query's cache entry.
func (q *Query[T]) Result() Result[T] {
	st, ok := q.cache.State(q.key)
	if !ok {
		return Result[T]{Status: StatusPending, FetchStatus: FetchIdle, IsStale: true}
	}
	data, _ := st.Data.(T)
	return Result[T]{
		Data:          data,
		Err:           st.Err,
		Status:        st.Status,
		FetchStatus:   st.FetchStatus,
		DataUpdatedAt: st.DataUpdatedAt,
		FailureCount:  st.FailureCount,
		IsStale:       stale(st, q.staleTime()),
	}
}

// IsLoading reports whether the first fetch is in flight.
func (r Result[T]) IsLoading() bool {
	return r.Status == StatusPending && r.FetchStatus == FetchFetching
}

func (q *Query[T]) fetchOnMount(ctx context.Context) bool {
	if !q.Enabled(ctx) {
		return false
	}
	switch q.opts.RefetchOnMount {
	case RefetchAlways:
		return true
	case RefetchNever:
		_, ok := Data[T](q.cache, q.key)
		return !ok
	default:
		return q.cache.isStale(q.key, q.staleTime())
	}
}

func (q *Query[T]) staleTime() time.Duration {
	return internal.Deref(q.opts.StaleTime, q.cache.staleTime)
}
