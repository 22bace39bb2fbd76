package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openclaw/missioncontrol/internal/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultStaleTime is how long a successful read is considered fresh.
	DefaultStaleTime = 15 * time.Second
	// DefaultGCTime is how long an unobserved entry is kept.
	DefaultGCTime = 5 * time.Minute
)

// ErrAbandoned is returned to callers of a fetch whose result was discarded
// because the fetch was cancelled or superseded.
var ErrAbandoned = errors.New("fetch abandoned")

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"

	FetchIdle     FetchStatus = "idle"
	FetchFetching FetchStatus = "fetching"
)

type (
	// Status is the outcome of the latest completed fetch of an entry.
	Status string

	// FetchStatus reports whether a fetch is in flight.
	FetchStatus string

	// State is a snapshot of a cache entry.
	State struct {
		Data           any
		Err            error
		Status         Status
		FetchStatus    FetchStatus
		DataUpdatedAt  time.Time
		ErrorUpdatedAt time.Time
		// FailureCount is the number of failed attempts of the latest fetch.
		// It is reset by a successful fetch.
		FailureCount int
		// Invalidated entries are stale regardless of age.
		Invalidated bool
	}

	CacheConfig struct {
		// StaleTime is the default freshness window for queries.
		StaleTime time.Duration
		// GCTime is the default retention of unobserved entries.
		GCTime time.Duration
		// RetryDelay is the delay before the first retry of a failed
		// fetch or mutation.
		RetryDelay time.Duration

		Logger logr.Logger
	}

	// Cache is the shared store of read results. It is safe for concurrent
	// use; its lock is never held across a fetch.
	Cache struct {
		logr.Logger

		staleTime  time.Duration
		gcTime     time.Duration
		retryDelay time.Duration

		mu      sync.Mutex
		entries map[string]*entry
		flights singleflight.Group
		// gens is the last generation issued. Generations are unique across
		// entries so that a removed entry's flight is never joined.
		gens uint64
	}

	entry struct {
		key       Key
		state     State
		gen       uint64
		cancel    context.CancelFunc
		observers map[*observer]struct{}
		gcTime    time.Duration
		gcTimer   *time.Timer
	}

	// observer is a mounted query, refetched upon invalidation.
	observer struct {
		refetch func(context.Context) error
	}
)

func NewCache(cfg CacheConfig) *Cache {
	if cfg.StaleTime == 0 {
		cfg.StaleTime = DefaultStaleTime
	}
	if cfg.GCTime == 0 {
		cfg.GCTime = DefaultGCTime
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}
	return &Cache{
		Logger:     cfg.Logger.WithName("query"),
		staleTime:  cfg.StaleTime,
		gcTime:     cfg.GCTime,
		retryDelay: cfg.RetryDelay,
		entries:    make(map[string]*entry),
	}
}

// Data returns the cached data for key, reporting whether data of type T is
// present.
func Data[T any](c *Cache, key Key) (T, bool) {
	st, ok := c.State(key)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := st.Data.(T)
	return v, ok
}

// Update replaces the cached data for key with the result of fn, which is
// passed the current data, or the zero value if absent. fn must not call the
// cache.
func Update[T any](c *Cache, key Key, fn func(old T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	old, _ := e.state.Data.(T)
	c.setDataLocked(e, fn(old))
}

// SetData writes data into the cache under key, as if fetched successfully.
func (c *Cache) SetData(key Key, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setDataLocked(c.entryLocked(key), data)
}

// State returns a snapshot of the entry for key.
func (c *Cache) State(key Key) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.hash()]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// Invalidate marks every entry whose key begins with prefix as stale and
// refetches those that are being observed, waiting for the refetches to
// complete. A fetch already in flight for an observed entry is abandoned in
// favour of the refetch. The first refetch error is returned.
func (c *Cache) Invalidate(ctx context.Context, prefix Key) error {
	c.mu.Lock()
	var observers []*observer
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.state.Invalidated = true
		if len(e.observers) == 0 {
			continue
		}
		c.abandonLocked(e)
		for o := range e.observers {
			observers = append(observers, o)
		}
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, o := range observers {
		g.Go(func() error {
			return o.refetch(ctx)
		})
	}
	return g.Wait()
}

// Cancel abandons in-flight fetches for every entry whose key begins with
// prefix. Their late results are discarded and the entries keep their
// previous data.
func (c *Cache) Cancel(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			c.abandonLocked(e)
		}
	}
}

// Remove deletes the entries whose key begins with prefix, abandoning any
// in-flight fetches.
func (c *Cache) Remove(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for h, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			c.abandonLocked(e)
			if e.gcTimer != nil {
				e.gcTimer.Stop()
			}
			delete(c.entries, h)
		}
	}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.Remove(Key{})
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// fetch runs fn for key and stores its result. Concurrent fetches for the same
// key share one call. The call is detached from the caller's context: a
// caller giving up does not abandon the fetch for other callers; Cancel does.
func (c *Cache) fetch(ctx context.Context, key Key, p retryPolicy, fn func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	gen := e.gen
	c.mu.Unlock()

	flight := fmt.Sprintf("%s#%d", key.hash(), gen)
	ch := c.flights.DoChan(flight, func() (any, error) {
		fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()

		c.mu.Lock()
		if e.gen != gen {
			c.mu.Unlock()
			return nil, ErrAbandoned
		}
		e.cancel = cancel
		e.state.FetchStatus = FetchFetching
		c.mu.Unlock()

		notify := func(err error, next time.Duration) {
			c.V(1).Info("retrying fetch", "key", key, "error", err, "backoff", next)
		}
		v, failures, err := retry(fetchCtx, p, notify, fn)

		c.mu.Lock()
		defer c.mu.Unlock()
		if e.gen != gen {
			// cancelled or removed while in flight
			return nil, ErrAbandoned
		}
		e.cancel = nil
		e.state.FetchStatus = FetchIdle
		if err != nil {
			e.state.FailureCount = failures
			e.state.Err = err
			e.state.Status = StatusError
			e.state.ErrorUpdatedAt = time.Now()
			return nil, err
		}
		c.setDataLocked(e, v)
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// observe registers o against key until the returned func is called. gcTime,
// if non-zero, overrides the cache's retention once unobserved.
func (c *Cache) observe(key Key, o *observer, gcTime time.Duration) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	if e.gcTimer != nil {
		e.gcTimer.Stop()
		e.gcTimer = nil
	}
	if gcTime > 0 {
		e.gcTime = gcTime
	}
	e.observers[o] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			delete(e.observers, o)
			if len(e.observers) == 0 {
				c.scheduleGCLocked(e)
			}
		})
	}
}

// isStale reports whether the entry for key is missing, invalidated, or older
// than staleTime.
func (c *Cache) isStale(key Key, staleTime time.Duration) bool {
	st, ok := c.State(key)
	if !ok {
		return true
	}
	return stale(st, staleTime)
}

func stale(st State, staleTime time.Duration) bool {
	if st.Invalidated || st.DataUpdatedAt.IsZero() {
		return true
	}
	return time.Since(st.DataUpdatedAt) >= staleTime
}

func (c *Cache) entryLocked(key Key) *entry {
	h := key.hash()
	if e, ok := c.entries[h]; ok {
		return e
	}
	e := &entry{
		key:       append(Key(nil), key...),
		state:     State{Status: StatusPending, FetchStatus: FetchIdle},
		gen:       c.nextGenLocked(),
		observers: make(map[*observer]struct{}),
		gcTime:    c.gcTime,
	}
	c.entries[h] = e
	c.scheduleGCLocked(e)
	return e
}

// setDataLocked records a successful write of data, restarting the GC timer
// of an unobserved entry.
func (c *Cache) setDataLocked(e *entry, data any) {
	e.state.Data = data
	e.state.Err = nil
	e.state.Status = StatusSuccess
	e.state.FailureCount = 0
	e.state.DataUpdatedAt = time.Now()
	e.state.Invalidated = false
	if len(e.observers) == 0 {
		c.scheduleGCLocked(e)
	}
}

func (c *Cache) abandonLocked(e *entry) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen = c.nextGenLocked()
	e.state.FetchStatus = FetchIdle
}

func (c *Cache) nextGenLocked() uint64 {
	c.gens++
	return c.gens
}

// scheduleGCLocked removes e once it has been unobserved for its gc time.
func (c *Cache) scheduleGCLocked(e *entry) {
	if e.gcTimer != nil {
		e.gcTimer.Stop()
	}
	h := e.key.hash()
	var timer *time.Timer
	timer = time.AfterFunc(e.gcTime, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if e.gcTimer != timer || len(e.observers) > 0 {
			return
		}
		if c.entries[h] == e {
			c.abandonLocked(e)
			delete(c.entries, h)
		}
	})
	e.gcTimer = timer
}
