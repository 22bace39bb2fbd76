package query

import (
	"context"
	"sync"
	"time"

	"github.com/openclaw/missioncontrol/internal"
)

const (
	MutationIdle    MutationStatus = "idle"
	MutationPending MutationStatus = "pending"
	MutationSuccess MutationStatus = "success"
	MutationError   MutationStatus = "error"
)

type (
	// MutationStatus is the state of the latest invocation of a mutation:
	// idle -> pending -> (success | error). The invocation is settled once
	// the settled hook has run.
	MutationStatus string

	// MutationFunc performs a write.
	MutationFunc[TData, TVars any] func(ctx context.Context, vars TVars) (TData, error)

	// MutationOptions are the life cycle hooks of a mutation. TContext is the
	// value returned by OnMutate and handed to the remaining hooks, typically
	// a snapshot of cache state for rolling back an optimistic update.
	MutationOptions[TData, TVars, TContext any] struct {
		// OnMutate runs before the write. An error aborts the write and is
		// handled as the mutation's error.
		OnMutate func(ctx context.Context, vars TVars) (TContext, error)
		// OnError runs when the write fails.
		OnError func(ctx context.Context, err error, vars TVars, mctx TContext)
		// OnSuccess runs when the write succeeds.
		OnSuccess func(ctx context.Context, data TData, vars TVars, mctx TContext)
		// OnSettled runs after OnError or OnSuccess, regardless of outcome.
		OnSettled func(ctx context.Context, data TData, err error, vars TVars, mctx TContext)
		// Retry overrides DefaultMutationRetry.
		Retry *int
	}

	// MutationState is a snapshot of the latest invocation.
	MutationState[TData, TVars any] struct {
		Status       MutationStatus
		Data         TData
		Err          error
		Variables    TVars
		FailureCount int
		SubmittedAt  time.Time
		Settled      bool
	}

	// Mutation is a trackable write.
	Mutation[TData, TVars, TContext any] struct {
		cache *Cache
		fn    MutationFunc[TData, TVars]
		opts  MutationOptions[TData, TVars, TContext]

		mu    sync.Mutex
		state MutationState[TData, TVars]
		// seq identifies the latest invocation; state updates from earlier
		// invocations are dropped.
		seq uint64
	}
)

func NewMutation[TData, TVars, TContext any](cache *Cache, fn MutationFunc[TData, TVars], opts MutationOptions[TData, TVars, TContext]) *Mutation[TData, TVars, TContext] {
	return &Mutation[TData, TVars, TContext]{
		cache: cache,
		fn:    fn,
		opts:  opts,
		state: MutationState[TData, TVars]{Status: MutationIdle},
	}
}

// Mutate runs the mutation through its life cycle, returning the outcome of
// the write.
func (m *Mutation[TData, TVars, TContext]) Mutate(ctx context.Context, vars TVars) (TData, error) {
	seq := m.begin(vars)

	var (
		mctx TContext
		data TData
		err  error
	)
	if m.opts.OnMutate != nil {
		mctx, err = m.opts.OnMutate(ctx, vars)
	}
	var failures int
	if err == nil {
		p := retryPolicy{
			retries: internal.Deref(m.opts.Retry, DefaultMutationRetry),
			delay:   m.cache.retryDelay,
		}
		notify := func(err error, next time.Duration) {
			m.cache.V(1).Info("retrying mutation", "error", err, "backoff", next)
		}
		data, failures, err = retry(ctx, p, notify, func(ctx context.Context) (TData, error) {
			return m.fn(ctx, vars)
		})
	}

	if err != nil {
		m.finish(seq, func(st *MutationState[TData, TVars]) {
			st.Status = MutationError
			st.Err = err
			st.FailureCount = failures
		})
		if m.opts.OnError != nil {
			m.opts.OnError(ctx, err, vars, mctx)
		}
	} else {
		m.finish(seq, func(st *MutationState[TData, TVars]) {
			st.Status = MutationSuccess
			st.Data = data
			st.FailureCount = 0
		})
		if m.opts.OnSuccess != nil {
			m.opts.OnSuccess(ctx, data, vars, mctx)
		}
	}
	if m.opts.OnSettled != nil {
		m.opts.OnSettled(ctx, data, err, vars, mctx)
	}
	m.finish(seq, func(st *MutationState[TData, TVars]) {
		st.Settled = true
	})
	return data, err
}

// State returns the state of the latest invocation.
func (m *Mutation[TData, TVars, TContext]) State() MutationState[TData, TVars] {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Reset returns the mutation to idle. An invocation in progress no longer
// updates the state.
func (m *Mutation[TData, TVars, TContext]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.state = MutationState[TData, TVars]{Status: MutationIdle}
}

func (m *Mutation[TData, TVars, TContext]) begin(vars TVars) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.state = MutationState[TData, TVars]{
		Status:      MutationPending,
		Variables:   vars,
		SubmittedAt: time.Now(),
	}
	return m.seq
}

func (m *Mutation[TData, TVars, TContext]) finish(seq uint64, fn func(*MutationState[TData, TVars])) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seq == seq {
		fn(&m.state)
	}
}
