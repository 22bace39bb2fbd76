package api

import (
	"context"
	"fmt"

	mchttp "github.com/openclaw/missioncontrol/internal/http"
	"github.com/openclaw/missioncontrol/internal/query"
)

const (
	ReasonNone DisabledReason = iota
	// ReasonSignedOut is given when the auth provider reports no sign-in.
	ReasonSignedOut
	// ReasonNoPath is given when the caller has withheld the path, e.g.
	// before an id is known.
	ReasonNoPath
	// ReasonCaller is given when the caller's own enabling condition does not
	// hold.
	ReasonCaller
)

type (
	// DisabledReason is why an authenticated query may not fetch.
	DisabledReason int

	// DisabledError is returned when refetching a disabled query. It matches
	// query.ErrDisabled.
	DisabledError struct {
		Reason DisabledReason
	}

	// Query is an authenticated read of a GET endpoint, cached under its key.
	Query[T any] struct {
		*query.Query[T]

		client  *Client
		path    string
		enabled func(context.Context) bool
	}
)

// NewQuery constructs a read of path. The query is enabled only when the
// caller is signed in, path is non-empty, and opts.Enabled, if set, holds.
// The remaining options are passed to the cache unmodified.
func NewQuery[T any](c *Client, key query.Key, path string, opts query.Options) *Query[T] {
	q := &Query[T]{
		client:  c,
		path:    path,
		enabled: opts.Enabled,
	}
	opts.Enabled = func(ctx context.Context) bool {
		return q.DisabledReason(ctx) == ReasonNone
	}
	q.Query = query.New(c.Cache, key, q.fetch, opts)
	return q
}

// DisabledReason reports why the query may not fetch, or ReasonNone if it
// may.
func (q *Query[T]) DisabledReason(ctx context.Context) DisabledReason {
	switch {
	case !q.client.Auth.SignedIn(ctx):
		return ReasonSignedOut
	case q.path == "":
		return ReasonNoPath
	case q.enabled != nil && !q.enabled(ctx):
		return ReasonCaller
	default:
		return ReasonNone
	}
}

// Refetch fetches the query regardless of freshness.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	if reason := q.DisabledReason(ctx); reason != ReasonNone {
		var zero T
		return zero, &DisabledError{Reason: reason}
	}
	return q.Query.Refetch(ctx)
}

// Fetch returns the cached data if fresh, otherwise it refetches.
func (q *Query[T]) Fetch(ctx context.Context) (T, error) {
	if reason := q.DisabledReason(ctx); reason != ReasonNone {
		var zero T
		return zero, &DisabledError{Reason: reason}
	}
	return q.Query.Fetch(ctx)
}

// fetch resolves the token anew on every attempt, to pick up refreshed
// credentials.
func (q *Query[T]) fetch(ctx context.Context) (T, error) {
	token, err := q.client.Auth.Token(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("resolving token: %w", err)
	}
	return mchttp.Request[T](ctx, q.client.HTTP, q.path, mchttp.RequestOptions{
		Token: token,
	})
}

func (r DisabledReason) String() string {
	switch r {
	case ReasonNone:
		return "enabled"
	case ReasonSignedOut:
		return "signed out"
	case ReasonNoPath:
		return "no path"
	case ReasonCaller:
		return "disabled by caller"
	default:
		return fmt.Sprintf("DisabledReason(%d)", int(r))
	}
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("%s: %s", query.ErrDisabled, e.Reason)
}

func (e *DisabledError) Is(target error) bool {
	return target == query.ErrDisabled
}
