package api

import (
	"context"

	"github.com/openclaw/missioncontrol/internal/query"
)

// MutationFunc performs a write with the current token, which is empty if
// none could be resolved.
type MutationFunc[TData, TVars any] func(ctx context.Context, vars TVars, token string) (TData, error)

// NewMutation constructs a trackable write. A token is resolved before every
// attempt and handed to fn; failure to resolve one is not an error, fn runs
// with an empty token and the backend decides. The life cycle hooks are
// passed to the cache unmodified.
func NewMutation[TData, TVars, TContext any](c *Client, fn MutationFunc[TData, TVars], opts query.MutationOptions[TData, TVars, TContext]) *query.Mutation[TData, TVars, TContext] {
	return query.NewMutation(c.Cache, func(ctx context.Context, vars TVars) (TData, error) {
		token, err := c.Auth.Token(ctx)
		if err != nil {
			c.Cache.V(1).Info("resolving token for mutation", "error", err)
			token = ""
		}
		return fn(ctx, vars, token)
	}, opts)
}
