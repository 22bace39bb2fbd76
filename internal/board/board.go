// Package board provides the cached reads and writes of boards.
package board

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/openclaw/missioncontrol/internal"
	"github.com/openclaw/missioncontrol/internal/api"
	mchttp "github.com/openclaw/missioncontrol/internal/http"
	"github.com/openclaw/missioncontrol/internal/query"
)

// ListRefetchInterval is how often the list of boards is polled while
// mounted.
const ListRefetchInterval = 30 * time.Second

// ListKey is the cache key of the list of boards. It prefixes the keys of
// every board and its tasks.
var ListKey = query.Key{"boards"}

var errMissingID = internal.InvalidParameterError("board id is required")

type (
	Board struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`

		GatewayURL            *string `json:"gateway_url,omitempty"`
		GatewayToken          *string `json:"gateway_token,omitempty"`
		GatewayMainSessionKey *string `json:"gateway_main_session_key,omitempty"`
		GatewayWorkspaceRoot  *string `json:"gateway_workspace_root,omitempty"`
	}

	// GatewayUpdate is the gateway configuration of a board to be saved.
	// Empty fields are cleared, with the exception of Token, which is only
	// sent when non-empty so that a stored token is never wiped by an empty
	// form.
	GatewayUpdate struct {
		BoardID        string
		URL            string
		Token          string
		MainSessionKey string
		WorkspaceRoot  string
	}

	// Snapshot is the list of boards prior to an optimistic write.
	Snapshot struct {
		Previous []Board
		Found    bool
	}

	Service struct {
		client *api.Client
	}

	gatewayPayload struct {
		URL            *string `json:"gateway_url"`
		MainSessionKey *string `json:"gateway_main_session_key"`
		WorkspaceRoot  *string `json:"gateway_workspace_root"`
		Token          *string `json:"gateway_token,omitempty"`
	}
)

func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// Key is the cache key of an individual board.
func Key(id string) query.Key {
	return query.Key{"boards", id}
}

// List is the list of boards, polled while mounted and refetched on every
// mount.
func (s *Service) List() *api.Query[[]Board] {
	return api.NewQuery[[]Board](s.client, ListKey, "/api/v1/boards", query.Options{
		RefetchInterval: ListRefetchInterval,
		RefetchOnMount:  query.RefetchAlways,
	})
}

// Get is the board with the given id. It does not fetch until id is known.
func (s *Service) Get(id string) *api.Query[*Board] {
	return api.NewQuery[*Board](s.client, Key(id), boardPath(id), query.Options{})
}

// Delete removes a board. The board is removed from the cached list as soon
// as the mutation starts and restored should the delete fail.
func (s *Service) Delete() *query.Mutation[struct{}, Board, Snapshot] {
	cache := s.client.Cache
	return api.NewMutation(s.client, func(ctx context.Context, board Board, token string) (struct{}, error) {
		err := s.client.HTTP.Do(ctx, boardPath(board.ID), mchttp.RequestOptions{
			Method: "DELETE",
			Token:  token,
		}, nil)
		return struct{}{}, err
	}, query.MutationOptions[struct{}, Board, Snapshot]{
		OnMutate: func(ctx context.Context, board Board) (Snapshot, error) {
			if board.ID == "" {
				return Snapshot{}, errMissingID
			}
			cache.Cancel(ListKey)
			previous, found := query.Data[[]Board](cache, ListKey)
			query.Update(cache, ListKey, func(old []Board) []Board {
				return internal.Filter(old, func(b Board) bool { return b.ID != board.ID })
			})
			return Snapshot{Previous: previous, Found: found}, nil
		},
		OnError: func(ctx context.Context, err error, board Board, snapshot Snapshot) {
			if snapshot.Found {
				cache.SetData(ListKey, snapshot.Previous)
			}
		},
		OnSuccess: func(ctx context.Context, _ struct{}, board Board, _ Snapshot) {
			cache.Remove(Key(board.ID))
		},
		OnSettled: func(ctx context.Context, _ struct{}, _ error, _ Board, _ Snapshot) {
			s.invalidate(ctx, ListKey)
		},
	})
}

// UpdateGateway saves the gateway configuration of a board, writing the
// updated board into the cache.
func (s *Service) UpdateGateway() *query.Mutation[*Board, GatewayUpdate, struct{}] {
	cache := s.client.Cache
	return api.NewMutation(s.client, func(ctx context.Context, update GatewayUpdate, token string) (*Board, error) {
		return mchttp.Request[*Board](ctx, s.client.HTTP, boardPath(update.BoardID), mchttp.RequestOptions{
			Method: "PATCH",
			Token:  token,
			Body:   update.payload(),
		})
	}, query.MutationOptions[*Board, GatewayUpdate, struct{}]{
		OnMutate: func(ctx context.Context, update GatewayUpdate) (struct{}, error) {
			if update.BoardID == "" {
				return struct{}{}, errMissingID
			}
			return struct{}{}, nil
		},
		OnSuccess: func(ctx context.Context, updated *Board, update GatewayUpdate, _ struct{}) {
			if updated == nil {
				return
			}
			cache.SetData(Key(update.BoardID), updated)
			// keep the list consistent until it is next fetched
			if _, ok := query.Data[[]Board](cache, ListKey); ok {
				query.Update(cache, ListKey, func(old []Board) []Board {
					boards := slices.Clone(old)
					for i := range boards {
						if boards[i].ID == updated.ID {
							boards[i] = *updated
						}
					}
					return boards
				})
			}
		},
	})
}

// Sort returns a copy of boards ordered by name, using the collation rules of
// the root locale.
func Sort(boards []Board) []Board {
	sorted := slices.Clone(boards)
	c := collate.New(language.Und)
	slices.SortStableFunc(sorted, func(a, b Board) int {
		return c.CompareString(a.Name, b.Name)
	})
	return sorted
}

func (u GatewayUpdate) payload() gatewayPayload {
	return gatewayPayload{
		URL:            nullable(u.URL),
		MainSessionKey: nullable(u.MainSessionKey),
		WorkspaceRoot:  nullable(u.WorkspaceRoot),
		Token:          nullable(u.Token),
	}
}

func (s *Service) invalidate(ctx context.Context, key query.Key) {
	if err := s.client.Cache.Invalidate(ctx, key); err != nil {
		s.client.Cache.V(1).Info("refreshing boards", "key", key, "error", err)
	}
}

// boardPath returns the API path of a board, or an empty path if id is
// empty.
func boardPath(id string) string {
	if id == "" {
		return ""
	}
	return "/api/v1/boards/" + url.PathEscape(id)
}

// nullable trims s, returning nil if nothing remains.
func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
