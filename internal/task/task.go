// Package task provides the cached reads and writes of a board's tasks.
package task

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/openclaw/missioncontrol/internal"
	"github.com/openclaw/missioncontrol/internal/api"
	mchttp "github.com/openclaw/missioncontrol/internal/http"
	"github.com/openclaw/missioncontrol/internal/query"
)

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"

	// DefaultPriority is the priority of a task created without one.
	DefaultPriority = PriorityMedium

	// StatusInbox is the status of a newly created task.
	StatusInbox = "inbox"

	// tempIDPrefix marks a task that has yet to be confirmed by the backend.
	tempIDPrefix = "temp-"
)

var (
	ErrTitleRequired = errors.New("Add a task title to continue.")

	validate = validator.New(validator.WithRequiredStructEnabled())
)

type (
	Priority string

	Task struct {
		ID          string     `json:"id"`
		Title       string     `json:"title"`
		Description *string    `json:"description,omitempty"`
		Status      string     `json:"status"`
		Priority    Priority   `json:"priority"`
		DueAt       *time.Time `json:"due_at,omitempty"`
	}

	// CreateOptions are the fields of a new task.
	CreateOptions struct {
		Title       string
		Description string
		// Priority defaults to DefaultPriority.
		Priority Priority
	}

	// Snapshot is a board's tasks prior to an optimistic write.
	Snapshot struct {
		Previous []Task
		Found    bool
		// TempID is the id of the placeholder task inserted into the cache.
		TempID string
	}

	Service struct {
		client *api.Client
	}

	createPayload struct {
		Title       string   `json:"title" validate:"required"`
		Description *string  `json:"description"`
		Status      string   `json:"status"`
		Priority    Priority `json:"priority" validate:"oneof=low medium high"`
	}
)

func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// Key is the cache key of a board's tasks.
func Key(boardID string) query.Key {
	return query.Key{"boards", boardID, "tasks"}
}

// IsTemporary reports whether t is a placeholder awaiting confirmation by
// the backend.
func (t Task) IsTemporary() bool {
	return strings.HasPrefix(t.ID, tempIDPrefix)
}

// List is the tasks of a board. It does not fetch until the board id is
// known.
func (s *Service) List(boardID string) *api.Query[[]Task] {
	return api.NewQuery[[]Task](s.client, Key(boardID), tasksPath(boardID), query.Options{})
}

// Create adds a task to a board. A placeholder is prepended to the cached
// tasks as soon as the mutation starts, replaced by the created task upon
// success and removed upon failure.
func (s *Service) Create(boardID string) *query.Mutation[*Task, CreateOptions, Snapshot] {
	cache := s.client.Cache
	key := Key(boardID)
	return api.NewMutation(s.client, func(ctx context.Context, opts CreateOptions, token string) (*Task, error) {
		payload, err := opts.payload()
		if err != nil {
			return nil, err
		}
		return mchttp.Request[*Task](ctx, s.client.HTTP, tasksPath(boardID), mchttp.RequestOptions{
			Method: "POST",
			Token:  token,
			Body:   payload,
		})
	}, query.MutationOptions[*Task, CreateOptions, Snapshot]{
		OnMutate: func(ctx context.Context, opts CreateOptions) (Snapshot, error) {
			if boardID == "" {
				return Snapshot{}, internal.InvalidParameterError("board id is required")
			}
			payload, err := opts.payload()
			if err != nil {
				return Snapshot{}, err
			}
			cache.Cancel(key)
			previous, found := query.Data[[]Task](cache, key)
			placeholder := Task{
				ID:          tempIDPrefix + uuid.NewString(),
				Title:       payload.Title,
				Description: payload.Description,
				Status:      payload.Status,
				Priority:    payload.Priority,
			}
			query.Update(cache, key, func(old []Task) []Task {
				return append([]Task{placeholder}, old...)
			})
			return Snapshot{Previous: previous, Found: found, TempID: placeholder.ID}, nil
		},
		OnError: func(ctx context.Context, err error, _ CreateOptions, snapshot Snapshot) {
			switch {
			case snapshot.Found:
				cache.SetData(key, snapshot.Previous)
			case snapshot.TempID != "":
				query.Update(cache, key, func(old []Task) []Task {
					return internal.Filter(old, func(t Task) bool { return t.ID != snapshot.TempID })
				})
			}
		},
		OnSuccess: func(ctx context.Context, created *Task, _ CreateOptions, snapshot Snapshot) {
			if created == nil {
				return
			}
			query.Update(cache, key, func(old []Task) []Task {
				tasks := slices.Clone(old)
				if i := slices.IndexFunc(tasks, func(t Task) bool { return t.ID == snapshot.TempID }); i >= 0 {
					tasks[i] = *created
					return tasks
				}
				return append([]Task{*created}, tasks...)
			})
		},
		OnSettled: func(ctx context.Context, _ *Task, _ error, _ CreateOptions, _ Snapshot) {
			if boardID == "" {
				return
			}
			if err := cache.Invalidate(ctx, key); err != nil {
				cache.V(1).Info("refreshing tasks", "key", key, "error", err)
			}
		},
	})
}

// payload trims and validates the options, applying defaults.
func (o CreateOptions) payload() (createPayload, error) {
	p := createPayload{
		Title:    strings.TrimSpace(o.Title),
		Status:   StatusInbox,
		Priority: o.Priority,
	}
	if desc := strings.TrimSpace(o.Description); desc != "" {
		p.Description = &desc
	}
	if p.Priority == "" {
		p.Priority = DefaultPriority
	}
	err := validate.Struct(p)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return p, err
	}
	switch verrs[0].Field() {
	case "Title":
		return p, ErrTitleRequired
	default:
		return p, internal.InvalidParameterError(fmt.Sprintf("invalid priority: %q", p.Priority))
	}
}

func tasksPath(boardID string) string {
	if boardID == "" {
		return ""
	}
	return "/api/v1/boards/" + url.PathEscape(boardID) + "/tasks"
}
