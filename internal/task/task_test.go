package task

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/missioncontrol/internal"
	"github.com/openclaw/missioncontrol/internal/api"
	"github.com/openclaw/missioncontrol/internal/auth"
	mchttp "github.com/openclaw/missioncontrol/internal/http"
	"github.com/openclaw/missioncontrol/internal/query"
)

type fakeBackend struct {
	mu       sync.Mutex
	tasks    []Task
	fail     bool
	payloads []string
	// during is called while a create is in flight.
	during func()
}

func (f *fakeBackend) handler(t *testing.T) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/boards/{id}/tasks", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, "b1", mux.Vars(r)["id"])
		json.NewEncoder(w).Encode(f.tasks)
	}).Methods("GET")
	r.HandleFunc("/api/v1/boards/{id}/tasks", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		b, _ := io.ReadAll(r.Body)
		f.payloads = append(f.payloads, string(b))
		if f.during != nil {
			f.during()
		}
		if f.fail {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte("title too long"))
			return
		}
		var created Task
		json.Unmarshal(b, &created)
		created.ID = "t9"
		f.tasks = append([]Task{created}, f.tasks...)
		json.NewEncoder(w).Encode(created)
	}).Methods("POST")
	return r
}

func (f *fakeBackend) setFail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = true
}

func (f *fakeBackend) onCreate(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.during = fn
}

func (f *fakeBackend) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.payloads...)
}

func newTestService(t *testing.T, tasks ...Task) (*Service, *fakeBackend) {
	t.Helper()

	backend := &fakeBackend{tasks: tasks}
	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	client, err := mchttp.NewClient(mchttp.ClientConfig{URL: srv.URL})
	require.NoError(t, err)

	return NewService(&api.Client{
		HTTP:  client,
		Auth:  auth.StaticProvider("secret"),
		Cache: query.NewCache(query.CacheConfig{RetryDelay: time.Millisecond}),
	}), backend
}

var existing = Task{ID: "t1", Title: "Provision agent", Status: "in_progress", Priority: PriorityHigh}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, existing)

	got, err := svc.List("b1").Refetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Task{existing}, got)

	assert.Equal(t, api.ReasonNoPath, svc.List("").DisabledReason(ctx))
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		svc, backend := newTestService(t, existing)
		_, err := svc.List("b1").Refetch(ctx)
		require.NoError(t, err)

		seen := make(chan []Task, 1)
		backend.onCreate(func() {
			tasks, _ := query.Data[[]Task](svc.client.Cache, Key("b1"))
			seen <- tasks
		})

		created, err := svc.Create("b1").Mutate(ctx, CreateOptions{
			Title:       "  Write runbook ",
			Description: "   ",
		})
		require.NoError(t, err)
		assert.Equal(t, "t9", created.ID)

		// placeholder shown while in flight
		during := <-seen
		require.Len(t, during, 2)
		assert.True(t, during[0].IsTemporary())
		assert.Equal(t, "Write runbook", during[0].Title)
		assert.Equal(t, existing, during[1])

		assert.Equal(t, []string{`{"title":"Write runbook","description":null,"status":"inbox","priority":"medium"}`}, backend.sent())

		got, _ := query.Data[[]Task](svc.client.Cache, Key("b1"))
		require.Len(t, got, 2)
		assert.Equal(t, *created, got[0])
		assert.False(t, got[0].IsTemporary())
	})

	t.Run("rollback", func(t *testing.T) {
		svc, backend := newTestService(t, existing)
		s0, err := svc.List("b1").Refetch(ctx)
		require.NoError(t, err)
		backend.setFail()

		m := svc.Create("b1")
		_, err = m.Mutate(ctx, CreateOptions{Title: "Write runbook", Priority: PriorityLow})
		assert.EqualError(t, err, "title too long")

		got, _ := query.Data[[]Task](svc.client.Cache, Key("b1"))
		assert.Equal(t, s0, got)
		assert.Len(t, backend.sent(), 1)
		assert.Equal(t, query.MutationError, m.State().Status)
	})

	t.Run("rollback without cached tasks", func(t *testing.T) {
		svc, backend := newTestService(t)
		backend.setFail()

		_, err := svc.Create("b1").Mutate(ctx, CreateOptions{Title: "Write runbook"})
		require.Error(t, err)

		got, _ := query.Data[[]Task](svc.client.Cache, Key("b1"))
		assert.Empty(t, got)
	})

	tests := []struct {
		name string
		opts CreateOptions
		want string
	}{
		{"no title", CreateOptions{Title: "   "}, "Add a task title to continue."},
		{"bad priority", CreateOptions{Title: "Write runbook", Priority: "urgent"}, `invalid priority: "urgent"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, backend := newTestService(t)

			_, err := svc.Create("b1").Mutate(ctx, tt.opts)
			assert.EqualError(t, err, tt.want)
			assert.Empty(t, backend.sent())
		})
	}

	t.Run("no board", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Create("").Mutate(ctx, CreateOptions{Title: "Write runbook"})
		var invalid internal.InvalidParameterError
		assert.ErrorAs(t, err, &invalid)
	})
}
