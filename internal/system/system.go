// Package system reports the health of the backend.
package system

import (
	"context"
	"time"

	"github.com/openclaw/missioncontrol/internal"
	mchttp "github.com/openclaw/missioncontrol/internal/http"
	"github.com/openclaw/missioncontrol/internal/query"
)

// HealthPollInterval is how often the backend's health is checked while
// mounted.
const HealthPollInterval = 30 * time.Second

const (
	StatusUnknown     Status = "unknown"
	StatusOperational Status = "operational"
	StatusDegraded    Status = "degraded"
)

// HealthKey is the cache key of the health check.
var HealthKey = query.Key{"healthz"}

type (
	// Status is the summarised health of the backend.
	Status string

	Health struct {
		OK bool `json:"ok"`
	}

	// Service checks the backend's health. The health endpoint is public so
	// no token is sent.
	Service struct {
		http  *mchttp.Client
		cache *query.Cache
	}
)

func NewService(client *mchttp.Client, cache *query.Cache) *Service {
	return &Service{http: client, cache: cache}
}

// Health is the health check, polled while mounted. Failures are not retried;
// the next poll is the retry.
func (s *Service) Health() *query.Query[Health] {
	return query.New(s.cache, HealthKey, func(ctx context.Context) (Health, error) {
		return mchttp.Request[Health](ctx, s.http, "/healthz", mchttp.RequestOptions{})
	}, query.Options{
		RefetchInterval: HealthPollInterval,
		Retry:           internal.Ptr(0),
	})
}

// StatusOf summarises the outcome of the health check. The status is unknown
// until the first check completes.
func StatusOf(r query.Result[Health]) Status {
	switch {
	case r.Status == query.StatusError:
		return StatusDegraded
	case r.Status == query.StatusSuccess && r.Data.OK:
		return StatusOperational
	case r.Status == query.StatusSuccess:
		return StatusDegraded
	default:
		return StatusUnknown
	}
}

// Label is a description of the status fit for display.
func (s Status) Label() string {
	switch s {
	case StatusOperational:
		return "All systems operational"
	case StatusDegraded:
		return "System degraded"
	default:
		return "System status unavailable"
	}
}
