// Package api binds the request executor, the auth provider and the query
// cache together, providing reads and writes that always carry a current
// bearer token.
package api

import (
	"github.com/openclaw/missioncontrol/internal/auth"
	mchttp "github.com/openclaw/missioncontrol/internal/http"
	"github.com/openclaw/missioncontrol/internal/query"
)

// Client is shared by every authenticated query and mutation.
type Client struct {
	HTTP  *mchttp.Client
	Auth  auth.Provider
	Cache *query.Cache
}
