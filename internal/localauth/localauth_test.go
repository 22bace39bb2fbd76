package localauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/missioncontrol/internal"
	mchttp "github.com/openclaw/missioncontrol/internal/http"
	"github.com/openclaw/missioncontrol/internal/session"
)

var (
	validToken     = strings.Repeat("a", 50)
	forbiddenToken = strings.Repeat("f", 50)
	brokenToken    = strings.Repeat("b", 50)
)

func newTestAuthenticator(t *testing.T, status http.HandlerFunc) *Authenticator {
	t.Helper()

	r := mux.NewRouter()
	r.HandleFunc(probePath, func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer " + validToken:
			w.Write([]byte(`{"id":"u1"}`))
		case "Bearer " + forbiddenToken:
			w.WriteHeader(http.StatusForbidden)
		case "Bearer " + brokenToken:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}).Methods("GET")
	if status != nil {
		r.HandleFunc(statusPath, status).Methods("GET")
	}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return newAuthenticator(t, srv.URL)
}

func newAuthenticator(t *testing.T, url string) *Authenticator {
	t.Helper()

	client, err := mchttp.NewClient(mchttp.ClientConfig{URL: url})
	require.NoError(t, err)
	return &Authenticator{
		HTTP:  client,
		Store: session.NewStore(session.NewMemoryStorage()),
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"empty", "   ", "Bearer token is required."},
		{"too short", "abc", "Bearer token must be at least 50 characters."},
		{"too short after trim", "  " + strings.Repeat("a", 49) + "  ", "Bearer token must be at least 50 characters."},
		{"unauthorized", strings.Repeat("x", 50), "Token is invalid."},
		{"forbidden", forbiddenToken, "Token is invalid."},
		{"server error", brokenToken, "Unable to validate token (HTTP 500)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuthenticator(t, nil)

			err := a.Login(ctx, tt.token)
			assert.EqualError(t, err, tt.want)

			_, ok := a.Store.Token(ctx)
			assert.False(t, ok)
		})
	}

	t.Run("valid", func(t *testing.T) {
		a := newTestAuthenticator(t, nil)

		require.NoError(t, a.Login(ctx, " "+validToken+"\n"))

		got, ok := a.Store.Token(ctx)
		require.True(t, ok)
		assert.Equal(t, validToken, got)
	})

	t.Run("invalid unwraps", func(t *testing.T) {
		a := newTestAuthenticator(t, nil)

		err := a.Login(ctx, strings.Repeat("x", 50))
		assert.ErrorIs(t, err, internal.ErrUnauthorized)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		a := newAuthenticator(t, srv.URL)

		err := a.Login(ctx, validToken)
		assert.EqualError(t, err, "Unable to reach backend to validate token.")
		var lerr *Error
		require.True(t, errors.As(err, &lerr))
		assert.Error(t, lerr.Err)
	})
}

func TestBypass(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		status http.HandlerFunc
		want   string
	}{
		{
			name: "token required with reason",
			status: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(Status{Reason: "LOCAL_AUTH_TOKEN is set."})
			},
			want: "LOCAL_AUTH_TOKEN is set.",
		},
		{
			name: "token required",
			status: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"bypass_available":false}`))
			},
			want: "Backend requires a token. Set LOCAL_AUTH_TOKEN in your .env or provide a token above.",
		},
		{
			name: "server error",
			status: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: "Backend returned an error (HTTP 502). Check backend logs.",
		},
		{
			name: "malformed response",
			status: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>`))
			},
			want: "Unable to reach backend.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuthenticator(t, tt.status)

			assert.EqualError(t, a.Bypass(ctx), tt.want)
			assert.False(t, a.Store.Bypassed(ctx))
		})
	}

	t.Run("available", func(t *testing.T) {
		a := newTestAuthenticator(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			w.Write([]byte(`{"bypass_available":true}`))
		})

		require.NoError(t, a.Bypass(ctx))
		assert.True(t, a.Store.Bypassed(ctx))
	})

	t.Run("refusal unwraps", func(t *testing.T) {
		a := newTestAuthenticator(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"bypass_available":false}`))
		})

		assert.ErrorIs(t, a.Bypass(ctx), ErrBypassUnavailable)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		a := newAuthenticator(t, srv.URL)

		assert.EqualError(t, a.Bypass(ctx), "Unable to reach backend.")
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bypass_available":true}`))
	})
	require.NoError(t, a.Login(ctx, validToken))
	require.NoError(t, a.Bypass(ctx))

	a.Logout(ctx)

	_, ok := a.Store.Token(ctx)
	assert.False(t, ok)
	assert.False(t, a.Store.Bypassed(ctx))
}

func TestCheckToken_CountsRunes(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"multibyte at minimum", strings.Repeat("é", MinTokenLength), nil},
		{"multibyte below minimum", strings.Repeat("é", MinTokenLength/2), ErrTokenTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkToken(tt.token))
		})
	}
}
