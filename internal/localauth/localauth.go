// Package localauth implements sign-in for self-hosted deployments, where the
// backend is protected by a single shared token, or by nothing at all.
package localauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/openclaw/missioncontrol/internal"
	mchttp "github.com/openclaw/missioncontrol/internal/http"
	"github.com/openclaw/missioncontrol/internal/session"
)

// MinTokenLength is the minimum length of a local auth token.
const MinTokenLength = 50

const (
	probePath  = "/api/v1/users/me"
	statusPath = "/api/v1/auth/local-status"

	defaultBypassRefusal = "Backend requires a token. Set LOCAL_AUTH_TOKEN in your .env or provide a token above."
)

var (
	ErrTokenRequired = errors.New("Bearer token is required.")
	ErrTokenTooShort = fmt.Errorf("Bearer token must be at least %d characters.", MinTokenLength)
	// ErrBypassUnavailable is wrapped when the backend requires a token.
	ErrBypassUnavailable = errors.New("bypass unavailable")

	validate = validator.New(validator.WithRequiredStructEnabled())
)

type (
	// Authenticator signs the user in and out, recording the outcome in the
	// session store.
	Authenticator struct {
		HTTP  *mchttp.Client
		Store *session.Store
	}

	// Status is the backend's report on whether it accepts unauthenticated
	// requests.
	Status struct {
		BypassAvailable bool   `json:"bypass_available"`
		Reason          string `json:"reason,omitempty"`
	}

	// Error is a failure to sign in. Its message is fit for display; the
	// underlying cause, if any, is available via errors.Unwrap.
	Error struct {
		Message string
		Err     error
	}

	credentials struct {
		// min counts runes, not bytes.
		Token string `validate:"required,min=50"`
	}
)

// Login validates token against the backend and, if accepted, stores it.
// Surrounding whitespace is ignored.
func (a *Authenticator) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if err := checkToken(token); err != nil {
		return err
	}
	err := a.HTTP.Do(ctx, probePath, mchttp.RequestOptions{Token: token}, nil)
	if err != nil {
		var failed *mchttp.RequestFailedError
		switch {
		case errors.As(err, &failed) && (errors.Is(err, internal.ErrUnauthorized) || errors.Is(err, internal.ErrAccessNotPermitted)):
			return &Error{Message: "Token is invalid.", Err: err}
		case errors.As(err, &failed):
			return &Error{Message: fmt.Sprintf("Unable to validate token (HTTP %d).", failed.Status), Err: err}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return &Error{Message: "Unable to reach backend to validate token.", Err: err}
		}
	}
	a.Store.SetToken(ctx, token)
	return nil
}

// CheckBypass asks the backend whether it accepts unauthenticated requests.
func (a *Authenticator) CheckBypass(ctx context.Context) (Status, error) {
	return mchttp.Request[Status](ctx, a.HTTP, statusPath, mchttp.RequestOptions{})
}

// Bypass signs in without a token, provided the backend permits it.
func (a *Authenticator) Bypass(ctx context.Context) error {
	status, err := a.CheckBypass(ctx)
	if err != nil {
		var failed *mchttp.RequestFailedError
		switch {
		case errors.As(err, &failed):
			return &Error{Message: fmt.Sprintf("Backend returned an error (HTTP %d). Check backend logs.", failed.Status), Err: err}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return &Error{Message: "Unable to reach backend.", Err: err}
		}
	}
	if !status.BypassAvailable {
		msg := status.Reason
		if msg == "" {
			msg = defaultBypassRefusal
		}
		return &Error{Message: msg, Err: ErrBypassUnavailable}
	}
	a.Store.SetBypassed(ctx)
	return nil
}

// Logout forgets the token and the bypass flag.
func (a *Authenticator) Logout(ctx context.Context) {
	a.Store.Clear(ctx)
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

func checkToken(token string) error {
	err := validate.Struct(credentials{Token: token})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	switch verrs[0].Tag() {
	case "required":
		return ErrTokenRequired
	default:
		return ErrTokenTooShort
	}
}
