// Package auth provides the sources of bearer tokens used by the API bindings.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/openclaw/missioncontrol/internal/session"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Provider reports the sign-in state and supplies a current token. Both may
// block, e.g. to refresh an expired credential.
type Provider interface {
	// SignedIn reports whether the caller is signed in.
	SignedIn(ctx context.Context) bool
	// Token returns the current token. An empty token with a nil error means
	// no token is required.
	Token(ctx context.Context) (string, error)
}

var (
	_ Provider = (*LocalProvider)(nil)
	_ Provider = (*TokenSourceProvider)(nil)
	_ Provider = StaticProvider("")
)

// LocalProvider is the self-hosted provider, backed by the session store. The
// caller is signed in once a token has been stored or the backend has been
// confirmed to accept unauthenticated requests.
type LocalProvider struct {
	Store *session.Store
}

func (p *LocalProvider) SignedIn(ctx context.Context) bool {
	if _, ok := p.Store.Token(ctx); ok {
		return true
	}
	return p.Store.Bypassed(ctx)
}

func (p *LocalProvider) Token(ctx context.Context) (string, error) {
	token, _ := p.Store.Token(ctx)
	return token, nil
}

// StaticProvider supplies a fixed token, e.g. one set via flag or environment
// variable. An empty token is signed out.
type StaticProvider string

func (p StaticProvider) SignedIn(context.Context) bool         { return p != "" }
func (p StaticProvider) Token(context.Context) (string, error) { return string(p), nil }

// TokenSourceProvider obtains tokens from an external identity service via an
// oauth2 token source, which refreshes expired tokens.
type TokenSourceProvider struct {
	src oauth2.TokenSource
}

// NewTokenSourceProvider wraps src. The source is wrapped with a reuse token
// source so that a valid token is not re-fetched on every call.
func NewTokenSourceProvider(src oauth2.TokenSource) *TokenSourceProvider {
	return &TokenSourceProvider{src: oauth2.ReuseTokenSource(nil, src)}
}

// SignedIn reports whether a valid token can be obtained.
func (p *TokenSourceProvider) SignedIn(ctx context.Context) bool {
	_, err := p.Token(ctx)
	return err == nil
}

func (p *TokenSourceProvider) Token(ctx context.Context) (string, error) {
	tok, err := p.src.Token()
	if err != nil {
		return "", fmt.Errorf("retrieving token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("identity provider returned an empty token")
	}
	return tok.AccessToken, nil
}

// OIDCConfig configures a client credentials grant against an OpenID Connect
// issuer.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewOIDCProvider discovers the issuer's token endpoint and returns a provider
// that authenticates with the client credentials grant. The context is used
// for discovery and for subsequent token requests.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*TokenSourceProvider, error) {
	issuer, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc issuer: %w", err)
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     issuer.Endpoint().TokenURL,
		Scopes:       cfg.Scopes,
	}
	return NewTokenSourceProvider(cc.TokenSource(ctx)), nil
}
