// Package dashboard constructs the dashboard client and its services from
// configuration.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/openclaw/missioncontrol/internal/api"
	"github.com/openclaw/missioncontrol/internal/auth"
	"github.com/openclaw/missioncontrol/internal/board"
	"github.com/openclaw/missioncontrol/internal/config"
	mchttp "github.com/openclaw/missioncontrol/internal/http"
	"github.com/openclaw/missioncontrol/internal/localauth"
	"github.com/openclaw/missioncontrol/internal/logr"
	"github.com/openclaw/missioncontrol/internal/query"
	"github.com/openclaw/missioncontrol/internal/session"
	"github.com/openclaw/missioncontrol/internal/system"
	"github.com/openclaw/missioncontrol/internal/task"
)

type (
	Dashboard struct {
		logr.Logger

		HTTP     *mchttp.Client
		Cache    *query.Cache
		Sessions *session.Store
		Auth     auth.Provider
		// Local signs in against the backend. It is nil unless the auth mode
		// is local.
		Local *localauth.Authenticator

		Boards *board.Service
		Tasks  *task.Service
		System *system.Service

		closers []func() error
	}

	Option func(*options)

	options struct {
		registerer prometheus.Registerer
		redis      redis.UniversalClient
	}
)

// WithRegisterer registers request metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithRedisClient uses client for redis session storage rather than
// connecting to the configured address. The caller retains ownership of the
// client.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.redis = client
	}
}

// New constructs a dashboard from a validated config.
func New(ctx context.Context, logger logr.Logger, cfg config.Config, opts ...Option) (*Dashboard, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	d := &Dashboard{Logger: logger}

	var transport http.RoundTripper
	if cfg.SkipTLSVerification {
		transport = mchttp.InsecureTransport
	}
	client, err := mchttp.NewClient(mchttp.ClientConfig{
		URL:           cfg.URL,
		Transport:     transport,
		RetryRequests: cfg.RetryRequests,
		Logger:        logger.WithName("http"),
		Registerer:    o.registerer,
	})
	if err != nil {
		return nil, err
	}
	d.HTTP = client

	d.Cache = query.NewCache(query.CacheConfig{
		StaleTime: cfg.StaleTime,
		GCTime:    cfg.GCTime,
		Logger:    logger,
	})

	storage, err := d.newStorage(cfg, o)
	if err != nil {
		return nil, fmt.Errorf("constructing session storage: %w", err)
	}
	d.Sessions = session.NewStore(storage, session.WithLogger(logger))

	switch cfg.AuthMode {
	case config.AuthModeOIDC:
		provider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.OIDCIssuerURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			Scopes:       cfg.OIDCScopes,
		})
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Auth = provider
	default:
		if token := cfg.APIToken(); token != "" {
			d.Sessions.SetToken(ctx, token)
		}
		d.Auth = &auth.LocalProvider{Store: d.Sessions}
		d.Local = &localauth.Authenticator{HTTP: client, Store: d.Sessions}
	}

	apiClient := &api.Client{HTTP: client, Auth: d.Auth, Cache: d.Cache}
	d.Boards = board.NewService(apiClient)
	d.Tasks = task.NewService(apiClient)
	d.System = system.NewService(client, d.Cache)

	logger.V(1).Info("constructed dashboard", "host", client.Hostname(), "auth_mode", cfg.AuthMode, "session_storage", cfg.Storage)
	return d, nil
}

// Logout signs out and discards every cached read.
func (d *Dashboard) Logout(ctx context.Context) {
	d.Sessions.Clear(ctx)
	d.Cache.Clear()
}

// Close releases the session storage.
func (d *Dashboard) Close() error {
	var errs []error
	for _, fn := range d.closers {
		errs = append(errs, fn())
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Dashboard) newStorage(cfg config.Config, o options) (session.Storage, error) {
	switch cfg.Storage {
	case config.StorageFile:
		path := cfg.SessionFile
		if path == "" {
			var err error
			if path, err = session.DefaultPath(nil); err != nil {
				return nil, err
			}
		}
		return session.NewFileStorage(path, cfg.URL)
	case config.StorageRedis:
		client := o.redis
		if client == nil {
			c := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
			d.closers = append(d.closers, c.Close)
			client = c
		}
		return session.NewRedisStorage(client, cfg.RedisPrefix, cfg.SessionTTL), nil
	case config.StorageBigCache:
		storage, err := session.NewBigCacheStorage(session.BigCacheConfig{TTL: cfg.SessionTTL})
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, storage.Close)
		return storage, nil
	default:
		return session.NewMemoryStorage(), nil
	}
}
