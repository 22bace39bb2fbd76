// Package config configures the dashboard client.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"

	"github.com/openclaw/missioncontrol/internal"
	mchttp "github.com/openclaw/missioncontrol/internal/http"
	"github.com/openclaw/missioncontrol/internal/logr"
	"github.com/openclaw/missioncontrol/internal/query"
	"github.com/openclaw/missioncontrol/internal/session"
)

const (
	AuthModeLocal AuthMode = "local"
	AuthModeOIDC  AuthMode = "oidc"

	StorageMemory   StorageBackend = "memory"
	StorageFile     StorageBackend = "file"
	StorageRedis    StorageBackend = "redis"
	StorageBigCache StorageBackend = "bigcache"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type (
	// AuthMode selects how the user signs in.
	AuthMode string

	// StorageBackend selects where the session is kept.
	StorageBackend string

	// Config configures the dashboard client. Descriptions of each field can
	// be found in the flag definitions in NewFromFlags.
	Config struct {
		URL           string   `validate:"required,http_url"`
		AuthMode      AuthMode `validate:"oneof=local oidc"`
		Token         string
		RetryRequests bool

		SkipTLSVerification bool

		Storage      StorageBackend `validate:"oneof=memory file redis bigcache"`
		SessionFile  string
		SessionTTL   time.Duration `validate:"gt=0"`
		RedisAddress string        `validate:"required_if=Storage redis"`
		RedisPrefix  string

		OIDCIssuerURL    string `validate:"required_if=AuthMode oidc,omitempty,http_url"`
		OIDCClientID     string `validate:"required_if=AuthMode oidc"`
		OIDCClientSecret string
		OIDCScopes       []string

		StaleTime time.Duration `validate:"gte=0"`
		GCTime    time.Duration `validate:"gte=0"`

		LogConfig logr.Config `validate:"-"`
	}
)

// NewFromFlags adds flags to the given flagset, and, after the flagset is
// parsed by the caller, the flags populate the returned config.
func NewFromFlags(flags *pflag.FlagSet) *Config {
	cfg := Config{}
	flags.StringVar(&cfg.URL, "url", mchttp.DefaultURL, "Address of the Mission Control API")
	flags.StringVar((*string)(&cfg.AuthMode), "auth-mode", string(AuthModeLocal), "Sign in method: local or oidc")
	flags.StringVar(&cfg.Token, "token", "", "API token. Overrides any token in the session.")
	flags.BoolVar(&cfg.RetryRequests, "retry-requests", false, "Retry requests upon transient errors")
	flags.BoolVar(&cfg.SkipTLSVerification, "skip-tls-verification", false, "Skip verification of the API's TLS certificate")

	flags.StringVar((*string)(&cfg.Storage), "session-storage", string(StorageMemory), "Session storage: memory, file, redis or bigcache")
	flags.StringVar(&cfg.SessionFile, "session-file", "", "Path to session file. Defaults to "+session.DefaultFilePath+" in the home directory.")
	flags.DurationVar(&cfg.SessionTTL, "session-ttl", session.DefaultTTL, "Lifetime of a session in redis or bigcache storage")
	flags.StringVar(&cfg.RedisAddress, "redis-address", "", "Address of redis server for session storage")
	flags.StringVar(&cfg.RedisPrefix, "redis-prefix", "missioncontrol", "Prefix for session keys in redis")

	flags.StringVar(&cfg.OIDCIssuerURL, "oidc-issuer-url", "", "OIDC issuer URL")
	flags.StringVar(&cfg.OIDCClientID, "oidc-client-id", "", "OIDC client ID")
	flags.StringVar(&cfg.OIDCClientSecret, "oidc-client-secret", "", "OIDC client secret")
	flags.StringSliceVar(&cfg.OIDCScopes, "oidc-scopes", nil, "OIDC scopes to request")

	flags.DurationVar(&cfg.StaleTime, "stale-time", query.DefaultStaleTime, "How long a read is considered fresh")
	flags.DurationVar(&cfg.GCTime, "gc-time", query.DefaultGCTime, "How long unused reads are cached")

	logr.LoadConfigFromFlags(flags, &cfg.LogConfig)
	return &cfg
}

// Validate checks the config, normalising the URL.
func (c *Config) Validate() error {
	c.URL = strings.TrimRight(c.URL, "/")
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return internal.InvalidParameterError(describe(verrs[0]))
		}
		return err
	}
	return nil
}

// APIToken returns the configured token, falling back to a token for the
// API's host in the environment, e.g. MC_TOKEN_localhost_8000. Surrounding
// whitespace, such as the trailing newline of a token file, is removed.
func (c *Config) APIToken() string {
	if token := strings.TrimSpace(c.Token); token != "" {
		return token
	}
	host, err := internal.SanitizeHostname(c.URL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(os.Getenv(internal.CredentialEnvKey(host)))
}

func describe(fe validator.FieldError) string {
	field := fe.StructField()
	switch fe.Tag() {
	case "required", "required_if":
		return "missing required setting: " + field
	case "oneof":
		return "invalid " + field + ": must be one of " + fe.Param()
	default:
		return "invalid " + field
	}
}
