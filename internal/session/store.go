package session

import (
	"context"
	"sync"

	"github.com/openclaw/missioncontrol/internal/logr"
)

const (
	// TokenKey is the storage key for the bearer token.
	TokenKey = "mc_local_auth_token"
	// BypassKey is the storage key for the bypass flag.
	BypassKey = "mc_local_auth_bypass"

	bypassValue = "1"
)

type (
	// Store holds a bearer token and a bypass flag. The in-memory copy is
	// authoritative; storage is consulted only to hydrate an empty memory
	// copy.
	Store struct {
		storage Storage
		logger  logr.Logger

		mu       sync.Mutex
		token    string
		bypassed bool
	}

	StoreOption func(*Store)
)

// WithLogger sets the logger used to report swallowed storage failures.
func WithLogger(logger logr.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger.WithName("session")
	}
}

// NewStore constructs a store backed by storage. A nil storage is treated as
// unavailable.
func NewStore(storage Storage, opts ...StoreOption) *Store {
	if storage == nil {
		storage = UnavailableStorage{}
	}
	s := &Store{
		storage: storage,
		logger:  logr.Discard(),
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// SetToken stores the token in memory and in storage. A storage failure
// leaves the memory copy in place.
func (s *Store) SetToken(ctx context.Context, token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if err := s.storage.Set(ctx, TokenKey, token); err != nil {
		s.logger.V(1).Info("persisting token", "error", err)
	}
}

// Token returns the token, reporting whether one is present. An empty memory
// copy is filled from storage.
func (s *Store) Token(ctx context.Context) (string, bool) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token != "" {
		return token, true
	}

	stored, ok, err := s.storage.Get(ctx, TokenKey)
	if err != nil {
		s.logger.V(1).Info("retrieving token", "error", err)
		return "", false
	}
	if !ok || stored == "" {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent SetToken wins over the stored copy.
	if s.token == "" {
		s.token = stored
	}
	return s.token, true
}

// Clear removes the token and the bypass flag from both memory and storage.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.bypassed = false
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, TokenKey, BypassKey); err != nil {
		s.logger.V(1).Info("clearing session", "error", err)
	}
}

// SetBypassed records that the backend accepts unauthenticated requests for
// this session.
func (s *Store) SetBypassed(ctx context.Context) {
	s.mu.Lock()
	s.bypassed = true
	s.mu.Unlock()

	if err := s.storage.Set(ctx, BypassKey, bypassValue); err != nil {
		s.logger.V(1).Info("persisting bypass", "error", err)
	}
}

// Bypassed reports whether the session proceeds without a token.
func (s *Store) Bypassed(ctx context.Context) bool {
	s.mu.Lock()
	bypassed := s.bypassed
	s.mu.Unlock()
	if bypassed {
		return true
	}

	stored, ok, err := s.storage.Get(ctx, BypassKey)
	if err != nil {
		s.logger.V(1).Info("retrieving bypass", "error", err)
		return false
	}
	if !ok || stored != bypassValue {
		return false
	}

	s.mu.Lock()
	s.bypassed = true
	s.mu.Unlock()
	return true
}
