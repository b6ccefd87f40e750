package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultRefreshMargin is how far ahead of expiry a token is refreshed.
const DefaultRefreshMargin = 5 * time.Minute

// ErrRefreshFailed wraps provider refresh failures. Callers surface it
// as an authentication error rather than retrying.
var ErrRefreshFailed = errors.New("auth: token refresh failed")

// Refresher exchanges a refresh token for fresh credentials.
type Refresher interface {
	Refresh(ctx context.Context, token Token) (Token, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, token Token) (Token, error)

func (f RefresherFunc) Refresh(ctx context.Context, token Token) (Token, error) {
	return f(ctx, token)
}

// TokenCache persists tokens between runs.
type TokenCache interface {
	Load(service string) (Token, error)
	Save(service string, token Token) error
}

// Supervisor keeps the tokens of registered services valid. One
// refresh runs at a time per supervisor; a failed refresh is reported,
// not retried, so a revoked credential surfaces immediately instead of
// hammering the provider.
type Supervisor struct {
	mu         sync.Mutex
	cache      TokenCache
	margin     time.Duration
	refreshers map[string]Refresher
	tokens     map[string]Token
}

// NewSupervisor builds a supervisor over the given cache. A zero margin
// selects DefaultRefreshMargin. A nil cache keeps tokens in memory only.
func NewSupervisor(cache TokenCache, margin time.Duration) *Supervisor {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &Supervisor{
		cache:      cache,
		margin:     margin,
		refreshers: make(map[string]Refresher),
		tokens:     make(map[string]Token),
	}
}

// Register wires a service's refresher and seeds its token from the
// cache when one is persisted.
func (s *Supervisor) Register(service string, refresher Refresher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshers[service] = refresher
	if s.cache == nil {
		return nil
	}
	token, err := s.cache.Load(service)
	if err != nil {
		return err
	}
	if token.AccessToken != "" {
		s.tokens[service] = token
		log.Printf("auth: loaded cached token for %s", service)
	}
	return nil
}

// SetToken installs credentials for a service, persisting them when a
// cache is configured.
func (s *Supervisor) SetToken(service string, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[service] = token
	if s.cache == nil {
		return nil
	}
	return s.cache.Save(service, token)
}

// EnsureValid returns a token usable for the service right now. Tokens
// outside the refresh margin come back unchanged. A token near expiry
// with no refresh token also comes back unchanged; the caller finds out
// from the provider. Near-expiry tokens with a refresh token go through
// the registered refresher exactly once.
func (s *Supervisor) EnsureValid(ctx context.Context, service string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[service]
	if !ok {
		return Token{}, fmt.Errorf("auth: no token for service %s", service)
	}
	if !token.ExpiresWithin(s.margin) {
		return token, nil
	}
	if token.RefreshToken == "" {
		log.Printf("WARNING: auth: token for %s near expiry with no refresh token", service)
		return token, nil
	}

	refresher, ok := s.refreshers[service]
	if !ok {
		return Token{}, fmt.Errorf("auth: no refresher registered for service %s", service)
	}

	refreshed, err := refresher.Refresh(ctx, token)
	if err != nil {
		log.Printf("ERROR: auth: refresh failed for %s: %v", service, err)
		return Token{}, fmt.Errorf("%w for %s: %v", ErrRefreshFailed, service, err)
	}
	if refreshed.RefreshToken == "" {
		// Providers often omit the refresh token on renewal.
		refreshed.RefreshToken = token.RefreshToken
	}

	s.tokens[service] = refreshed
	if s.cache != nil {
		if err := s.cache.Save(service, refreshed); err != nil {
			log.Printf("WARNING: auth: failed to persist refreshed token for %s: %v", service, err)
		}
	}
	log.Printf("auth: refreshed token for %s, valid until %s", service, refreshed.Expiry.Format(time.RFC3339))
	return refreshed, nil
}
