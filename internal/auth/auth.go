// Package auth defines the credential collaborators the chat core depends on.
// Token issuance and refresh live outside this module.
package auth

import (
	"context"
	"os"
	"strings"
	"sync"
)

// TokenProvider supplies the bearer token for backend calls.
type TokenProvider interface {
	// AccessToken returns the current token, or false when there is none.
	AccessToken(ctx context.Context) (string, bool)
	IsLoggedIn(ctx context.Context) bool
}

// StaticToken is a TokenProvider holding a single token that can be
// replaced or cleared at runtime (login/logout).
type StaticToken struct {
	mu    sync.RWMutex
	token string
}

func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: strings.TrimSpace(token)}
}

func (s *StaticToken) AccessToken(context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *StaticToken) IsLoggedIn(ctx context.Context) bool {
	_, ok := s.AccessToken(ctx)
	return ok
}

// Set replaces the token. An empty token logs out.
func (s *StaticToken) Set(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// EnvToken reads the token from an environment variable on every call.
type EnvToken string

func (e EnvToken) AccessToken(context.Context) (string, bool) {
	v := strings.TrimSpace(os.Getenv(string(e)))
	return v, v != ""
}

func (e EnvToken) IsLoggedIn(ctx context.Context) bool {
	_, ok := e.AccessToken(ctx)
	return ok
}

type tokenContextKey struct{}

// ContextWithToken attaches a per-request token that takes precedence over
// the configured provider.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the token stored by ContextWithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tokenContextKey{}).(string)
	return v, ok && v != ""
}

// WithContextOverride wraps p so that a token in the request context wins.
func WithContextOverride(p TokenProvider) TokenProvider {
	return contextOverride{next: p}
}

type contextOverride struct {
	next TokenProvider
}

func (c contextOverride) AccessToken(ctx context.Context) (string, bool) {
	if tok, ok := TokenFromContext(ctx); ok {
		return tok, true
	}
	if c.next == nil {
		return "", false
	}
	return c.next.AccessToken(ctx)
}

func (c contextOverride) IsLoggedIn(ctx context.Context) bool {
	_, ok := c.AccessToken(ctx)
	return ok
}
