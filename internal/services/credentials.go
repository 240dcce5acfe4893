package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/peanuz/playlist-sync/internal/shared"
)

// TokenFetcher obtains a fresh credential from a remote endpoint.
type TokenFetcher interface {
	FetchToken(ctx context.Context) (*oauth2.Token, error)
}

// TokenFetcherFunc adapts a function to [TokenFetcher].
type TokenFetcherFunc func(ctx context.Context) (*oauth2.Token, error)

func (f TokenFetcherFunc) FetchToken(ctx context.Context) (*oauth2.Token, error) { return f(ctx) }

// CredentialProvider caches one credential and refreshes it when it expires or is invalidated.
//
// Callers that receive a 401 call [CredentialProvider.Invalidate] and retry.
type CredentialProvider struct {
	name    string
	fetcher TokenFetcher
	leeway  time.Duration
	now     func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// CredentialOption configures a [CredentialProvider].
type CredentialOption func(*CredentialProvider)

// WithClock replaces time.Now, for tests with synthetic expiry.
func WithClock(now func() time.Time) CredentialOption {
	return func(p *CredentialProvider) { p.now = now }
}

// WithLeeway refreshes tokens this long before their expiry.
func WithLeeway(d time.Duration) CredentialOption {
	return func(p *CredentialProvider) { p.leeway = d }
}

// NewCredentialProvider creates a provider named name (used in errors and logs).
func NewCredentialProvider(name string, fetcher TokenFetcher, opts ...CredentialOption) *CredentialProvider {
	p := &CredentialProvider{
		name:    name,
		fetcher: fetcher,
		leeway:  30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token returns the cached credential, fetching a new one when none is cached or it has expired.
func (p *CredentialProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.valid(p.token) {
		return p.token, nil
	}

	token, err := p.fetcher.FetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrRefreshFailed, p.name, err)
	}
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s: empty token", shared.ErrRefreshFailed, p.name)
	}

	p.token = token
	return token, nil
}

// Invalidate drops the cached credential so the next Token call refreshes it.
func (p *CredentialProvider) Invalidate() {
	p.mu.Lock()
	p.token = nil
	p.mu.Unlock()
}

func (p *CredentialProvider) valid(t *oauth2.Token) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return p.now().Add(p.leeway).Before(t.Expiry)
}
