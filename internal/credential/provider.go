package credential

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"golang.org/x/oauth2"
)

// ErrNoSession is returned when no tokens are stored.
var ErrNoSession = errors.New("not logged in")

// Refresher trades a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Provider hands out the current bearer token and refreshes it on demand.
// Tokens are cached in memory and persisted in the keyring.
type Provider struct {
	keys      *Keyring
	refresher Refresher

	mu       gosync.Mutex
	token    *oauth2.Token
	loaded   bool
	inflight *refreshCall
}

// refreshCall is one refresh round trip shared by concurrent callers.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

var _ oauth2.TokenSource = (*Provider)(nil)

// NewProvider creates a provider over keys. refresher may be nil, in which
// case Refresh always fails.
func NewProvider(keys *Keyring, refresher Refresher) *Provider {
	return &Provider{keys: keys, refresher: refresher}
}

// load reads the stored pair once. Caller must hold p.mu.
func (p *Provider) load() {
	if p.loaded {
		return
	}
	p.loaded = true

	access, err := p.keys.Get(KeyAccessToken)
	if err != nil {
		return
	}
	refresh, _ := p.keys.Get(KeyRefreshToken)
	p.token = &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}
}

// CurrentToken returns the access token, or false when there is no valid
// session.
func (p *Provider) CurrentToken() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.load()
	if !p.token.Valid() {
		return "", false
	}
	return p.token.AccessToken, true
}

// Token implements oauth2.TokenSource. An expired token is refreshed.
func (p *Provider) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	p.load()
	tok := p.token
	p.mu.Unlock()

	if tok == nil {
		return nil, ErrNoSession
	}
	if tok.Valid() {
		out := *tok
		return &out, nil
	}
	if _, err := p.Refresh(context.Background(), tok.AccessToken); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == nil {
		return nil, ErrNoSession
	}
	out := *p.token
	return &out, nil
}

// Refresh obtains a new access token. stale is the token the caller saw
// rejected; if another caller already replaced it, the newer token is
// returned without a network round trip. Concurrent callers share one
// round trip, and p.mu is not held while it runs.
func (p *Provider) Refresh(ctx context.Context, stale string) (string, error) {
	p.mu.Lock()
	p.load()
	if p.token == nil {
		p.mu.Unlock()
		return "", ErrNoSession
	}
	if stale != "" && p.token.AccessToken != stale && p.token.Valid() {
		tok := p.token.AccessToken
		p.mu.Unlock()
		return tok, nil
	}
	if call := p.inflight; call != nil {
		p.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", fmt.Errorf("refreshing token: %w", ctx.Err())
		}
	}
	if p.refresher == nil || p.token.RefreshToken == "" {
		p.mu.Unlock()
		return "", fmt.Errorf("refreshing token: %w", ErrNoSession)
	}

	call := &refreshCall{done: make(chan struct{})}
	p.inflight = call
	refreshToken := p.token.RefreshToken
	p.mu.Unlock()

	next, err := p.refresher.Refresh(ctx, refreshToken)

	p.mu.Lock()
	p.inflight = nil
	switch {
	case err != nil:
		call.err = fmt.Errorf("refreshing token: %w", err)
	case p.token == nil:
		// Cleared by a logout while the round trip was running.
		call.err = fmt.Errorf("refreshing token: %w", ErrNoSession)
	default:
		if err := p.saveLocked(next); err != nil {
			call.err = err
		} else {
			call.token = next.AccessToken
		}
	}
	p.mu.Unlock()
	close(call.done)

	return call.token, call.err
}

// Save stores a new token pair, e.g. after login.
func (p *Provider) Save(tok *oauth2.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = true
	return p.saveLocked(tok)
}

func (p *Provider) saveLocked(tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("saving token: %w", ErrNoSession)
	}
	if err := p.keys.Set(KeyAccessToken, tok.AccessToken); err != nil {
		return err
	}
	if tok.RefreshToken != "" {
		if err := p.keys.Set(KeyRefreshToken, tok.RefreshToken); err != nil {
			return err
		}
	}

	saved := *tok
	if saved.RefreshToken == "" && p.token != nil {
		saved.RefreshToken = p.token.RefreshToken
	}
	p.token = &saved
	return nil
}

// Clear forgets the session in memory and in the keyring.
func (p *Provider) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = nil
	p.loaded = true
	if err := p.keys.Delete(KeyAccessToken); err != nil {
		return err
	}
	return p.keys.Delete(KeyRefreshToken)
}
