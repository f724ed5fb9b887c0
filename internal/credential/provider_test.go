package credential

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeRefresher struct {
	calls int
	next  *oauth2.Token
	err   error
	seen  []string
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls++
	f.seen = append(f.seen, refreshToken)
	if f.err != nil {
		return nil, f.err
	}
	return f.next, nil
}

// gatedRefresher holds every round trip until release is closed.
type gatedRefresher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	next    *oauth2.Token
}

func newGatedRefresher(next *oauth2.Token) *gatedRefresher {
	return &gatedRefresher{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
		next:    next,
	}
}

func (g *gatedRefresher) Refresh(ctx context.Context, _ string) (*oauth2.Token, error) {
	g.calls.Add(1)
	g.started <- struct{}{}
	select {
	case <-g.release:
		return g.next, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newKeys(items ...keyring.Item) *Keyring {
	return NewKeyring(keyring.NewArrayKeyring(items))
}

func TestKeyringRoundTrip(t *testing.T) {
	k := newKeys()

	_, err := k.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, k.Set(KeyAccessToken, "a1"))
	got, err := k.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a1", got)

	require.NoError(t, k.Delete(KeyAccessToken))
	require.NoError(t, k.Delete(KeyAccessToken))
	_, err = k.Get(KeyAccessToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCurrentTokenLoadsFromKeyring(t *testing.T) {
	p := NewProvider(newKeys(
		keyring.Item{Key: KeyAccessToken, Data: []byte("a1")},
		keyring.Item{Key: KeyRefreshToken, Data: []byte("r1")},
	), nil)

	tok, ok := p.CurrentToken()
	assert.True(t, ok)
	assert.Equal(t, "a1", tok)
}

func TestCurrentTokenAbsent(t *testing.T) {
	p := NewProvider(newKeys(), nil)
	_, ok := p.CurrentToken()
	assert.False(t, ok)

	_, err := p.Token()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRefreshStoresNewPair(t *testing.T) {
	keys := newKeys()
	r := &fakeRefresher{next: &oauth2.Token{AccessToken: "a2"}}
	p := NewProvider(keys, r)
	require.NoError(t, p.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}))

	tok, err := p.Refresh(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a2", tok)
	assert.Equal(t, []string{"r1"}, r.seen)

	stored, err := keys.Get(KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a2", stored)

	// The refresh token survives a response that did not rotate it.
	full, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "r1", full.RefreshToken)
}

func TestRefreshSkipsWhenAlreadyReplaced(t *testing.T) {
	r := &fakeRefresher{next: &oauth2.Token{AccessToken: "a3"}}
	p := NewProvider(newKeys(), r)
	require.NoError(t, p.Save(&oauth2.Token{AccessToken: "a2", RefreshToken: "r1"}))

	tok, err := p.Refresh(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a2", tok)
	assert.Equal(t, 0, r.calls)
}

func TestRefreshFailure(t *testing.T) {
	r := &fakeRefresher{err: errors.New("boom")}
	p := NewProvider(newKeys(), r)
	require.NoError(t, p.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}))

	_, err := p.Refresh(context.Background(), "a1")
	assert.ErrorContains(t, err, "boom")

	tok, ok := p.CurrentToken()
	assert.True(t, ok)
	assert.Equal(t, "a1", tok)
}

func TestTokenRefreshesWhenExpired(t *testing.T) {
	r := &fakeRefresher{next: &oauth2.Token{AccessToken: "fresh"}}
	p := NewProvider(newKeys(), r)
	require.NoError(t, p.Save(&oauth2.Token{
		AccessToken:  "old",
		RefreshToken: "r1",
		Expiry:       time.Now().Add(-time.Minute),
	}))

	_, ok := p.CurrentToken()
	assert.False(t, ok)

	tok, err := p.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, 1, r.calls)
}

func TestClear(t *testing.T) {
	keys := newKeys()
	p := NewProvider(keys, nil)
	require.NoError(t, p.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}))

	require.NoError(t, p.Clear())
	_, ok := p.CurrentToken()
	assert.False(t, ok)
	_, err := keys.Get(KeyRefreshToken)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.Refresh(context.Background(), "a1")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRefreshDoesNotBlockCurrentToken(t *testing.T) {
	r := newGatedRefresher(&oauth2.Token{AccessToken: "a2"})
	p := NewProvider(newKeys(), r)
	require.NoError(t, p.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}))

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			tok, _ := p.Refresh(context.Background(), "a1")
			results <- tok
		}()
	}
	<-r.started

	done := make(chan struct{})
	go func() {
		defer close(done)
		tok, ok := p.CurrentToken()
		assert.True(t, ok)
		assert.Equal(t, "a1", tok)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CurrentToken waited for the refresh round trip")
	}

	close(r.release)
	assert.Equal(t, "a2", <-results)
	assert.Equal(t, "a2", <-results)
	assert.Equal(t, int32(1), r.calls.Load(), "concurrent refreshes share one round trip")

	tok, ok := p.CurrentToken()
	assert.True(t, ok)
	assert.Equal(t, "a2", tok)
}

func TestRefreshWaiterHonoursContext(t *testing.T) {
	r := newGatedRefresher(&oauth2.Token{AccessToken: "a2"})
	p := NewProvider(newKeys(), r)
	require.NoError(t, p.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}))

	go p.Refresh(context.Background(), "a1")
	<-r.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Refresh(ctx, "a1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(r.release)
}

func TestClearDuringRefreshWins(t *testing.T) {
	r := newGatedRefresher(&oauth2.Token{AccessToken: "a2", RefreshToken: "r2"})
	p := NewProvider(newKeys(), r)
	require.NoError(t, p.Save(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}))

	errs := make(chan error, 1)
	go func() {
		_, err := p.Refresh(context.Background(), "a1")
		errs <- err
	}()
	<-r.started

	require.NoError(t, p.Clear())
	close(r.release)

	assert.ErrorIs(t, <-errs, ErrNoSession)
	_, ok := p.CurrentToken()
	assert.False(t, ok)
}
