package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// refresh this long before the access token runs out
const refreshMargin = 30 * time.Second

// Tokens is the pair handed out by GoTrue for a session.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// GoTrueProvider is a Provider backed by a Supabase GoTrue client. It keeps
// the session in memory only.
type GoTrueProvider struct {
	client gotrue.Client

	mu        sync.Mutex
	resolved  bool
	identity  *Identity
	tokens    Tokens
	listeners map[int]func(*Identity)
	nextID    int
}

func NewGoTrueProvider(client gotrue.Client) *GoTrueProvider {
	return &GoTrueProvider{
		client:    client,
		listeners: make(map[int]func(*Identity)),
	}
}

func (g *GoTrueProvider) CurrentIdentity() *Identity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identity
}

// Tokens returns the current access/refresh pair. Empty when signed out.
func (g *GoTrueProvider) Tokens() Tokens {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tokens
}

func (g *GoTrueProvider) OnAuthStateChange(fn func(*Identity)) func() {
	g.mu.Lock()
	key := g.nextID
	g.nextID++
	g.listeners[key] = fn
	resolved, current := g.resolved, g.identity
	g.mu.Unlock()

	if resolved {
		fn(current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.listeners, key)
			g.mu.Unlock()
		})
	}
}

// set records the new state and notifies listeners outside the lock.
func (g *GoTrueProvider) set(id *Identity, tokens Tokens) {
	g.mu.Lock()
	g.resolved = true
	g.identity = id
	g.tokens = tokens
	fns := make([]func(*Identity), 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

// ResolveAnonymous marks the initial state as "no session" without talking to GoTrue.
func (g *GoTrueProvider) ResolveAnonymous() {
	g.set(nil, Tokens{})
}

func fromTokenResponse(res *types.TokenResponse) (*Identity, Tokens, error) {
	if res == nil || res.AccessToken == "" {
		return nil, Tokens{}, errors.New("invalid token response")
	}
	id := &Identity{ID: res.User.ID.String(), Email: res.User.Email}
	tokens := Tokens{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}
	switch {
	case res.ExpiresAt > 0:
		tokens.ExpiresAt = time.Unix(res.ExpiresAt, 0)
	case res.ExpiresIn > 0:
		tokens.ExpiresAt = time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
	}
	return id, tokens, nil
}

func (g *GoTrueProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := g.client.SignInWithEmailPassword(email, password)
	if err != nil {
		g.resolveIfPending()
		return nil, fmt.Errorf("failed to authenticate user: %w", err)
	}
	id, tokens, err := fromTokenResponse(res)
	if err != nil {
		g.resolveIfPending()
		return nil, err
	}
	g.set(id, tokens)
	return id, nil
}

// Restore re-establishes a session from a stored refresh token.
func (g *GoTrueProvider) Restore(ctx context.Context, refreshToken string) (*Identity, error) {
	if refreshToken == "" {
		g.resolveIfPending()
		return nil, nil
	}
	return g.refresh(ctx, refreshToken)
}

// Refresh exchanges the held refresh token for a new pair when the access
// token is close to expiry. It is a no-op while the token is still fresh.
func (g *GoTrueProvider) Refresh(ctx context.Context) error {
	tokens := g.Tokens()
	if tokens.RefreshToken == "" {
		return nil
	}
	if !tokens.ExpiresAt.IsZero() && time.Until(tokens.ExpiresAt) > refreshMargin {
		return nil
	}
	_, err := g.refresh(ctx, tokens.RefreshToken)
	return err
}

func (g *GoTrueProvider) refresh(ctx context.Context, refreshToken string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := g.client.RefreshToken(refreshToken)
	if err != nil {
		g.set(nil, Tokens{})
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	id, tokens, err := fromTokenResponse(res)
	if err != nil {
		g.set(nil, Tokens{})
		return nil, err
	}
	g.set(id, tokens)
	return id, nil
}

func (g *GoTrueProvider) SignOut(ctx context.Context) error {
	tokens := g.Tokens()
	var err error
	if tokens.AccessToken != "" {
		if logoutErr := g.client.WithToken(tokens.AccessToken).Logout(); logoutErr != nil {
			err = fmt.Errorf("failed to sign out: %w", logoutErr)
		}
	}
	g.set(nil, Tokens{})
	return err
}

func (g *GoTrueProvider) resolveIfPending() {
	g.mu.Lock()
	pending := !g.resolved
	g.mu.Unlock()
	if pending {
		g.set(nil, Tokens{})
	}
}
