package session

import (
	"context"
	"sync"
)

// Identity is the signed-in user as the rest of the app sees it.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider is the auth platform's view of the current session.
//
// OnAuthStateChange registers fn for every change of identity (nil meaning
// signed out). Once the provider has resolved its initial state, a new
// listener is also called with the current value when it registers.
type Provider interface {
	CurrentIdentity() *Identity
	OnAuthStateChange(fn func(*Identity)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
}

// GetCurrentSession returns the provider's identity, waiting for the first
// auth-state notification when none is held yet. No session is (nil, nil).
// The listener is removed as soon as one value arrives or ctx is done.
func GetCurrentSession(ctx context.Context, p Provider) (*Identity, error) {
	if id := p.CurrentIdentity(); id != nil {
		return id, nil
	}

	got := make(chan *Identity, 1)
	var once sync.Once
	unsubscribe := p.OnAuthStateChange(func(id *Identity) {
		once.Do(func() { got <- id })
	})
	defer unsubscribe()

	select {
	case id := <-got:
		return id, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
