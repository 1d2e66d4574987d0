package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/gotrue-go"
)

type fakeProvider struct {
	mu        sync.Mutex
	resolved  bool
	identity  *Identity
	listeners map[int]func(*Identity)
	next      int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{listeners: make(map[int]func(*Identity))}
}

func (f *fakeProvider) CurrentIdentity() *Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity
}

func (f *fakeProvider) OnAuthStateChange(fn func(*Identity)) func() {
	f.mu.Lock()
	key := f.next
	f.next++
	f.listeners[key] = fn
	resolved, current := f.resolved, f.identity
	f.mu.Unlock()
	if resolved {
		fn(current)
	}
	return func() {
		f.mu.Lock()
		delete(f.listeners, key)
		f.mu.Unlock()
	}
}

func (f *fakeProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	id := &Identity{ID: "u-" + email, Email: email}
	f.emit(id)
	return id, nil
}

func (f *fakeProvider) SignOut(ctx context.Context) error {
	f.emit(nil)
	return nil
}

func (f *fakeProvider) emit(id *Identity) {
	f.mu.Lock()
	f.resolved = true
	f.identity = id
	fns := make([]func(*Identity), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

func (f *fakeProvider) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func TestGetCurrentSession(t *testing.T) {
	tcases := []struct {
		name  string
		setup func(p *fakeProvider)
		want  *Identity
	}{
		{
			name:  "signed in",
			setup: func(p *fakeProvider) { p.emit(&Identity{ID: "u1", Email: "ama@example.com"}) },
			want:  &Identity{ID: "u1", Email: "ama@example.com"},
		},
		{
			name:  "resolved without session",
			setup: func(p *fakeProvider) { p.emit(nil) },
			want:  nil,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakeProvider()
			tc.setup(p)

			got, err := GetCurrentSession(context.Background(), p)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Zero(t, p.listenerCount())
		})
	}
}

func TestGetCurrentSessionIsStable(t *testing.T) {
	p := newFakeProvider()
	p.emit(&Identity{ID: "u1", Email: "ama@example.com"})

	first, err := GetCurrentSession(context.Background(), p)
	require.NoError(t, err)
	second, err := GetCurrentSession(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetCurrentSessionWaitsForFirstNotification(t *testing.T) {
	p := newFakeProvider()

	done := make(chan *Identity)
	go func() {
		id, err := GetCurrentSession(context.Background(), p)
		assert.NoError(t, err)
		done <- id
	}()

	require.Eventually(t, func() bool { return p.listenerCount() == 1 }, time.Second, time.Millisecond)
	p.emit(&Identity{ID: "u2", Email: "kofi@example.com"})

	select {
	case id := <-done:
		assert.Equal(t, "u2", id.ID)
	case <-time.After(time.Second):
		t.Fatal("session was not delivered")
	}
	assert.Zero(t, p.listenerCount())
}

func TestGetCurrentSessionCancelled(t *testing.T) {
	p := newFakeProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	id, err := GetCurrentSession(ctx, p)
	assert.Nil(t, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, p.listenerCount())
}

func TestStoreHoldsOneSubscription(t *testing.T) {
	p := newFakeProvider()
	s := NewStore(p, nil)
	defer s.Close()

	_, cancelA := s.Subscribe()
	_, cancelB := s.Subscribe()
	defer cancelA()
	defer cancelB()

	assert.Equal(t, 1, p.listenerCount())
	s.Close()
	assert.Zero(t, p.listenerCount())
}

func TestStoreSubscribeGetsLatest(t *testing.T) {
	p := newFakeProvider()
	s := NewStore(p, nil)
	defer s.Close()

	ch, cancel := s.Subscribe()
	defer cancel()

	p.emit(&Identity{ID: "u1"})
	p.emit(&Identity{ID: "u2"})

	got := <-ch
	require.NotNil(t, got)
	assert.Equal(t, "u2", got.ID)
	assert.Equal(t, "u2", s.Current().ID)

	late, cancelLate := s.Subscribe()
	defer cancelLate()
	assert.Equal(t, "u2", (<-late).ID)
}

func TestStoreCancelClosesChannel(t *testing.T) {
	s := NewStore(newFakeProvider(), nil)
	defer s.Close()

	ch, cancel := s.Subscribe()
	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestStoreAwait(t *testing.T) {
	p := newFakeProvider()
	s := NewStore(p, nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.emit(nil)
	id, err := s.Await(context.Background())
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestStoreHooksRunOncePerIdentity(t *testing.T) {
	p := newFakeProvider()
	var mu sync.Mutex
	calls := map[string]int{}
	hook := func(ctx context.Context, id *Identity) error {
		mu.Lock()
		defer mu.Unlock()
		calls[id.ID]++
		return nil
	}

	s := NewStore(p, nil, hook)
	defer s.Close()

	p.emit(&Identity{ID: "u1"})
	p.emit(&Identity{ID: "u1"})
	p.emit(nil)
	p.emit(&Identity{ID: "u1"})
	p.emit(&Identity{ID: "u2"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"u1": 1, "u2": 1}, calls)
}

func TestStoreRetriesFailedHook(t *testing.T) {
	p := newFakeProvider()
	var mu sync.Mutex
	var okCalls, flakyCalls int
	ok := func(ctx context.Context, id *Identity) error {
		mu.Lock()
		defer mu.Unlock()
		okCalls++
		return nil
	}
	flaky := func(ctx context.Context, id *Identity) error {
		mu.Lock()
		defer mu.Unlock()
		flakyCalls++
		if flakyCalls == 1 {
			return errors.New("profile insert rejected")
		}
		return nil
	}

	s := NewStore(p, nil, ok, flaky)
	defer s.Close()

	p.emit(&Identity{ID: "u1"})
	p.emit(&Identity{ID: "u1"})
	p.emit(&Identity{ID: "u1"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, okCalls)
	assert.Equal(t, 2, flakyCalls)
}

func TestGoTrueProvider(t *testing.T) {
	userID := uuid.New()
	var logouts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-" + r.URL.Query().Get("grant_type"),
				"refresh_token": "refresh",
				"token_type":    "bearer",
				"expires_in":    3600,
				"user":          map[string]any{"id": userID.String(), "email": "ama@example.com"},
			})
		case "/logout":
			logouts++
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := gotrue.New("test", "anon-key").WithCustomGoTrueURL(srv.URL)
	p := NewGoTrueProvider(client)

	var seen []*Identity
	unsubscribe := p.OnAuthStateChange(func(id *Identity) { seen = append(seen, id) })
	defer unsubscribe()
	assert.Empty(t, seen, "unresolved provider must not emit on subscribe")

	id, err := p.SignIn(context.Background(), "ama@example.com", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, userID.String(), id.ID)
	assert.Equal(t, "ama@example.com", id.Email)
	assert.Equal(t, "access-password", p.Tokens().AccessToken)

	got, err := GetCurrentSession(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	require.NoError(t, p.SignOut(context.Background()))
	assert.Equal(t, 1, logouts)
	assert.Nil(t, p.CurrentIdentity())
	require.Len(t, seen, 2)
	assert.Nil(t, seen[1])
}

// tokenServer answers /token for every grant and counts the calls per grant.
type tokenServer struct {
	mu        sync.Mutex
	userID    uuid.UUID
	expiresIn int
	fail      bool
	grants    map[string]int
}

func (ts *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/token" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	grant := r.URL.Query().Get("grant_type")
	ts.mu.Lock()
	ts.grants[grant]++
	fail, expiresIn := ts.fail, ts.expiresIn
	ts.mu.Unlock()
	if fail {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "access-" + grant,
		"refresh_token": "refresh-" + grant,
		"token_type":    "bearer",
		"expires_in":    expiresIn,
		"user":          map[string]any{"id": ts.userID.String(), "email": "ama@example.com"},
	})
}

func (ts *tokenServer) calls(grant string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.grants[grant]
}

func newTokenProvider(t *testing.T, expiresIn int) (*GoTrueProvider, *tokenServer) {
	t.Helper()
	ts := &tokenServer{userID: uuid.New(), expiresIn: expiresIn, grants: make(map[string]int)}
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)
	return NewGoTrueProvider(gotrue.New("test", "anon-key").WithCustomGoTrueURL(srv.URL)), ts
}

func TestGoTrueProviderResolveAnonymous(t *testing.T) {
	p, _ := newTokenProvider(t, 3600)
	store := NewStore(p, nil)
	defer store.Close()

	p.ResolveAnonymous()

	got, err := GetCurrentSession(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, got)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err = store.Await(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGoTrueProviderRestore(t *testing.T) {
	tcases := []struct {
		name      string
		token     string
		fail      bool
		wantID    bool
		wantErr   bool
		wantCalls int
	}{
		{name: "no stored token", token: "", wantCalls: 0},
		{name: "stored token", token: "stored", wantID: true, wantCalls: 1},
		{name: "revoked token", token: "revoked", fail: true, wantErr: true, wantCalls: 1},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			p, ts := newTokenProvider(t, 3600)
			ts.fail = tc.fail

			id, err := p.Restore(context.Background(), tc.token)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, ts.calls("refresh_token"))

			// the provider is resolved either way
			got, err := GetCurrentSession(context.Background(), p)
			require.NoError(t, err)
			if tc.wantID {
				require.NotNil(t, id)
				assert.Equal(t, ts.userID.String(), id.ID)
				assert.Equal(t, id, got)
				assert.Equal(t, "access-refresh_token", p.Tokens().AccessToken)
			} else {
				assert.Nil(t, got)
				assert.Empty(t, p.Tokens().AccessToken)
			}
		})
	}
}

func TestGoTrueProviderRefresh(t *testing.T) {
	tcases := []struct {
		name      string
		expiresIn int
		wantCalls int
		wantToken string
	}{
		{name: "fresh token is kept", expiresIn: 3600, wantCalls: 0, wantToken: "access-password"},
		{name: "expiring token is renewed", expiresIn: 10, wantCalls: 1, wantToken: "access-refresh_token"},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			p, ts := newTokenProvider(t, tc.expiresIn)
			_, err := p.SignIn(context.Background(), "ama@example.com", "Secret123!")
			require.NoError(t, err)

			require.NoError(t, p.Refresh(context.Background()))
			assert.Equal(t, tc.wantCalls, ts.calls("refresh_token"))
			assert.Equal(t, tc.wantToken, p.Tokens().AccessToken)
			assert.NotNil(t, p.CurrentIdentity())
		})
	}

	t.Run("signed out is a no-op", func(t *testing.T) {
		p, ts := newTokenProvider(t, 10)
		require.NoError(t, p.Refresh(context.Background()))
		assert.Zero(t, ts.calls("refresh_token"))
	})

	t.Run("rejected refresh signs out", func(t *testing.T) {
		p, ts := newTokenProvider(t, 10)
		_, err := p.SignIn(context.Background(), "ama@example.com", "Secret123!")
		require.NoError(t, err)
		ts.mu.Lock()
		ts.fail = true
		ts.mu.Unlock()

		assert.Error(t, p.Refresh(context.Background()))
		assert.Nil(t, p.CurrentIdentity())
		assert.Empty(t, p.Tokens().RefreshToken)
	})
}
