package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const hookTimeout = 10 * time.Second

// EstablishedHook runs once per identity id when a session becomes present.
// A hook that fails is run again on the next establishment of that identity.
type EstablishedHook func(ctx context.Context, id *Identity) error

// Store holds the process-wide session. It keeps exactly one subscription to
// the provider; components read Current or attach with Subscribe.
type Store struct {
	logger *slog.Logger

	mu          sync.RWMutex
	current     *Identity
	resolved    bool
	ready       chan struct{}
	subscribers map[int]chan *Identity
	nextSub     int
	hooks       []EstablishedHook
	established map[string]map[int]bool
	closed      bool

	unsubscribe func()
}

func NewStore(p Provider, logger *slog.Logger, hooks ...EstablishedHook) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		logger:      logger,
		ready:       make(chan struct{}),
		subscribers: make(map[int]chan *Identity),
		hooks:       hooks,
		established: make(map[string]map[int]bool),
	}
	unsub := p.OnAuthStateChange(s.handle)

	s.mu.Lock()
	s.unsubscribe = unsub
	s.mu.Unlock()
	return s
}

func (s *Store) handle(id *Identity) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.current = id
	if !s.resolved {
		s.resolved = true
		close(s.ready)
	}
	for _, ch := range s.subscribers {
		publish(ch, id)
	}
	var run []int
	if id != nil {
		done := s.established[id.ID]
		if done == nil {
			done = make(map[int]bool, len(s.hooks))
			s.established[id.ID] = done
		}
		for i := range s.hooks {
			// claimed before running so a concurrent notification skips it
			if !done[i] {
				done[i] = true
				run = append(run, i)
			}
		}
	}
	s.mu.Unlock()

	for _, i := range run {
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		err := s.hooks[i](ctx, id)
		cancel()
		if err != nil {
			s.logger.Error("session hook failed", "user_id", id.ID, "error", err)
			s.mu.Lock()
			delete(s.established[id.ID], i)
			s.mu.Unlock()
		}
	}
}

// publish replaces whatever the subscriber has not read yet with the latest value.
func publish(ch chan *Identity, id *Identity) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- id:
	default:
	}
}

func (s *Store) Current() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe returns a channel carrying the latest identity after each change.
// If the store is already resolved the current value is delivered first.
func (s *Store) Subscribe() (<-chan *Identity, func()) {
	ch := make(chan *Identity, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	key := s.nextSub
	s.nextSub++
	s.subscribers[key] = ch
	if s.resolved {
		ch <- s.current
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[key]; ok {
				delete(s.subscribers, key)
				close(sub)
			}
		})
	}
}

// Await behaves like GetCurrentSession over the store.
func (s *Store) Await(ctx context.Context) (*Identity, error) {
	select {
	case <-s.ready:
		return s.Current(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for key, ch := range s.subscribers {
		delete(s.subscribers, key)
		close(ch)
	}
	unsub := s.unsubscribe
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}
