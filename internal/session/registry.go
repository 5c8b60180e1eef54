package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmarchetti/streamrec/internal/params"
)

// Registry owns the lifecycle of every streaming session. Other components
// reach session state only through handles it returns.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	paramsStore *params.Store
	onExpire    func(Info)
}

func NewRegistry(idleTimeout time.Duration, paramsStore *params.Store) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = 2 * time.Minute
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		paramsStore: paramsStore,
	}
}

// SetExpireHook installs a callback invoked after the janitor discards an
// idle session.
func (r *Registry) SetExpireHook(hook func(Info)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

// Create allocates a negotiating session, snapshotting the current parameter
// version so staleness is observable.
func (r *Registry) Create() *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:                uuid.NewString(),
		CreatedAt:         now,
		state:             StateNegotiating,
		lastActivity:      now,
		paramsVersionSeen: r.paramsStore.Get().Version,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Transition enforces the session state machine through the registry.
func (r *Registry) Transition(id string, target State) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.Transition(target)
}

// Retire removes a session once it is terminal. Stopped sessions are left in
// place: a finalize may be in progress and wins over reclamation.
func (r *Registry) Retire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	if !s.State().Terminal() {
		return false
	}
	delete(r.sessions, id)
	return true
}

// ActiveCount reports sessions that are negotiating or streaming.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		switch s.State() {
		case StateNegotiating, StateStreaming:
			n++
		}
	}
	return n
}

// StartJanitor periodically discards idle sessions and removes terminal ones.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Registry) sweep() {
	now := time.Now().UTC()
	var expired []Info

	r.mu.Lock()
	for id, s := range r.sessions {
		info := s.Snapshot()
		if info.State.Terminal() {
			if now.Sub(info.LastActivityAt) >= r.idleTimeout {
				delete(r.sessions, id)
			}
			continue
		}
		// Stopped sessions wait for an explicit finalize or discard.
		if info.State == StateStopped {
			continue
		}
		if now.Sub(info.LastActivityAt) < r.idleTimeout {
			continue
		}
		if err := s.Transition(StateDiscarded); err != nil {
			continue
		}
		expired = append(expired, s.Snapshot())
		delete(r.sessions, id)
	}
	hook := r.onExpire
	r.mu.Unlock()

	if hook != nil {
		for _, info := range expired {
			hook(info)
		}
	}
}
