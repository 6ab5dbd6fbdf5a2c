package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	apperrors "github.com/wavehub/instance-server-go/internal/errors"
	"github.com/wavehub/instance-server-go/internal/transport"
)

// ErrStaleGeneration signals that a restart request referred to a transport
// generation that has since been replaced or removed.
var ErrStaleGeneration = errors.New("stale transport generation")

// Registry is the single source of truth for which instances exist. It owns
// the instanceID → session mapping; a transport handle is owned by exactly
// one session at a time.
type Registry struct {
	factory transport.Factory

	mu       sync.RWMutex
	sessions map[string]*Session

	lmu       sync.RWMutex
	listeners []TransitionListener
}

func NewRegistry(factory transport.Factory) *Registry {
	return &Registry{
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

// Subscribe registers a transition listener. Listeners are invoked
// synchronously from the owning session's event path, after the in-memory
// state has changed.
func (r *Registry) Subscribe(l TransitionListener) {
	r.lmu.Lock()
	defer r.lmu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) dispatchTransition(t Transition) {
	r.lmu.RLock()
	listeners := r.listeners
	r.lmu.RUnlock()

	for _, l := range listeners {
		l.OnTransition(t)
	}
}

// Create allocates a session for id without starting its transport.
func (r *Registry) Create(id, name string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return nil, apperrors.AlreadyExists("instance")
	}

	s := newSession(id, name, r.dispatchTransition)
	r.sessions[id] = s
	return s, nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Lookup returns a snapshot of the session's state, if it exists.
func (r *Registry) Lookup(id string) (Snapshot, bool) {
	s, ok := r.Get(id)
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Remove tears down the session's transport (best-effort) and deletes the
// entry. Removing an absent id is a no-op success.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		s.stop()
	}
}

// StartSession installs the first transport for id and begins connecting.
func (r *Registry) StartSession(id string) error {
	s, ok := r.Get(id)
	if !ok {
		return apperrors.NotFound("instance")
	}
	return s.start(r.factory)
}

// Restart replaces the transport for id with a fresh one, if the session is
// still disconnected and expectedGen is still current.
func (r *Registry) Restart(id string, expectedGen uint64) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrStaleGeneration
	}
	return s.restart(expectedGen, r.factory)
}

// Send delivers one payload through the session for id.
func (r *Registry) Send(ctx context.Context, id, target string, payload transport.Payload) (string, error) {
	s, ok := r.Get(id)
	if !ok {
		return "", apperrors.NotFound("instance")
	}
	return s.Send(ctx, target, payload)
}

// List returns snapshots of every registered session, ordered by id.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		snapshots = append(snapshots, s.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })
	return snapshots
}

// ActiveIDs returns the ids of all registered sessions.
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close releases every session's transport without emitting removal
// transitions. Used on process shutdown; the durable mirror keeps its rows so
// instances can be resurrected on the next boot.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.closeQuiet()
	}
}
