// Package session owns the per-user state of the service: one synthetic
// product engine per active session, addressed by an opaque id.
package session

import (
	"log"
	"sort"
	"sync"
	"time"

	"BetaBasket/internal/model"
	"BetaBasket/internal/synthetic"

	"github.com/google/uuid"
)

// Session binds one engine to an id and, optionally, an external key such as
// a chat id.
type Session struct {
	ID        string
	Key       string
	CreatedAt time.Time
	Engine    *synthetic.Engine
}

// Factory builds the engine for a new session. The publish callback must be
// passed to the engine so snapshots can be tagged with the session id.
type Factory func(publish func(model.Snapshot)) *synthetic.Engine

// PublishFunc receives every snapshot published by any session.
type PublishFunc func(sessionID string, snap model.Snapshot)

// Registry holds the active sessions.
type Registry struct {
	factory Factory
	onPub   PublishFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	byKey    map[string]string
}

// NewRegistry creates an empty registry. onPublish may be nil.
func NewRegistry(factory Factory, onPublish PublishFunc) *Registry {
	return &Registry{
		factory:  factory,
		onPub:    onPublish,
		sessions: make(map[string]*Session),
		byKey:    make(map[string]string),
	}
}

// Create starts a new anonymous session.
func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked("")
}

// GetOrCreate returns the session bound to key, creating it on first use.
func (r *Registry) GetOrCreate(key string) *Session {
	r.mu.RLock()
	if id, ok := r.byKey[key]; ok {
		s := r.sessions[id]
		r.mu.RUnlock()
		return s
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byKey[key]; ok {
		return r.sessions[id]
	}
	return r.createLocked(key)
}

func (r *Registry) createLocked(key string) *Session {
	id := uuid.NewString()
	s := &Session{ID: id, Key: key, CreatedAt: time.Now()}
	s.Engine = r.factory(func(snap model.Snapshot) {
		if r.onPub != nil {
			r.onPub(id, snap)
		}
	})
	r.sessions[id] = s
	if key != "" {
		r.byKey[key] = id
	}
	log.Printf("[INFO] session %s created (key=%q)", id, key)
	return s
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove ends a session. It reports whether the session existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	delete(r.sessions, id)
	if s.Key != "" {
		delete(r.byKey, s.Key)
	}
	log.Printf("[INFO] session %s removed", id)
	return true
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Each calls fn for every session in creation order. fn runs without the
// registry lock held, so it may call back into the registry.
func (r *Registry) Each(fn func(*Session)) {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	for _, s := range list {
		fn(s)
	}
}
