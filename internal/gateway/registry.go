package gateway

import (
	"sort"
	"sync"
)

// Registry tracks the live sessions of the daemon.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns the live sessions ordered by connection time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].connectedAt.Equal(list[j].connectedAt) {
			return list[i].id < list[j].id
		}
		return list[i].connectedAt.Before(list[j].connectedAt)
	})
	return list
}

// ByUser returns the live sessions of one user.
func (r *Registry) ByUser(username string) []*Session {
	var out []*Session
	for _, s := range r.List() {
		if s.identity.Username == username {
			out = append(out, s)
		}
	}
	return out
}
