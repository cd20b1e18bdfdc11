package ws

import (
	"sort"
	"sync"

	"github.com/browser-bridge/bridge/internal/model"
)

// Registry tracks the currently open connections by id.
type Registry struct {
	conns map[string]*Connection
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
	}
}

// Add registers c under id, replacing any previous entry.
// The replaced connection, if any, is returned.
func (r *Registry) Add(id string, c *Connection) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[id]
	r.conns[id] = c
	return prev
}

// AddLimited is Add with a cap on distinct ids. Replacing an existing id is
// always allowed. max <= 0 means no limit.
func (r *Registry) AddLimited(id string, c *Connection, max int) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.conns[id]
	if !exists && max > 0 && len(r.conns) >= max {
		return nil, model.ErrConnectionLimit
	}
	r.conns[id] = c
	return prev, nil
}

// Remove removes the entry for id. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// RemoveIf removes the entry for id only if it is still c.
// It reports whether an entry was removed.
func (r *Registry) RemoveIf(id string, c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[id] != c {
		return false
	}
	delete(r.conns, id)
	return true
}

// Get returns the connection registered under id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	return c, ok
}

// All returns a snapshot of the registered connections, oldest first.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool {
		if conns[i].connectedAt.Equal(conns[j].connectedAt) {
			return conns[i].id < conns[j].id
		}
		return conns[i].connectedAt.Before(conns[j].connectedAt)
	})
	return conns
}

// First returns the longest-registered connection.
func (r *Registry) First() (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var first *Connection
	for _, c := range r.conns {
		if first == nil || c.connectedAt.Before(first.connectedAt) ||
			(c.connectedAt.Equal(first.connectedAt) && c.id < first.id) {
			first = c
		}
	}
	return first, first != nil
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Has returns true if id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}
