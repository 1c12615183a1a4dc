// Package realtime serves live session views over WebSocket. Every
// connection is its own Session Store context on the shared bus.
package realtime

import (
	"log/slog"
	"sync"
)

// Role says which view a connection drives.
type Role string

const (
	RolePresenter   Role = "presenter"
	RoleParticipant Role = "participant"
)

// ParseRole defaults to participant for anything but "presenter".
func ParseRole(s string) Role {
	if Role(s) == RolePresenter {
		return RolePresenter
	}
	return RoleParticipant
}

// Connections counts live connections per role.
type Connections struct {
	mu     sync.RWMutex
	active map[Role]map[string]struct{}
}

// NewConnections creates an empty counter.
func NewConnections() *Connections {
	return &Connections{active: make(map[Role]map[string]struct{})}
}

// Register records connection id under role.
func (c *Connections) Register(role Role, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[role]; !ok {
		c.active[role] = make(map[string]struct{})
	}
	c.active[role][id] = struct{}{}
	slog.Info("Realtime connection registered", "role", string(role), "context_id", id)
}

// Unregister forgets connection id.
func (c *Connections) Unregister(role Role, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conns, ok := c.active[role]; ok {
		if _, exists := conns[id]; exists {
			delete(conns, id)
			if len(conns) == 0 {
				delete(c.active, role)
			}
			slog.Info("Realtime connection unregistered", "role", string(role), "context_id", id)
		}
	}
}

// Count returns the live connections for role.
func (c *Connections) Count(role Role) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active[role])
}
