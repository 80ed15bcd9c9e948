// Package hub manages session-scoped broadcast groups for live
// connections. A group exists only to fan events out to the
// connections bound to one session.
package hub

import "sync"

// Sender delivers one frame to a live connection. Send must not block;
// it reports whether the frame was accepted.
type Sender interface {
	Send(v any) bool
}

// Hub maps session IDs to their member connections.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[Sender]struct{}
}

func New() *Hub {
	return &Hub{groups: make(map[string]map[Sender]struct{})}
}

// Join adds the connection to a session's group.
func (h *Hub) Join(sessionID string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[sessionID]
	if !ok {
		group = make(map[Sender]struct{})
		h.groups[sessionID] = group
	}
	group[s] = struct{}{}
}

// Leave removes the connection from a session's group. Empty groups
// are dropped.
func (h *Hub) Leave(sessionID string, s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[sessionID]
	if !ok {
		return
	}
	delete(group, s)
	if len(group) == 0 {
		delete(h.groups, sessionID)
	}
}

// Broadcast sends a frame to every member of the session's group and
// returns how many accepted it.
func (h *Hub) Broadcast(sessionID string, v any) int {
	h.mu.RLock()
	members := make([]Sender, 0, len(h.groups[sessionID]))
	for s := range h.groups[sessionID] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	sent := 0
	for _, s := range members {
		if s.Send(v) {
			sent++
		}
	}
	return sent
}

// Size returns the member count of a session's group.
func (h *Hub) Size(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[sessionID])
}
