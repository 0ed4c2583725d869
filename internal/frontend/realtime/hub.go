// Package realtime carries room traffic over WebSockets: it accepts client
// connections, decodes their requests and fans events out to room groups.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/scrumpoker/internal/pokerserver"
)

// Hub tracks live connections and their group memberships. It implements
// pokerserver.Broadcaster; sends never block on a slow connection.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	groups map[string]map[string]struct{} // group → set of connIDs

	logger *zap.Logger
}

var _ pokerserver.Broadcaster = (*Hub)(nil)

// NewHub creates an empty Hub.
//
// Precondition: logger must be non-nil.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]*Conn),
		groups: make(map[string]map[string]struct{}),
		logger: logger,
	}
}

// Register makes c addressable by its id.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
}

// Unregister forgets connID and drops it from every group.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, connID)
	for group, members := range h.groups {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// GroupLen returns the number of members of group.
func (h *Hub) GroupLen(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// GroupAdd adds connID to group.
func (h *Hub) GroupAdd(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[connID] = struct{}{}
}

// GroupRemove removes connID from group. Empty groups are discarded.
func (h *Hub) GroupRemove(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// SendToGroup delivers ev to every member of group.
func (h *Hub) SendToGroup(group string, ev pokerserver.Event) {
	h.SendToGroupExcept(group, "", ev)
}

// SendToGroupExcept delivers ev to every member of group other than exceptConnID.
//
// Postcondition: The event is queued on each target or dropped with a warning.
func (h *Hub) SendToGroupExcept(group, exceptConnID string, ev pokerserver.Event) {
	frame, err := encodeEvent(ev)
	if err != nil {
		h.logger.Error("marshaling event",
			zap.String("event", ev.Name),
			zap.Error(err),
		)
		return
	}

	for _, c := range h.targets(group, exceptConnID) {
		if err := c.Enqueue(frame); err != nil {
			h.logger.Warn("dropping event",
				zap.String("conn", c.ID()),
				zap.String("group", group),
				zap.String("event", ev.Name),
				zap.Error(err),
			)
		}
	}
}

// Send delivers a raw frame to a single connection.
func (h *Hub) Send(connID string, frame []byte) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return errConnClosed
	}
	return c.Enqueue(frame)
}

// CloseAll closes every registered connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}

func (h *Hub) targets(group, exceptConnID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.groups[group]
	out := make([]*Conn, 0, len(members))
	for id := range members {
		if id == exceptConnID {
			continue
		}
		if c, ok := h.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func encodeEvent(ev pokerserver.Event) ([]byte, error) {
	args := ev.Args
	if args == nil {
		args = []any{}
	}
	return json.Marshal(eventFrame{Type: frameEvent, Event: ev.Name, Args: args})
}
