package poker

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Registry owns every live Session, keyed by room id, plus a reverse index
// from connection id to the rooms the connection joined.
// All methods are safe for concurrent use. The registry lock is only ever
// taken before a session lock, never while holding one.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Session

	connMu sync.Mutex
	conns  map[string]map[string]struct{} // connID → set of roomIDs

	newID func() string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Session),
		conns: make(map[string]map[string]struct{}),
		newID: NewRoomID,
	}
}

// NewRoomID returns a 128-bit random identifier as 32 hex characters.
func NewRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create stores a new empty Session under a fresh id.
//
// Postcondition: The registry holds one more room; the returned Session is empty.
func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id := r.newID()
		if _, exists := r.rooms[id]; exists {
			continue
		}
		s := NewSession(id)
		r.rooms[id] = s
		return s
	}
}

// Get returns the Session for roomID.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (r *Registry) Get(roomID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rooms[roomID]
	return s, ok
}

// Exists reports whether roomID names a live room.
func (r *Registry) Exists(roomID string) bool {
	_, ok := r.Get(roomID)
	return ok
}

// Remove deletes roomID. It is idempotent.
//
// Postcondition: The room is absent and any holder of its Session observes
// ErrRoomNotFound on further mutations.
func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.rooms[roomID]; ok {
		s.close()
		delete(r.rooms, roomID)
	}
}

// RemoveIfEmpty deletes roomID only if its Session has no players, checking
// and deleting atomically with respect to joins.
//
// Postcondition: Returns true if the room was deleted by this call.
func (r *Registry) RemoveIfEmpty(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if !s.closeIfEmpty() {
		return false
	}
	delete(r.rooms, roomID)
	return true
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Bind records that connID holds a player in roomID.
func (r *Registry) Bind(connID, roomID string) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	set, ok := r.conns[connID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[connID] = set
	}
	set[roomID] = struct{}{}
}

// Release forgets connID and returns every room it was bound to.
//
// Postcondition: connID has no bindings.
func (r *Registry) Release(connID string) []string {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	set, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)

	rooms := make([]string, 0, len(set))
	for id := range set {
		rooms = append(rooms, id)
	}
	return rooms
}
