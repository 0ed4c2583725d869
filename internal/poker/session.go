// Package poker models planning poker rooms: players, their hidden votes and
// the reveal state shared by everyone in a room.
package poker

import (
	"fmt"
	"sync"
)

// JoinKind classifies how a join request was applied.
type JoinKind int

const (
	// JoinCreated seeded the first player of an empty session.
	JoinCreated JoinKind = iota + 1
	// JoinRebound moved the sole player to a new connection.
	JoinRebound
	// JoinDuplicate repeated a join already held by the same connection.
	JoinDuplicate
	// JoinAdded appended a new player.
	JoinAdded
)

// String returns a lowercase name for logging.
func (k JoinKind) String() string {
	switch k {
	case JoinCreated:
		return "created"
	case JoinRebound:
		return "rebound"
	case JoinDuplicate:
		return "duplicate"
	case JoinAdded:
		return "added"
	default:
		return "unknown"
	}
}

// JoinOutcome is the result of Session.Join.
type JoinOutcome struct {
	Kind     JoinKind
	Snapshot Snapshot
}

// VoteOutcome is the result of Session.Vote.
type VoteOutcome struct {
	// Applied is false when no player matched the name.
	Applied bool
	// UserName is the stored name of the voting player.
	UserName string
	// AutoRevealed is true when this vote completed the round.
	AutoRevealed bool
	Snapshot     Snapshot
}

// LeaveOutcome is the result of Session.Leave.
type LeaveOutcome struct {
	// Removed holds the names of the players that were bound to the connection.
	Removed  []string
	Empty    bool
	Snapshot Snapshot
}

// Session is one room's voting state. All methods are safe for concurrent
// use; each holds the session lock only while reading and mutating memory.
type Session struct {
	id string

	mu            sync.Mutex
	players       []*Player
	votesRevealed bool
	version       uint64
	closed        bool
}

// NewSession creates an empty, open Session.
//
// Precondition: id must be non-empty.
func NewSession(id string) *Session {
	return &Session{id: id}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Join binds userName to connID inside the session.
//
// Precondition: connID must be non-empty.
// Postcondition: On success the session holds exactly one player with the
// folded userName, bound to connID. On ErrNameTaken the session is unchanged.
func (s *Session) Join(userName, connID string) (JoinOutcome, error) {
	if !ValidName(userName) {
		return JoinOutcome{}, fmt.Errorf("joining room %s: %w", s.id, ErrInvalidName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return JoinOutcome{}, fmt.Errorf("joining room %s: %w", s.id, ErrRoomNotFound)
	}

	if len(s.players) == 0 {
		s.players = append(s.players, &Player{UserName: userName, ConnectionID: connID})
		s.version++
		return JoinOutcome{Kind: JoinCreated, Snapshot: s.snapshotLocked()}, nil
	}

	// The creator is seeded under the connection that created the room; the
	// first join from the creator re-binds instead of colliding.
	if len(s.players) == 1 && SameName(s.players[0].UserName, userName) {
		s.players[0].ConnectionID = connID
		s.version++
		return JoinOutcome{Kind: JoinRebound, Snapshot: s.snapshotLocked()}, nil
	}

	if existing := s.findLocked(userName); existing != nil {
		if existing.ConnectionID == connID {
			return JoinOutcome{Kind: JoinDuplicate, Snapshot: s.snapshotLocked()}, nil
		}
		return JoinOutcome{}, fmt.Errorf("joining room %s as %q: %w", s.id, userName, ErrNameTaken)
	}

	s.players = append(s.players, &Player{UserName: userName, ConnectionID: connID})
	s.version++
	return JoinOutcome{Kind: JoinAdded, Snapshot: s.snapshotLocked()}, nil
}

// Vote records value as userName's vote. An unknown name is a silent no-op.
//
// Postcondition: When the vote makes every player voted and votes were hidden,
// votes become revealed and AutoRevealed is set.
func (s *Session) Vote(userName, value string) (VoteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return VoteOutcome{}, fmt.Errorf("voting in room %s: %w", s.id, ErrRoomNotFound)
	}

	p := s.findLocked(userName)
	if p == nil {
		return VoteOutcome{Snapshot: s.snapshotLocked()}, nil
	}

	p.Vote = value
	out := VoteOutcome{Applied: true, UserName: p.UserName}
	if !s.votesRevealed && s.allVotedLocked() {
		s.votesRevealed = true
		out.AutoRevealed = true
	}
	s.version++
	out.Snapshot = s.snapshotLocked()
	return out, nil
}

// Reveal exposes all votes. It is idempotent.
func (s *Session) Reveal() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, fmt.Errorf("revealing room %s: %w", s.id, ErrRoomNotFound)
	}
	s.votesRevealed = true
	s.version++
	return s.snapshotLocked(), nil
}

// Reset clears every vote and hides votes again. It is idempotent.
//
// Postcondition: No player has a vote and votes are hidden.
func (s *Session) Reset() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, fmt.Errorf("resetting room %s: %w", s.id, ErrRoomNotFound)
	}
	for _, p := range s.players {
		p.Vote = ""
	}
	s.votesRevealed = false
	s.version++
	return s.snapshotLocked(), nil
}

// Leave removes every player bound to connID.
//
// Postcondition: No player in the session is bound to connID. Empty reports
// whether the session has no players left.
func (s *Session) Leave(connID string) LeaveOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return LeaveOutcome{Empty: true}
	}

	var removed []string
	kept := s.players[:0]
	for _, p := range s.players {
		if p.ConnectionID == connID {
			removed = append(removed, p.UserName)
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(s.players); i++ {
		s.players[i] = nil
	}
	s.players = kept
	if len(removed) > 0 {
		s.version++
	}

	return LeaveOutcome{
		Removed:  removed,
		Empty:    len(s.players) == 0,
		Snapshot: s.snapshotLocked(),
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of players.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// closeIfEmpty marks an empty session closed. The caller must hold the
// registry lock.
func (s *Session) closeIfEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.players) > 0 {
		return false
	}
	s.closed = true
	return true
}

// close marks the session closed regardless of its players.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) findLocked(userName string) *Player {
	key := foldName(userName)
	for _, p := range s.players {
		if foldName(p.UserName) == key {
			return p
		}
	}
	return nil
}

func (s *Session) allVotedLocked() bool {
	for _, p := range s.players {
		if !p.HasVoted() {
			return false
		}
	}
	return len(s.players) > 0
}

func (s *Session) snapshotLocked() Snapshot {
	players := make([]PlayerView, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p.view())
	}
	return Snapshot{
		SessionID:     s.id,
		Players:       players,
		VotesRevealed: s.votesRevealed,
		Version:       s.version,
	}
}
