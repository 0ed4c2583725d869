package poker

import (
	"strings"

	"golang.org/x/text/cases"
)

// Player is a participant in a Session.
type Player struct {
	// UserName is unique within a Session under case folding.
	UserName string
	// Vote is the cast card label; empty means no vote.
	Vote string
	// ConnectionID identifies the live channel connection bound to the player.
	ConnectionID string
}

// HasVoted reports whether the player has a non-empty vote.
func (p *Player) HasVoted() bool {
	return p.Vote != ""
}

// view returns the serializable form of the player.
func (p *Player) view() PlayerView {
	v := PlayerView{
		UserName:     p.UserName,
		ConnectionID: p.ConnectionID,
	}
	if p.HasVoted() {
		vote := p.Vote
		v.Vote = &vote
	}
	return v
}

// foldName returns the comparison key for a user name.
// A fresh Caser is built per call because Casers are not safe for concurrent use.
func foldName(name string) string {
	return cases.Fold().String(name)
}

// SameName reports whether two user names are equal under Unicode case folding.
func SameName(a, b string) bool {
	return foldName(a) == foldName(b)
}

// ValidName reports whether name is usable as a user name.
func ValidName(name string) bool {
	return strings.TrimSpace(name) != ""
}

// PlayerView is the wire form of a Player.
type PlayerView struct {
	UserName     string  `json:"userName"`
	Vote         *string `json:"vote"`
	ConnectionID string  `json:"connectionId"`
}

// Snapshot is the complete serializable state of a Session at a point in time.
type Snapshot struct {
	SessionID     string       `json:"sessionId"`
	Players       []PlayerView `json:"players"`
	VotesRevealed bool         `json:"votesRevealed"`
	// Version increases with every mutation; receivers keep the highest seen.
	Version uint64 `json:"version"`
}

// AllVoted reports whether the snapshot has players and all of them voted.
func (s Snapshot) AllVoted() bool {
	if len(s.Players) == 0 {
		return false
	}
	for _, p := range s.Players {
		if p.Vote == nil {
			return false
		}
	}
	return true
}

// Player returns the view of the named player, matched case-insensitively.
func (s Snapshot) Player(userName string) (PlayerView, bool) {
	for _, p := range s.Players {
		if SameName(p.UserName, userName) {
			return p, true
		}
	}
	return PlayerView{}, false
}
