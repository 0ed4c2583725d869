package pokerserver

import "github.com/cory-johannsen/scrumpoker/internal/poker"

// Event names pushed to room members.
const (
	EventUserJoined    = "UserJoined"
	EventUpdateSession = "UpdateSession"
	EventVoteReceived  = "VoteReceived"
	EventVotesRevealed = "VotesRevealed"
	EventVotesReset    = "VotesReset"
	EventPlayerLeft    = "PlayerLeft"
)

// Event is a named server-to-client notification with positional arguments.
type Event struct {
	Name string
	Args []any
}

func userJoined(userName string) Event {
	return Event{Name: EventUserJoined, Args: []any{userName}}
}

func updateSession(snap poker.Snapshot) Event {
	return Event{Name: EventUpdateSession, Args: []any{snap}}
}

func voteReceived(userName, vote string) Event {
	return Event{Name: EventVoteReceived, Args: []any{userName, vote}}
}

func votesRevealed() Event {
	return Event{Name: EventVotesRevealed}
}

func votesReset() Event {
	return Event{Name: EventVotesReset}
}

func playerLeft(userName string) Event {
	return Event{Name: EventPlayerLeft, Args: []any{userName}}
}
