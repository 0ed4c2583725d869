package poker

import "errors"

var (
	// ErrRoomNotFound is returned for operations on an unknown or destroyed room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNameTaken is returned when a user name is already held by another connection.
	ErrNameTaken = errors.New("user name already in use")
	// ErrInvalidName is returned for empty or blank user names.
	ErrInvalidName = errors.New("invalid user name")
	// ErrInvalidVote is returned for votes outside the deck when strict voting is enabled.
	ErrInvalidVote = errors.New("invalid vote value")
)
