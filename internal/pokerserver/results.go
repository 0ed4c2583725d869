package pokerserver

import (
	"errors"

	"github.com/cory-johannsen/scrumpoker/internal/poker"
)

// CreateRoomResult answers a CreateRoom request.
type CreateRoomResult struct {
	Success      bool   `json:"success"`
	RoomID       string `json:"roomId,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// JoinResult answers a JoinRoom request.
type JoinResult struct {
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Session      *poker.Snapshot `json:"session,omitempty"`
}

// RoomCheckResult answers a CheckRoom request.
type RoomCheckResult struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	RoomExists   bool   `json:"roomExists"`
}

// User-facing messages returned to clients.
const (
	MsgRoomNotFound = "Oda bulunamadı."
	MsgNameTaken    = "Bu kullanıcı adı zaten kullanımda. Lütfen başka bir isim seçin."
	MsgInvalidName  = "Lütfen geçerli bir kullanıcı adı girin."
	MsgInvalidVote  = "Geçersiz oy değeri."
	MsgUnexpected   = "Beklenmeyen bir hata oluştu."
)

// UserMessage maps a coordinator error to the message shown to the caller.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, poker.ErrRoomNotFound):
		return MsgRoomNotFound
	case errors.Is(err, poker.ErrNameTaken):
		return MsgNameTaken
	case errors.Is(err, poker.ErrInvalidName):
		return MsgInvalidName
	case errors.Is(err, poker.ErrInvalidVote):
		return MsgInvalidVote
	default:
		return MsgUnexpected
	}
}
