package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cory-johannsen/scrumpoker/internal/poker"
	"github.com/cory-johannsen/scrumpoker/internal/pokerserver"
)

// RoomService is the request surface invoked by clients.
type RoomService interface {
	CreateRoom(ctx context.Context, connID, userName string) pokerserver.CreateRoomResult
	JoinRoom(ctx context.Context, connID, roomID, userName string) pokerserver.JoinResult
	Vote(ctx context.Context, connID, roomID, userName, vote string) error
	RevealVotes(ctx context.Context, roomID string) error
	ResetVotes(ctx context.Context, roomID string) error
	CheckRoom(ctx context.Context, roomID string) pokerserver.RoomCheckResult
	Deck() []poker.Card
	Disconnect(ctx context.Context, connID string)
}

const (
	frameResult = "result"
	frameError  = "error"
	frameEvent  = "event"
)

// requestFrame is a client invocation.
type requestFrame struct {
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
}

// replyFrame answers one requestFrame.
type replyFrame struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// eventFrame is an unsolicited server notification.
type eventFrame struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

// protocolError reports a malformed request. Its text goes to the client as is.
type protocolError struct {
	msg string
}

func (e *protocolError) Error() string { return e.msg }

func protocolErrorf(format string, args ...any) error {
	return &protocolError{msg: fmt.Sprintf(format, args...)}
}

// dispatch invokes the RoomService method named by req.
//
// Postcondition: Returns the value to send as the result, or an error whose
// client message is given by errorMessage.
func dispatch(ctx context.Context, svc RoomService, connID string, req requestFrame) (any, error) {
	method := strings.ToLower(req.Method)
	switch method {
	case "createroom":
		args, err := stringArgs(req.Method, req.Args, 1)
		if err != nil {
			return nil, err
		}
		return svc.CreateRoom(ctx, connID, args[0]), nil

	case "joinroom":
		args, err := stringArgs(req.Method, req.Args, 2)
		if err != nil {
			return nil, err
		}
		return svc.JoinRoom(ctx, connID, args[0], args[1]), nil

	case "vote":
		args, err := stringArgs(req.Method, req.Args, 3)
		if err != nil {
			return nil, err
		}
		return nil, svc.Vote(ctx, connID, args[0], args[1], args[2])

	case "revealvotes":
		args, err := stringArgs(req.Method, req.Args, 1)
		if err != nil {
			return nil, err
		}
		return nil, svc.RevealVotes(ctx, args[0])

	case "resetvotes":
		args, err := stringArgs(req.Method, req.Args, 1)
		if err != nil {
			return nil, err
		}
		return nil, svc.ResetVotes(ctx, args[0])

	case "checkroom":
		args, err := stringArgs(req.Method, req.Args, 1)
		if err != nil {
			return nil, err
		}
		return svc.CheckRoom(ctx, args[0]), nil

	case "getdeck":
		if _, err := stringArgs(req.Method, req.Args, 0); err != nil {
			return nil, err
		}
		return svc.Deck(), nil

	default:
		return nil, protocolErrorf("unknown method %q", req.Method)
	}
}

// errorMessage returns the client-facing text for a dispatch error.
func errorMessage(err error) string {
	var perr *protocolError
	if errors.As(err, &perr) {
		return perr.msg
	}
	return pokerserver.UserMessage(err)
}

// stringArgs decodes exactly n positional arguments. JSON numbers are
// accepted and kept in their literal form, so a vote of 5 reads as "5".
func stringArgs(method string, raw []json.RawMessage, n int) ([]string, error) {
	if len(raw) != n {
		return nil, protocolErrorf("%s expects %d arguments, got %d", method, n, len(raw))
	}
	out := make([]string, n)
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out[i] = s
			continue
		}
		var num json.Number
		if err := json.Unmarshal(r, &num); err == nil {
			out[i] = string(bytes.TrimSpace(r))
			continue
		}
		return nil, protocolErrorf("%s argument %d must be a string", method, i+1)
	}
	return out, nil
}

func encodeReply(id string, result any, err error) ([]byte, error) {
	if err != nil {
		return json.Marshal(replyFrame{Type: frameError, ID: id, Error: errorMessage(err)})
	}
	return json.Marshal(replyFrame{Type: frameResult, ID: id, Result: result})
}
