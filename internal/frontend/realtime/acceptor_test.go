package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/scrumpoker/internal/config"
	"github.com/cory-johannsen/scrumpoker/internal/poker"
	"github.com/cory-johannsen/scrumpoker/internal/pokerserver"
	"github.com/cory-johannsen/scrumpoker/internal/testutil"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           0,
		Path:           "/pokerhub",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		PingInterval:   time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     64,
	}
}

type stack struct {
	acceptor *Acceptor
	hub      *Hub
	rooms    *poker.Registry
}

func newStack(t *testing.T, cfg config.ServerConfig) *stack {
	t.Helper()
	logger := zaptest.NewLogger(t)
	hub := NewHub(logger)
	rooms := poker.NewRegistry()
	coord, err := pokerserver.NewCoordinator(rooms, hub, pokerserver.Options{}, logger)
	require.NoError(t, err)
	return &stack{
		acceptor: NewAcceptor(cfg, hub, coord, logger),
		hub:      hub,
		rooms:    rooms,
	}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestAcceptor_PlanningRound(t *testing.T) {
	st := newStack(t, testServerConfig())
	srv := httptest.NewServer(st.acceptor.Handler())
	defer srv.Close()

	bob := testutil.NewWSClient(t, wsURL(srv, "/pokerhub"), nil)
	alice := testutil.NewWSClient(t, wsURL(srv, "/pokerhub"), nil)

	created := testutil.Decode[pokerserver.CreateRoomResult](t, bob.Call("CreateRoom", "Bob").Result)
	require.True(t, created.Success)
	roomID := created.RoomID

	joined := testutil.Decode[pokerserver.JoinResult](t, alice.Call("JoinRoom", roomID, "Alice").Result)
	require.True(t, joined.Success)
	require.NotNil(t, joined.Session)
	assert.Len(t, joined.Session.Players, 2)

	ev := bob.WaitEvent(pokerserver.EventUserJoined)
	assert.Equal(t, "Alice", testutil.Decode[string](t, ev.Args[0]))

	reply := alice.Call("Vote", roomID, "Alice", "5")
	assert.Equal(t, frameResult, reply.Type)
	reply = bob.Call("Vote", roomID, "Bob", 8)
	assert.Equal(t, frameResult, reply.Type)

	alice.WaitEvent(pokerserver.EventVotesRevealed)
	bob.WaitEvent(pokerserver.EventVotesRevealed)

	// Snapshots may arrive from different senders; keep the newest.
	var latest poker.Snapshot
	for latest.Version == 0 || !latest.VotesRevealed {
		snap := testutil.Decode[poker.Snapshot](t, alice.WaitEvent(pokerserver.EventUpdateSession).Args[0])
		if snap.Version > latest.Version {
			latest = snap
		}
	}
	p, ok := latest.Player("bob")
	require.True(t, ok)
	require.NotNil(t, p.Vote)
	assert.Equal(t, "8", *p.Vote)

	assert.Equal(t, frameResult, alice.Call("ResetVotes", roomID).Type)
	bob.WaitEvent(pokerserver.EventVotesReset)

	sess, ok := st.rooms.Get(roomID)
	require.True(t, ok)
	snap := sess.Snapshot()
	assert.False(t, snap.VotesRevealed)
	for _, pl := range snap.Players {
		assert.Nil(t, pl.Vote)
	}
}

func TestAcceptor_JoinUnknownRoom(t *testing.T) {
	st := newStack(t, testServerConfig())
	srv := httptest.NewServer(st.acceptor.Handler())
	defer srv.Close()

	c := testutil.NewWSClient(t, wsURL(srv, "/pokerhub"), nil)
	res := testutil.Decode[map[string]any](t, c.Call("JoinRoom", "X", "Alice").Result)
	assert.Equal(t, map[string]any{"success": false, "errorMessage": "Oda bulunamadı."}, res)
}

func TestAcceptor_ErrorReplies(t *testing.T) {
	st := newStack(t, testServerConfig())
	srv := httptest.NewServer(st.acceptor.Handler())
	defer srv.Close()

	c := testutil.NewWSClient(t, wsURL(srv, "/pokerhub"), nil)

	reply := c.Call("Vote", "missing", "Bob", "5")
	assert.Equal(t, frameError, reply.Type)
	assert.Equal(t, pokerserver.MsgRoomNotFound, reply.Error)

	reply = c.Call("Shuffle")
	assert.Equal(t, frameError, reply.Type)
	assert.Contains(t, reply.Error, "unknown method")

	c.SendRaw([]byte("{not json"))
	reply = c.Read()
	assert.Equal(t, frameError, reply.Type)
	assert.Contains(t, reply.Error, "malformed request")

	// The connection survives bad frames.
	deck := testutil.Decode[[]string](t, c.Call("GetDeck").Result)
	assert.Equal(t, poker.DefaultDeckLabels(), deck)
}

func TestAcceptor_DisconnectNotifiesAndDestroysRoom(t *testing.T) {
	st := newStack(t, testServerConfig())
	srv := httptest.NewServer(st.acceptor.Handler())
	defer srv.Close()

	bob := testutil.NewWSClient(t, wsURL(srv, "/pokerhub"), nil)
	alice := testutil.NewWSClient(t, wsURL(srv, "/pokerhub"), nil)
	watcher := testutil.NewWSClient(t, wsURL(srv, "/pokerhub"), nil)

	roomID := testutil.Decode[pokerserver.CreateRoomResult](t, bob.Call("CreateRoom", "Bob").Result).RoomID
	require.True(t, testutil.Decode[pokerserver.JoinResult](t, alice.Call("JoinRoom", roomID, "Alice").Result).Success)

	alice.Close()
	left := bob.WaitEvent(pokerserver.EventPlayerLeft)
	assert.Equal(t, "Alice", testutil.Decode[string](t, left.Args[0]))

	bob.Close()
	deadline := time.Now().Add(3 * time.Second)
	for {
		res := testutil.Decode[pokerserver.RoomCheckResult](t, watcher.Call("CheckRoom", roomID).Result)
		if !res.RoomExists {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room still exists after its last player left")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAcceptor_RejectsDisallowedOrigin(t *testing.T) {
	cfg := testServerConfig()
	cfg.AllowedOrigins = []string{"https://poker.example.com"}
	st := newStack(t, cfg)
	srv := httptest.NewServer(st.acceptor.Handler())
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/pokerhub"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://poker.example.com")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/pokerhub"), header)
	require.NoError(t, err)
	ws.Close()
}

func TestAcceptorStartAndStop(t *testing.T) {
	st := newStack(t, testServerConfig())
	acc := st.acceptor

	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.ListenAndServe()
	}()

	// Wait for the acceptor to start listening
	deadline := time.After(2 * time.Second)
	for {
		if acc.IsRunning() && acc.Addr() != "" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	c := testutil.NewWSClient(t, "ws://"+acc.Addr()+"/pokerhub", nil)
	created := testutil.Decode[pokerserver.CreateRoomResult](t, c.Call("CreateRoom", "Bob").Result)
	require.True(t, created.Success)
	require.Equal(t, 1, st.rooms.Count())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, acc.Stop(ctx))
	assert.False(t, acc.IsRunning())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}

	// Every client was disconnected from its rooms.
	assert.Equal(t, 0, st.rooms.Count())
	assert.Equal(t, 0, st.hub.Len())

	// Stop is idempotent.
	assert.NoError(t, acc.Stop(context.Background()))
}
