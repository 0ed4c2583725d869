// Package testutil provides client helpers for end-to-end tests of the
// WebSocket endpoint.
package testutil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every read performed by WSClient.
const DefaultTimeout = 3 * time.Second

// Frame is the union of every frame the server sends.
type Frame struct {
	Type   string            `json:"type"`
	ID     string            `json:"id"`
	Result json.RawMessage   `json:"result"`
	Error  string            `json:"error"`
	Event  string            `json:"event"`
	Args   []json.RawMessage `json:"args"`
}

// WSClient is a WebSocket test client speaking the room request protocol.
type WSClient struct {
	ws     *websocket.Conn
	t      *testing.T
	nextID int
	events []Frame
}

// NewWSClient dials url and returns a test client.
//
// Precondition: url must be a ws:// URL of a listening endpoint.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string, header http.Header) *WSClient {
	t.Helper()
	start := time.Now()

	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}

	t.Cleanup(func() {
		ws.Close()
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{ws: ws, t: t}
}

// Read returns the next frame, failing the test after DefaultTimeout.
func (c *WSClient) Read() Frame {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(DefaultTimeout))
	var f Frame
	if err := c.ws.ReadJSON(&f); err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	return f
}

// Call sends a request and returns its reply. Events read while waiting are
// kept for WaitEvent.
//
// Postcondition: The returned frame's ID matches the request.
func (c *WSClient) Call(method string, args ...any) Frame {
	c.t.Helper()
	c.nextID++
	id := strconv.Itoa(c.nextID)
	if args == nil {
		args = []any{}
	}

	_ = c.ws.SetWriteDeadline(time.Now().Add(DefaultTimeout))
	if err := c.ws.WriteJSON(map[string]any{"id": id, "method": method, "args": args}); err != nil {
		c.t.Fatalf("sending %s: %v", method, err)
	}
	for {
		f := c.Read()
		if f.Type == "event" {
			c.events = append(c.events, f)
			continue
		}
		if f.ID != id {
			c.t.Fatalf("reply id %q, want %q", f.ID, id)
		}
		return f
	}
}

// WaitEvent returns the first buffered or incoming event named name.
// Other events are buffered in arrival order.
func (c *WSClient) WaitEvent(name string) Frame {
	c.t.Helper()
	for i, f := range c.events {
		if f.Event == name {
			c.events = append(c.events[:i], c.events[i+1:]...)
			return f
		}
	}
	for {
		f := c.Read()
		if f.Type != "event" {
			continue
		}
		if f.Event == name {
			return f
		}
		c.events = append(c.events, f)
	}
}

// SendRaw writes data as a single text frame.
func (c *WSClient) SendRaw(data []byte) {
	c.t.Helper()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("sending raw frame: %v", err)
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	c.ws.Close()
}

// Decode unmarshals raw into a T or fails the test.
func Decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decoding %s: %v", raw, err)
	}
	return v
}
