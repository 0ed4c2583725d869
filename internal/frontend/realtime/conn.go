package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/scrumpoker/internal/config"
)

var (
	errBufferFull = errors.New("send buffer full")
	errConnClosed = errors.New("connection closed")
)

// Conn is one client WebSocket. Outbound frames are queued and written by a
// single writer goroutine; inbound frames are read by the acceptor.
type Conn struct {
	id     string
	ws     *websocket.Conn
	cfg    config.ServerConfig
	logger *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// newConn wraps ws and assigns it a fresh connection id.
func newConn(ws *websocket.Conn, cfg config.ServerConfig, logger *zap.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		cfg:    cfg,
		logger: logger.With(zap.String("conn", id)),
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Enqueue queues frame for delivery without blocking.
//
// Postcondition: Returns errBufferFull when the queue is full and
// errConnClosed after Close; the frame is dropped in both cases.
func (c *Conn) Enqueue(frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errBufferFull
	}
}

// Close stops the writer and closes the socket. It is idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump delivers queued frames and keep-alive pings until Close or the
// first write error.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("writing frame", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("writing ping", zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
			return
		}
	}
}
