package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/scrumpoker/internal/config"
)

// Acceptor serves the WebSocket endpoint and runs one read loop per client.
type Acceptor struct {
	cfg      config.ServerConfig
	hub      *Hub
	rooms    RoomService
	logger   *zap.Logger
	upgrader websocket.Upgrader

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewAcceptor creates a WebSocket acceptor.
//
// Precondition: hub, rooms and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ServerConfig, hub *Hub, rooms RoomService, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		cfg:    cfg,
		hub:    hub,
		rooms:  rooms,
		logger: logger,
		quit:   make(chan struct{}),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     a.checkOrigin,
	}
	return a
}

// Handler returns the HTTP handler serving the configured path.
func (a *Acceptor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(a.cfg.Path, a.serveWS)
	return mux
}

// ListenAndServe starts the HTTP listener and serves clients until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.ReadTimeout,
	}

	a.mu.Lock()
	a.listener = listener
	a.server = srv
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
		zap.Duration("startup", time.Since(start)),
	)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket endpoint: %w", err)
	}
	return nil
}

// Stop closes the listener, disconnects every client and waits for their
// read loops to finish, or for ctx to expire.
//
// Postcondition: Every client has been disconnected from its rooms unless
// ctx expired first.
func (a *Acceptor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	close(a.quit)
	srv := a.server
	a.mu.Unlock()

	var errs []error
	if srv != nil {
		// Shutdown does not track hijacked connections; those are closed below.
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down http server: %w", err))
		}
	}
	a.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for clients: %w", ctx.Err()))
	}

	a.logger.Info("websocket acceptor stopped")
	return errors.Join(errs...)
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Acceptor) stopping() bool {
	select {
	case <-a.quit:
		return true
	default:
		return false
	}
}

func (a *Acceptor) checkOrigin(r *http.Request) bool {
	if len(a.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range a.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// serveWS upgrades the request and runs the client's read loop. Requests from
// one client are handled strictly in order; Disconnect runs once, after the
// last of them.
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	// wg.Add is ordered before Stop closes quit, so Stop's Wait covers this client.
	a.mu.Lock()
	if a.stopping() {
		a.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		a.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	start := time.Now()
	conn := newConn(ws, a.cfg, a.logger)
	a.hub.Register(conn)
	go conn.writePump()
	// Stop may have run CloseAll before Register.
	if a.stopping() {
		conn.Close()
	}

	a.logger.Info("client connected",
		zap.String("conn", conn.ID()),
		zap.String("remote_addr", r.RemoteAddr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		a.rooms.Disconnect(context.Background(), conn.ID())
		a.hub.Unregister(conn.ID())
		conn.Close()
		a.logger.Info("client disconnected",
			zap.String("conn", conn.ID()),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	ws.SetReadLimit(a.cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Debug("reading frame",
					zap.String("conn", conn.ID()),
					zap.Error(err),
				)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))

		a.handleFrame(ctx, conn, data)
	}
}

func (a *Acceptor) handleFrame(ctx context.Context, conn *Conn, data []byte) {
	var req requestFrame
	var result any
	var err error
	if jerr := json.Unmarshal(data, &req); jerr != nil {
		err = protocolErrorf("malformed request: %v", jerr)
	} else {
		result, err = dispatch(ctx, a.rooms, conn.ID(), req)
	}

	if err != nil {
		a.logger.Debug("request failed",
			zap.String("conn", conn.ID()),
			zap.String("method", req.Method),
			zap.Error(err),
		)
	}

	frame, merr := encodeReply(req.ID, result, err)
	if merr != nil {
		a.logger.Error("marshaling reply",
			zap.String("conn", conn.ID()),
			zap.String("method", req.Method),
			zap.Error(merr),
		)
		return
	}
	if qerr := conn.Enqueue(frame); qerr != nil {
		a.logger.Warn("dropping reply",
			zap.String("conn", conn.ID()),
			zap.String("method", req.Method),
			zap.Error(qerr),
		)
	}
}
