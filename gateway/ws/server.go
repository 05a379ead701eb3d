// Package ws exposes derived products over WebSocket. A client sends
// subscribe messages naming a (feature, model, channel); the server
// bridges the matching derived.* bus subject onto the socket as JSON.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/feature"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	// pongWait must exceed pingInterval or healthy clients get dropped.
	pongWait = 60 * time.Second
)

// ClientMessage is what a connected client sends.
type ClientMessage struct {
	Action  string `json:"action"` // subscribe | unsubscribe
	Feature string `json:"feature"`
	Model   string `json:"model"`
	Channel int    `json:"channel"`
}

// ServerMessage is what the server sends back: control acks and data
// frames bridged from the bus.
type ServerMessage struct {
	Type    string          `json:"type"` // subscribed | unsubscribed | error | data
	Subject string          `json:"subject,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Bus is the messaging surface the gateway bridges from.
type Bus interface {
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
	Unsubscribe(subject string) error
}

// ServerDeps carries Server dependencies.
type ServerDeps struct {
	Bus    Bus
	Logger *slog.Logger // optional

	// Addr is the listen address, ":8081" when empty.
	Addr string
	// Path is the WebSocket endpoint path, "/ws" when empty.
	Path string
}

// Server is the WebSocket fan-out. One bus subscription is held per
// distinct subject, reference-counted across clients.
type Server struct {
	deps     ServerDeps
	upgrader websocket.Upgrader
	server   *http.Server

	mu       sync.Mutex
	running  bool
	clients  map[*client]struct{}
	subjects map[string]*subjectFanout

	lifecycleCtx context.Context
	lifecycleEnd context.CancelFunc
	wg           sync.WaitGroup
}

// subjectFanout is one bus subscription shared by every client
// watching the subject.
type subjectFanout struct {
	refs    int
	clients map[*client]struct{}
}

type client struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	subjects map[string]struct{}
}

// NewServer validates deps and builds the server.
func NewServer(deps ServerDeps) (*Server, error) {
	if deps.Bus == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "WSGateway", "NewServer", "bus is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "ws-gateway")
	if deps.Addr == "" {
		deps.Addr = ":8081"
	}
	if deps.Path == "" {
		deps.Path = "/ws"
	}

	return &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		clients:  make(map[*client]struct{}),
		subjects: make(map[string]*subjectFanout),
	}, nil
}

// Start launches the HTTP server.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "WSGateway", "Start", "check state")
	}
	s.running = true
	s.lifecycleCtx, s.lifecycleEnd = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc(s.deps.Path, s.handleConnection)
	s.server = &http.Server{Addr: s.deps.Addr, Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.deps.Logger.Error("websocket server failed", "error", err)
		}
	}()

	s.deps.Logger.Info("websocket gateway listening", "addr", s.deps.Addr, "path", s.deps.Path)
	return nil
}

// Stop shuts the HTTP server down, closes every client, and releases
// the bus subscriptions.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	server := s.server
	s.lifecycleEnd()
	s.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			s.deps.Logger.Warn("server shutdown incomplete", "error", err)
		}
	}

	s.mu.Lock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
	s.clients = make(map[*client]struct{})
	for subject := range s.subjects {
		_ = s.deps.Bus.Unsubscribe(subject)
	}
	s.subjects = make(map[string]*subjectFanout)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: conn, subjects: make(map[string]struct{})}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	ctx := s.lifecycleCtx
	s.mu.Unlock()

	s.deps.Logger.Debug("client connected", "remote", r.RemoteAddr)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.pingLoop(ctx, c)
	}()
	go func() {
		defer s.wg.Done()
		s.readLoop(ctx, c)
	}()
}

// readLoop processes subscribe/unsubscribe messages until the client
// disconnects.
func (s *Server) readLoop(ctx context.Context, c *client) {
	defer s.dropClient(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Action {
		case "subscribe":
			s.subscribe(ctx, c, msg)
		case "unsubscribe":
			s.unsubscribe(c, msg)
		default:
			c.send(ServerMessage{Type: "error", Error: fmt.Sprintf("unknown action %q", msg.Action)})
		}
	}
}

func (s *Server) subscribe(ctx context.Context, c *client, msg ClientMessage) {
	f, err := feature.Parse(msg.Feature)
	if err != nil {
		c.send(ServerMessage{Type: "error", Error: err.Error()})
		return
	}
	subject := feature.DerivedSubject(f, msg.Model, msg.Channel)

	s.mu.Lock()
	fan, exists := s.subjects[subject]
	if !exists {
		fan = &subjectFanout{clients: make(map[*client]struct{})}
		s.subjects[subject] = fan
	}
	if _, dup := fan.clients[c]; !dup {
		fan.clients[c] = struct{}{}
		fan.refs++
		c.subjects[subject] = struct{}{}
	}
	needBusSub := !exists
	s.mu.Unlock()

	if needBusSub {
		err := s.deps.Bus.Subscribe(ctx, subject, func(_ context.Context, data []byte) {
			s.broadcast(subject, data)
		})
		if err != nil {
			s.mu.Lock()
			delete(s.subjects, subject)
			delete(c.subjects, subject)
			s.mu.Unlock()
			c.send(ServerMessage{Type: "error", Subject: subject, Error: err.Error()})
			return
		}
	}
	c.send(ServerMessage{Type: "subscribed", Subject: subject})
}

func (s *Server) unsubscribe(c *client, msg ClientMessage) {
	f, err := feature.Parse(msg.Feature)
	if err != nil {
		c.send(ServerMessage{Type: "error", Error: err.Error()})
		return
	}
	subject := feature.DerivedSubject(f, msg.Model, msg.Channel)

	if s.releaseSubject(c, subject) {
		c.send(ServerMessage{Type: "unsubscribed", Subject: subject})
	}
}

// releaseSubject detaches a client from one subject and drops the bus
// subscription when nobody is left. Reports whether the client was
// attached.
func (s *Server) releaseSubject(c *client, subject string) bool {
	s.mu.Lock()
	fan, ok := s.subjects[subject]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if _, attached := fan.clients[c]; !attached {
		s.mu.Unlock()
		return false
	}
	delete(fan.clients, c)
	delete(c.subjects, subject)
	fan.refs--
	lastOut := fan.refs == 0
	if lastOut {
		delete(s.subjects, subject)
	}
	s.mu.Unlock()

	if lastOut {
		_ = s.deps.Bus.Unsubscribe(subject)
	}
	return true
}

// broadcast forwards one bus message to every client on the subject.
func (s *Server) broadcast(subject string, data []byte) {
	s.mu.Lock()
	fan, ok := s.subjects[subject]
	if !ok {
		s.mu.Unlock()
		return
	}
	targets := make([]*client, 0, len(fan.clients))
	for c := range fan.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	msg := ServerMessage{Type: "data", Subject: subject, Payload: data}
	for _, c := range targets {
		if !c.send(msg) {
			s.dropClient(c)
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				s.dropClient(c)
				return
			}
		}
	}
}

// dropClient releases every subject the client held and closes the
// connection. Safe to call twice.
func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	if _, present := s.clients[c]; !present {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	held := make([]string, 0, len(c.subjects))
	for subject := range c.subjects {
		held = append(held, subject)
	}
	s.mu.Unlock()

	for _, subject := range held {
		s.releaseSubject(c, subject)
	}
	_ = c.conn.Close()
}

// send writes one message under the client's write lock. Reports
// whether the write succeeded.
func (c *client) send(msg ServerMessage) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg) == nil
}
