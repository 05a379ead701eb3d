// Package natsclient manages the NATS connection the pipeline rides on:
// reconnect policy, subscription tracking, and JetStream key-value
// access for control-plane state.
package natsclient

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vibstreams/errors"
)

// ConnectionStatus represents the state of the NATS connection.
type ConnectionStatus int

// Possible connection statuses.
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Well-known client errors.
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrClosed       = stderrors.New("client is closed")
)

// Reconnect policy: exponential backoff from InitialReconnectWait,
// doubling per attempt, capped at MaxReconnectWait, retrying forever.
const (
	InitialReconnectWait = time.Second
	MaxReconnectWait     = 30 * time.Second
)

// subscription is a tracked subject handler, replayed after a full
// reconnect so consumers never need to re-register.
type subscription struct {
	subject string
	handler func(context.Context, []byte)
	sub     *nats.Subscription
}

// Client wraps a NATS connection with the pipeline's reconnect policy.
// Subscriptions registered through Subscribe are tracked and
// re-established whenever the connection comes back.
type Client struct {
	url    string
	logger Logger

	conn *nats.Conn
	js   jetstream.JetStream

	status atomic.Value // ConnectionStatus

	subs   []*subscription
	subCtx context.Context // parent context for message handlers

	reconnects prometheus.Counter // nil when metrics disabled

	timeout      time.Duration
	drainTimeout time.Duration
	pingInterval time.Duration

	username   string
	password   string
	token      string
	clientName string

	onReconnect func()

	mu     sync.RWMutex
	closed atomic.Bool
}

// NewClient creates a client for the given NATS URL. The connection is
// not established until Connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:          url,
		logger:       &defaultLogger{},
		timeout:      5 * time.Second,
		drainTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.status.Store(StatusDisconnected)
	return c, nil
}

// URL returns the NATS server URL.
func (c *Client) URL() string { return c.url }

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy reports whether the connection is usable.
func (c *Client) IsHealthy() bool { return c.Status() == StatusConnected }

// reconnectDelay implements the exponential backoff schedule. attempts
// counts consecutive failed attempts since the last successful connect.
func reconnectDelay(attempts int) time.Duration {
	d := InitialReconnectWait
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= MaxReconnectWait {
			return MaxReconnectWait
		}
	}
	if d > MaxReconnectWait {
		d = MaxReconnectWait
	}
	return d
}

func (c *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			return reconnectDelay(attempts)
		}),
		nats.RetryOnFailedConnect(true),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// Connect establishes the connection. With RetryOnFailedConnect the
// call succeeds even when the server is unreachable; the connection
// comes up in the background under the backoff schedule.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.setStatus(StatusConnecting)
	c.logger.Printf("Connecting to NATS at %s", c.url)

	conn, err := nats.Connect(c.url, c.connectionOptions()...)
	if err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	c.mu.Lock()
	c.conn = conn
	c.subCtx = ctx
	c.mu.Unlock()

	if js, err := jetstream.New(conn); err == nil {
		c.mu.Lock()
		c.js = js
		c.mu.Unlock()
	}

	if conn.IsConnected() {
		c.setStatus(StatusConnected)
		c.logger.Printf("Connected to NATS at %s", c.url)
	} else {
		c.setStatus(StatusReconnecting)
		c.logger.Printf("NATS at %s unreachable, retrying with backoff", c.url)
	}
	return nil
}

// WaitForConnection blocks until the connection is healthy or the
// context expires.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "WaitForConnection", "wait for connection")
		case <-ticker.C:
			if c.IsHealthy() {
				return nil
			}
		}
	}
}

// Subscribe registers a handler for a subject. The subscription is
// tracked and re-established after reconnects for the lifetime of the
// client.
func (c *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	s := &subscription{subject: subject, handler: handler}
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(ctx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Subscribe", "subscribe "+subject)
	}
	s.sub = sub
	c.subs = append(c.subs, s)
	return nil
}

// Unsubscribe removes every tracked subscription for the subject.
func (c *Client) Unsubscribe(subject string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.subs[:0]
	var firstErr error
	for _, s := range c.subs {
		if s.subject != subject {
			kept = append(kept, s)
			continue
		}
		if s.sub != nil {
			if err := s.sub.Unsubscribe(); err != nil && firstErr == nil {
				firstErr = errors.Wrap(err, "Client", "Unsubscribe", "unsubscribe "+subject)
			}
		}
	}
	c.subs = kept
	return firstErr
}

// Publish publishes a message to a subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "JetStream", "get JetStream context")
	}
	return c.js, nil
}

// KeyValueBucket gets or creates a JetStream KV bucket.
func (c *Client) KeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := c.JetStream()
	if err != nil {
		return nil, err
	}

	if bucket, err := js.KeyValue(ctx, cfg.Bucket); err == nil {
		return bucket, nil
	}
	bucket, err := js.CreateKeyValue(ctx, cfg)
	if err != nil {
		// Creation can race with another instance; fall back to get.
		if bucket, getErr := js.KeyValue(ctx, cfg.Bucket); getErr == nil {
			return bucket, nil
		}
		return nil, errors.WrapTransient(err, "Client", "KeyValueBucket", "create bucket "+cfg.Bucket)
	}
	return bucket, nil
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, s := range c.subs {
		if s.sub == nil {
			continue
		}
		if err := s.sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe "+s.subject))
		}
	}
	c.subs = nil

	if c.conn != nil {
		drainDone := make(chan error, 1)
		conn := c.conn
		go func() { drainDone <- conn.Drain() }()

		select {
		case err := <-drainDone:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
			}
		case <-time.After(c.drainTimeout):
			c.logger.Errorf("Drain timeout after %v, force closing", c.drainTimeout)
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "drain cancelled"))
		}

		c.conn.Close()
		c.conn = nil
	}

	c.username = ""
	c.password = ""
	c.token = ""
	c.setStatus(StatusDisconnected)

	return stderrors.Join(errs...)
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	if err != nil {
		c.logger.Errorf("NATS disconnected: %v", err)
	}
}

// handleReconnect counts the reconnect and replays tracked
// subscriptions. nats.go carries subscriptions across its own
// reconnects; the replay covers subscriptions whose underlying
// subscription became invalid while the connection was down.
func (c *Client) handleReconnect(conn *nats.Conn) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusConnected)
	if c.reconnects != nil {
		c.reconnects.Inc()
	}
	c.logger.Printf("NATS reconnected to %s", conn.ConnectedUrl())

	c.mu.Lock()
	ctx := c.subCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, s := range c.subs {
		if s.sub != nil && s.sub.IsValid() {
			continue
		}
		handler := s.handler
		sub, err := conn.Subscribe(s.subject, func(msg *nats.Msg) {
			handler(ctx, msg.Data)
		})
		if err != nil {
			c.logger.Errorf("Resubscribe %s failed: %v", s.subject, err)
			continue
		}
		s.sub = sub
	}
	onReconnect := c.onReconnect
	c.mu.Unlock()

	if onReconnect != nil {
		go onReconnect()
	}
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Errorf("NATS error: %v", err)
}
