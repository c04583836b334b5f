// Package live manages the persistent push connection to the notification
// backend: one WebSocket per authenticated session, a fixed set of topic
// subscriptions, a history replay request on every (re)connect, and
// fire-and-forget command frames for read-state changes.
package live

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jwalitptl/notify-hub/internal/model"
	"github.com/jwalitptl/notify-hub/internal/wire"
	apperrors "github.com/jwalitptl/notify-hub/pkg/errors"
	"github.com/jwalitptl/notify-hub/pkg/logger"
	"github.com/jwalitptl/notify-hub/pkg/metrics"
)

const (
	defaultReconnectDelay   = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

type Config struct {
	// URL is the ws:// or wss:// endpoint of the live channel.
	URL string
	// ReconnectDelay is the constant pause between reconnect attempts.
	// Deliberately not exponential: notifications are non-critical,
	// eventually-consistent data and the bulk fetch is the fallback source
	// of truth.
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return cfg
}

// NotificationHandler receives every notification push, already normalized to
// a slice. The kind is passed through as received on the wire; it is empty for
// frames from servers that predate the discriminator, and the consumer
// classifies those with its own threshold.
type NotificationHandler func(kind wire.Kind, batch []model.Notification)

// UnreadHandler receives server-reported unread counts.
type UnreadHandler func(count int)

// StatusHandler receives connection-state transitions. The boolean is the
// primitive the rest of the system depends on; there is no finer-grained
// error taxonomy on this path.
type StatusHandler func(connected bool)

type Client struct {
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	dialer  *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	token     string
	done      chan struct{}

	// Single-slot handlers: the store is the only consumer, so a later
	// registration silently replaces an earlier one.
	onNotification NotificationHandler
	onUnread       UnreadHandler
	onStatus       StatusHandler

	writeMu sync.Mutex
}

func NewClient(cfg Config, log *logger.Logger, m *metrics.Metrics) *Client {
	resolved := cfg.withDefaults()
	return &Client{
		cfg:     resolved,
		logger:  log,
		metrics: m,
		dialer:  &websocket.Dialer{HandshakeTimeout: resolved.HandshakeTimeout},
	}
}

// OnNotification registers the notification consumer. Last writer wins.
func (c *Client) OnNotification(fn func(kind wire.Kind, batch []model.Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotification = fn
}

// OnUnread registers the unread-count consumer. Last writer wins.
func (c *Client) OnUnread(fn func(count int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnread = fn
}

// OnStatus registers the connection-state consumer. Last writer wins.
func (c *Client) OnStatus(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// Connect opens the live channel authenticated with token, subscribes the
// session topics and requests a history replay. Idempotent: while a session
// is active (connected or retrying) it returns immediately. The context only
// bounds the initial dial; the session itself lives until Disconnect.
func (c *Client) Connect(ctx context.Context, token string) error {
	// Claim the session slot before dialing so a second concurrent Connect
	// returns immediately instead of racing into its own handshake.
	done := make(chan struct{})
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return nil
	}
	c.done = done
	c.token = token
	c.mu.Unlock()

	conn, err := c.dial(ctx, token)
	if err != nil {
		c.release(done)
		return apperrors.Unavailable("live connect", err)
	}

	if err := c.bootstrap(conn); err != nil {
		conn.Close()
		c.release(done)
		return apperrors.Unavailable("live subscribe", err)
	}

	c.mu.Lock()
	select {
	case <-done:
		// Disconnect was called while the dial was in flight.
		c.mu.Unlock()
		conn.Close()
		return nil
	default:
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.notifyStatus(true)

	go c.supervise(conn, done)
	return nil
}

// release frees the session slot after a failed connect, unless Disconnect or
// a later Connect already took it over.
func (c *Client) release(done chan struct{}) {
	c.mu.Lock()
	if c.done == done {
		c.done = nil
	}
	c.mu.Unlock()
}

// Disconnect unsubscribes and closes the connection. Safe to call when not
// connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	done := c.done
	conn := c.conn
	wasConnected := c.connected
	c.done = nil
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if done == nil {
		return
	}
	close(done)

	if conn != nil {
		if wasConnected {
			// Best effort; the server drops subscriptions on close anyway.
			for _, topic := range sessionTopics() {
				c.writeFrame(conn, wire.Command{Op: wire.OpUnsubscribe, Topic: topic})
			}
		}
		conn.Close()
	}
	c.notifyStatus(false)
}

// MarkRead publishes a mark-as-read command. It returns once the frame is
// handed to the transport, not when the server confirms, and fails only when
// the channel is not currently connected.
func (c *Client) MarkRead(id model.ID) error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	return c.writeFrame(conn, wire.Command{Op: wire.OpMarkRead, NotificationID: id})
}

// MarkAllRead publishes a mark-all-as-read command with the same contract as
// MarkRead.
func (c *Client) MarkAllRead() error {
	conn, err := c.currentConn()
	if err != nil {
		return err
	}
	return c.writeFrame(conn, wire.Command{Op: wire.OpMarkAllRead})
}

// Connected reports the current channel state.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) currentConn() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return nil, apperrors.NotConnected()
	}
	return c.conn, nil
}

func (c *Client) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	return conn, err
}

func sessionTopics() []string {
	return []string{
		wire.TopicUserNotifications,
		wire.TopicUserUnread,
		wire.TopicUserResponses,
		wire.TopicBroadcast,
	}
}

// bootstrap registers the session subscriptions and requests a replay of the
// notification history. Runs on every connect and reconnect.
func (c *Client) bootstrap(conn *websocket.Conn) error {
	for _, topic := range sessionTopics() {
		if err := c.writeFrame(conn, wire.Command{Op: wire.OpSubscribe, Topic: topic}); err != nil {
			return err
		}
	}
	return c.writeFrame(conn, wire.Command{Op: wire.OpReplay})
}

func (c *Client) writeFrame(conn *websocket.Conn, cmd wire.Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(cmd)
}

// supervise owns the read side of the connection for the whole session and
// redials with a constant delay, forever, until Disconnect.
func (c *Client) supervise(conn *websocket.Conn, done chan struct{}) {
	for {
		err := c.readLoop(conn)
		select {
		case <-done:
			return
		default:
		}
		c.logger.Warn("live channel dropped", "error", err)
		c.setConnected(false, nil)
		c.notifyStatus(false)

		var next *websocket.Conn
		for next == nil {
			select {
			case <-done:
				return
			case <-time.After(c.cfg.ReconnectDelay):
			}

			c.metrics.LiveReconnects.Inc()
			c.mu.Lock()
			token := c.token
			c.mu.Unlock()

			redialed, err := c.dial(context.Background(), token)
			if err != nil {
				c.logger.Debug("live reconnect failed", "error", err)
				continue
			}
			if err := c.bootstrap(redialed); err != nil {
				c.logger.Debug("live resubscribe failed", "error", err)
				redialed.Close()
				continue
			}
			next = redialed
		}

		select {
		case <-done:
			next.Close()
			return
		default:
		}
		c.setConnected(true, next)
		c.notifyStatus(true)
		conn = next
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var push wire.Push
		if err := conn.ReadJSON(&push); err != nil {
			return err
		}
		c.dispatch(push)
	}
}

func (c *Client) dispatch(push wire.Push) {
	switch {
	case push.Kind == wire.KindUnread || push.Topic == wire.TopicUserUnread:
		c.metrics.FramesReceived.WithLabelValues(string(wire.KindUnread)).Inc()
		count, ok := push.UnreadCount()
		if !ok {
			// Empty or malformed count frames are dropped, not forwarded.
			c.logger.Debug("ignoring unread frame without payload")
			return
		}
		if fn := c.unreadHandler(); fn != nil {
			fn(count)
		}

	case push.Kind == wire.KindAck || push.Topic == wire.TopicUserResponses:
		// Acknowledgements are currently unconsumed.
		c.metrics.FramesReceived.WithLabelValues(string(wire.KindAck)).Inc()
		c.logger.Debug("server ack", "topic", push.Topic)

	default:
		batch, err := push.Notifications()
		if err != nil {
			c.logger.Error(err, "dropping malformed notification frame", "topic", push.Topic)
			return
		}
		// Metrics label with the default classification; the frame itself is
		// forwarded with its wire kind untouched so the consumer applies its
		// own configured threshold to kind-less frames.
		resolved := wire.Classify(push.Kind, len(batch), 0)
		c.metrics.FramesReceived.WithLabelValues(string(resolved)).Inc()
		if resolved == wire.KindReplay {
			c.metrics.ReplaySize.Observe(float64(len(batch)))
		}
		if len(batch) == 0 && push.Kind != wire.KindReplay {
			return
		}
		if fn := c.notificationHandler(); fn != nil {
			fn(push.Kind, batch)
		}
	}
}

func (c *Client) notificationHandler() NotificationHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onNotification
}

func (c *Client) unreadHandler() UnreadHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onUnread
}

func (c *Client) setConnected(connected bool, conn *websocket.Conn) {
	c.mu.Lock()
	c.connected = connected
	if conn != nil {
		c.conn = conn
	}
	c.mu.Unlock()
}

func (c *Client) notifyStatus(connected bool) {
	if connected {
		c.metrics.LiveConnected.Set(1)
	} else {
		c.metrics.LiveConnected.Set(0)
	}
	c.mu.Lock()
	fn := c.onStatus
	c.mu.Unlock()
	if fn != nil {
		fn(connected)
	}
}
