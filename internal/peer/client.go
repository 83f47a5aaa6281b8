// Package peer maintains the WebSocket connection to the WhackerLink master and
// turns inbound frames into typed callbacks.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/metrics"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/protocol"
)

// ErrNotConnected is returned by Send while no connection is open
var ErrNotConnected = errors.New("peer not connected")

const (
	readLimit    = 1 << 20
	writeTimeout = 5 * time.Second
)

// Handlers are invoked from the read loop, one event at a time.
// Any of them may be nil.
type Handlers struct {
	OnOpen         func()
	OnClose        func(err error)
	OnReconnecting func(attempt int, delay time.Duration)
	OnAudio        func(packet *protocol.AudioPacket)
	OnRelease      func(release *protocol.ChannelRelease)
}

// Config contains master connection configuration
type Config struct {
	URL          string
	AuthKey      string // sent as AUTH right after connecting; empty skips it
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client is a reconnecting connection to the master
type Client struct {
	config   Config
	handlers Handlers
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

// URL returns the master WebSocket URL for address and port
func URL(address string, port int) string {
	return "ws://" + net.JoinHostPort(address, strconv.Itoa(port)) + "/"
}

// NewClient creates a client. m may be nil.
func NewClient(config Config, handlers Handlers, logger *slog.Logger, m *metrics.Metrics) *Client {
	if config.ReconnectMin <= 0 {
		config.ReconnectMin = time.Second
	}
	if config.ReconnectMax < config.ReconnectMin {
		config.ReconnectMax = config.ReconnectMin
	}

	return &Client{
		config:   config,
		handlers: handlers,
		logger:   logger,
		metrics:  m,
	}
}

// Connected reports whether a connection is currently open
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run connects and serves the connection until ctx is cancelled, reconnecting
// with capped exponential backoff whenever the connection drops or cannot be opened.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0

	for {
		opened, err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if opened {
			attempt = 0
		}
		attempt++

		delay := c.backoff(attempt)
		c.logger.Warn("Master connection lost, reconnecting",
			slog.String("url", c.config.URL),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		if c.metrics != nil {
			c.metrics.RecordReconnect()
		}
		if c.handlers.OnReconnecting != nil {
			c.handlers.OnReconnecting(attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// backoff returns the wait before reconnect attempt n (1-based)
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.config.ReconnectMin
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.config.ReconnectMax || delay <= 0 {
			return c.config.ReconnectMax
		}
	}
	return delay
}

// connectAndServe dials once and runs the read loop until the connection ends.
// opened reports whether the connection was established.
func (c *Client) connectAndServe(ctx context.Context) (opened bool, err error) {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.config.URL, err)
	}
	conn.SetReadLimit(readLimit)

	c.setConn(conn)
	defer func() {
		c.setConn(nil)
		conn.Close(websocket.StatusNormalClosure, "closing")
	}()

	if c.config.AuthKey != "" {
		auth, err := protocol.EncodeAuth(protocol.AuthRequest{AuthKey: c.config.AuthKey})
		if err != nil {
			return true, err
		}
		if err := c.Send(ctx, auth); err != nil {
			return true, fmt.Errorf("send auth: %w", err)
		}
	}

	c.logger.Info("Connected to master", slog.String("url", c.config.URL))
	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}

	err = c.readLoop(ctx, conn)

	c.logger.Debug("Read loop ended", slog.Any("reason", err))
	if c.handlers.OnClose != nil {
		c.handlers.OnClose(err)
	}
	return true, err
}

// readLoop reads frames until the connection fails, dispatching each one
// synchronously before reading the next
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			c.logger.Debug("Ignoring message", slog.String("type", msg.Type))
			return
		}

		c.logger.Warn("Failed to parse message",
			slog.String("error", err.Error()),
			slog.Int("size", len(data)),
		)
		if c.metrics != nil {
			c.metrics.RecordParseError()
		}
		return
	}

	switch msg.Type {
	case protocol.TypeAudioData:
		c.logger.Debug("Voice frame", slog.String("packet", msg.Audio.String()))
		if c.handlers.OnAudio != nil {
			c.handlers.OnAudio(msg.Audio)
		}
	case protocol.TypeVoiceChannelRelease:
		c.logger.Debug("Channel release", slog.String("release", msg.Release.String()))
		if c.handlers.OnRelease != nil {
			c.handlers.OnRelease(msg.Release)
		}
	}
}

// Send writes one text frame to the master
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.connected.Store(conn != nil)
	if c.metrics != nil {
		c.metrics.SetPeerConnected(conn != nil)
	}
}
