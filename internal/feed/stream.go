package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/observability"
)

// StreamConfig configures StreamClient behavior.
type StreamConfig struct {
	// URL is the websocket endpoint.
	URL string
	// Tokens are subscribed for trades on every connect.
	Tokens []string
	// NewTokens subscribes to launch events.
	NewTokens bool
	// Migrations subscribes to graduation events.
	Migrations bool

	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// BufferSize is the capacity of the event channel.
	BufferSize int

	Logger *zap.Logger
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		NewTokens:         true,
		Migrations:        true,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		BufferSize:        10000,
	}
}

var connectionStates = []string{
	string(domain.ConnectionConnecting),
	string(domain.ConnectionConnected),
	string(domain.ConnectionDisconnected),
}

// StreamClient delivers live feed events over a websocket. It reconnects
// with exponential backoff and resubscribes on every connection.
type StreamClient struct {
	config StreamConfig
	logger *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	tokens   []string
	tokensMu sync.Mutex

	started atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewStreamClient creates a client. Nothing is dialed until Subscribe.
func NewStreamClient(config StreamConfig) *StreamClient {
	def := DefaultStreamConfig()
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = def.ReconnectDelay
	}
	if config.MaxReconnectDelay <= 0 {
		config.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamClient{
		config: config,
		logger: logger.Named("stream"),
		tokens: append([]string(nil), config.Tokens...),
	}
}

// Subscribe starts the connection loop and returns the event channel. The
// channel is closed once ctx is done or Close is called. It may be called once.
func (c *StreamClient) Subscribe(ctx context.Context) (<-chan domain.FeedEvent, error) {
	if c.closed.Load() {
		return nil, errors.New("client closed")
	}
	if c.started.Swap(true) {
		return nil, errors.New("already subscribed")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	events := make(chan domain.FeedEvent, c.config.BufferSize)
	c.wg.Add(1)
	go c.run(ctx, events)
	return events, nil
}

// AddTokens subscribes to trades of more tokens, now and after reconnects.
func (c *StreamClient) AddTokens(tokens ...string) error {
	c.tokensMu.Lock()
	c.tokens = append(c.tokens, tokens...)
	c.tokensMu.Unlock()

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.writeLocked(subscribeRequest{Method: methodSubscribeTokenTrade, Keys: tokens})
}

// Close stops the client and waits for its goroutines.
func (c *StreamClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

// run owns the connection lifecycle.
func (c *StreamClient) run(ctx context.Context, events chan<- domain.FeedEvent) {
	defer c.wg.Done()
	defer close(events)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.ReconnectDelay
	b.MaxInterval = c.config.MaxReconnectDelay
	b.MaxElapsedTime = 0
	retry := backoff.WithContext(b, ctx)

	for {
		c.emit(ctx, events, domain.ConnectionStateEvent{State: domain.ConnectionConnecting})

		err := c.connect(ctx)
		if err == nil {
			retry.Reset()
			c.emit(ctx, events, domain.ConnectionStateEvent{State: domain.ConnectionConnected})
			err = c.readLoop(ctx, events)
		}
		c.dropConn()

		if ctx.Err() != nil || c.closed.Load() {
			c.emitFinal(events)
			return
		}

		c.logger.Warn("stream disconnected", zap.Error(err))
		c.emit(ctx, events, domain.ConnectionStateEvent{State: domain.ConnectionDisconnected, Err: err})

		delay := retry.NextBackOff()
		if delay == backoff.Stop {
			c.emitFinal(events)
			return
		}
		select {
		case <-ctx.Done():
			c.emitFinal(events)
			return
		case <-time.After(delay):
		}
		observability.RecordFeedReconnect()
	}
}

// connect dials and sends all subscriptions.
func (c *StreamClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = conn

	c.tokensMu.Lock()
	tokens := append([]string(nil), c.tokens...)
	c.tokensMu.Unlock()

	if len(tokens) > 0 {
		if err := c.writeLocked(subscribeRequest{Method: methodSubscribeTokenTrade, Keys: tokens}); err != nil {
			return err
		}
	}
	if c.config.NewTokens {
		if err := c.writeLocked(subscribeRequest{Method: methodSubscribeNewToken}); err != nil {
			return err
		}
	}
	if c.config.Migrations {
		if err := c.writeLocked(subscribeRequest{Method: methodSubscribeMigration}); err != nil {
			return err
		}
	}
	c.logger.Info("stream connected", zap.String("url", c.config.URL), zap.Int("tokens", len(tokens)))
	return nil
}

// writeLocked sends v on the current connection. c.connMu must be held.
func (c *StreamClient) writeLocked(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

func (c *StreamClient) dropConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// readLoop reads messages until the connection fails.
func (c *StreamClient) readLoop(ctx context.Context, events chan<- domain.FeedEvent) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	stopPing := make(chan struct{})
	defer close(stopPing)
	c.wg.Add(1)
	go c.pingLoop(conn, stopPing)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ev, err := DecodeMessage(message)
		if err != nil {
			c.logger.Warn("malformed stream message skipped", zap.Error(err), zap.ByteString("message", truncate(message, 512)))
			continue
		}
		if !c.emit(ctx, events, ev) {
			return ctx.Err()
		}
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *StreamClient) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn == conn {
				deadline := time.Now().Add(c.config.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					c.logger.Debug("ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}

// emit delivers ev without dropping it. It returns false once ctx is done.
func (c *StreamClient) emit(ctx context.Context, events chan<- domain.FeedEvent, ev domain.FeedEvent) bool {
	if st, ok := ev.(domain.ConnectionStateEvent); ok {
		observability.SetFeedConnectionState(string(st.State), connectionStates)
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitFinal reports the terminal disconnect if the consumer still has room.
func (c *StreamClient) emitFinal(events chan<- domain.FeedEvent) {
	observability.SetFeedConnectionState(string(domain.ConnectionDisconnected), connectionStates)
	select {
	case events <- domain.ConnectionStateEvent{State: domain.ConnectionDisconnected}:
	default:
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
