package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// Client talks to the daemon control socket. Safe for concurrent use;
// responses are correlated to requests by ID.
type Client struct {
	mu         sync.RWMutex
	conn       net.Conn
	socketPath string

	connected    atomic.Bool
	reconnecting atomic.Bool

	pending   map[uint32]chan *Message
	pendingMu sync.Mutex
	nextReqID atomic.Uint32

	autoReconnect bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	config ClientConfig
}

// ClientConfig configures the client.
type ClientConfig struct {
	SocketPath     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	AutoReconnect  bool
}

// DefaultClientConfig returns sensible defaults for a socket under dataDir.
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
		AutoReconnect:  true,
	}
}

// NewClient creates a client; call Connect before issuing requests.
func NewClient(cfg ClientConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		socketPath:    cfg.SocketPath,
		pending:       make(map[uint32]chan *Message),
		autoReconnect: cfg.AutoReconnect,
		ctx:           ctx,
		cancel:        cancel,
		config:        cfg,
	}
}

// Connect establishes the connection to the daemon.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return nil
	}

	conn, err := dial(c.socketPath, c.config.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.conn = conn
	c.connected.Store(true)

	c.wg.Add(1)
	go c.readLoop()

	return nil
}

// Close shuts the client down.
func (c *Client) Close() error {
	c.cancel()
	c.close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}

	return nil
}

// close tears the connection down without signaling shutdown.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected.Store(false)

	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *Message)
	c.pendingMu.Unlock()
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// request sends a request and waits for the correlated response.
func (c *Client) request(msgType MessageType, payload any) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	reqID := c.nextReqID.Add(1)
	msg := NewMessage(msgType, reqID, data)

	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := msg.Write(conn); err != nil {
		c.close()
		return nil, fmt.Errorf("write message: %w", err)
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		if resp.Header.Type == MsgError {
			var errResp ErrorResponse
			Decode(resp.Payload, &errResp)
			return nil, fmt.Errorf("daemon error: %s", errResp.Message)
		}
		return resp, nil
	case <-time.After(c.config.RequestTimeout):
		return nil, ErrTimeout
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// readLoop reads messages and dispatches them to waiting requests.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			if c.autoReconnect {
				if !c.tryReconnect() {
					return
				}
				continue
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		msg, err := ReadMessage(conn)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}

			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.sendPing(conn)
				continue
			}

			c.close()
			if c.autoReconnect {
				if !c.tryReconnect() {
					return
				}
				continue
			}
			return
		}

		c.handleMessage(msg, conn)
	}
}

func (c *Client) handleMessage(msg *Message, conn net.Conn) {
	if msg.Header.Type == MsgPing {
		pong := NewMessage(MsgPong, msg.Header.RequestID, nil)
		pong.Write(conn)
		return
	}

	// Everything else, pongs included, answers a pending request matched
	// by ID. Pongs for keep-alive pings have no waiter and fall through.
	c.pendingMu.Lock()
	if ch, ok := c.pending[msg.Header.RequestID]; ok {
		select {
		case ch <- msg:
		default:
		}
	}
	c.pendingMu.Unlock()
}

func (c *Client) sendPing(conn net.Conn) {
	msg := NewMessage(MsgPing, c.nextReqID.Add(1), nil)
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	msg.Write(conn)
}

// tryReconnect dials with exponential backoff until connected or the
// client is closed. Returns false when the read loop should exit.
func (c *Client) tryReconnect() bool {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return false
	}
	defer c.reconnecting.Store(false)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		if c.ctx.Err() != nil {
			return backoff.Permanent(c.ctx.Err())
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.connected.Load() {
			return nil
		}
		conn, err := dial(c.socketPath, c.config.ConnectTimeout)
		if err != nil {
			return err
		}
		c.conn = conn
		c.connected.Store(true)
		return nil
	}, backoff.WithContext(policy, c.ctx))

	return err == nil
}

// High-level API

// Ping checks if the daemon is responsive.
func (c *Client) Ping() error {
	resp, err := c.request(MsgPing, nil)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected response: %d", resp.Header.Type)
	}
	return nil
}

// Status requests the daemon status snapshot.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.request(MsgStatus, nil)
	if err != nil {
		return nil, err
	}

	var status StatusResponse
	if err := Decode(resp.Payload, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Enable turns detection on.
func (c *Client) Enable() (*Ack, error) {
	return c.ack(MsgEnable, nil)
}

// Disable turns detection off. Events keep flowing but are discarded.
func (c *Client) Disable() (*Ack, error) {
	return c.ack(MsgDisable, nil)
}

// UpdateConfig applies a partial detection-parameter update.
func (c *Client) UpdateConfig(req *UpdateConfigRequest) (*Ack, error) {
	return c.ack(MsgUpdateConfig, req)
}

// Reload asks the daemon to re-read its config file.
func (c *Client) Reload() (*Ack, error) {
	return c.ack(MsgReload, nil)
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown() (*Ack, error) {
	return c.ack(MsgShutdown, nil)
}

// GetConfig fetches the active detection snapshot.
func (c *Client) GetConfig() (*ConfigResponse, error) {
	resp, err := c.request(MsgGetConfig, nil)
	if err != nil {
		return nil, err
	}

	var cfg ConfigResponse
	if err := Decode(resp.Payload, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// History fetches recent incidents, newest first.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	resp, err := c.request(MsgHistory, &HistoryRequest{Limit: limit})
	if err != nil {
		return nil, err
	}

	var history HistoryResponse
	if err := Decode(resp.Payload, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

func (c *Client) ack(msgType MessageType, payload any) (*Ack, error) {
	resp, err := c.request(msgType, payload)
	if err != nil {
		return nil, err
	}

	var ack Ack
	if err := Decode(resp.Payload, &ack); err != nil {
		return nil, err
	}
	if !ack.Success {
		return &ack, fmt.Errorf("request rejected: %s", ack.Error)
	}
	return &ack, nil
}
