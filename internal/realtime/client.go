package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type ClientConfig struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageBytes int64
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 16 << 10
	}
	return c
}

// Client is one websocket connection. All writes go through a buffered queue drained by a
// single writer goroutine, so frames reach the peer in the order they were queued.
type Client struct {
	id   string
	conn *websocket.Conn
	cfg  ClientConfig

	send      chan Envelope
	done      chan struct{}
	closeOnce sync.Once

	hookMu sync.Mutex
	hook   func(Envelope)
}

func NewClient(conn *websocket.Conn, cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		cfg:  cfg,
		send: make(chan Envelope, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// SetSendHook replaces the websocket writer (used in tests).
func (c *Client) SetSendHook(fn func(Envelope)) {
	c.hookMu.Lock()
	c.hook = fn
	c.hookMu.Unlock()
}

// Send queues env. A peer that lets its queue fill up is too slow to keep and is closed.
func (c *Client) Send(env Envelope) bool {
	if c.deliverHook(env) {
		return true
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		c.Close()
		return false
	}
}

// TrySend queues env or drops it when the queue is full. Used for typing hints.
func (c *Client) TrySend(env Envelope) bool {
	if c.deliverHook(env) {
		return true
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) deliverHook(env Envelope) bool {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	if c.hook == nil {
		return false
	}
	c.hook(env)
	return true
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
