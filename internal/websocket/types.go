package websocket

import (
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/blockfactory/internal/preview"
)

// Message types sent to the browser.
const (
	TypeSnapshot = "snapshot"
	TypeReload   = "reload"
	TypeError    = "error"
)

// Message types a browser may send.
const (
	// TypeSync asks for the latest snapshot again.
	TypeSync = "sync"
	TypePing = "ping"
)

// Message is the envelope of every frame in either direction.
type Message struct {
	Type      string            `json:"type"`
	Snapshot  *preview.Snapshot `json:"snapshot,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Client is one connected browser.
type Client struct {
	conn        *websocket.Conn
	send        chan []byte
	remoteAddr  string
	rateLimiter RateLimiter

	mu           sync.Mutex
	lastActivity time.Time
	closed       bool
}

// trySend queues data unless the buffer is full or the client is gone.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity reports when the client last sent a frame.
func (c *Client) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// OriginValidator decides whether a browser origin may connect.
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// RateLimiter limits the frames one client may send.
type RateLimiter interface {
	IsAllowed() bool
	Reset()
}
