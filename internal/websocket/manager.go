// Package websocket pushes preview snapshots to connected browsers.
//
// A single hub goroutine owns registration, removal and fan-out, so the
// client map only changes on that goroutine. Broadcasting never blocks the
// caller: the preview policy publishes from inside a controller operation,
// and a slow browser is dropped rather than allowed to stall the session.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/blockfactory/internal/logging"
	"github.com/conneroisu/blockfactory/internal/preview"
)

const (
	sendBuffer     = 64
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxFrameSize   = 64 << 10
	defaultFrames  = 20
	defaultWindow  = time.Second
	broadcastQueue = 256
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRateLimit bounds the frames each client may send per window.
func WithRateLimit(frames int, window time.Duration) Option {
	return func(m *Manager) {
		m.newLimiter = func() RateLimiter {
			return NewSlidingWindowRateLimiter(frames, window)
		}
	}
}

// WithLatest supplies the snapshot sent to a client when it connects or
// asks to sync.
func WithLatest(fn func() (preview.Snapshot, bool)) Option {
	return func(m *Manager) { m.latest = fn }
}

// Manager tracks connected browsers and broadcasts to them.
type Manager struct {
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn

	originValidator OriginValidator
	newLimiter      func() RateLimiter
	latest          func() (preview.Snapshot, bool)
	logger          logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	hubDone      chan struct{}
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
}

// NewManager starts a hub. originValidator is required.
func NewManager(originValidator OriginValidator, opts ...Option) *Manager {
	if originValidator == nil {
		panic("websocket.NewManager: originValidator cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		clients:         make(map[*websocket.Conn]*Client),
		broadcast:       make(chan []byte, broadcastQueue),
		register:        make(chan *Client, 32),
		unregister:      make(chan *websocket.Conn, 32),
		originValidator: originValidator,
		ctx:             ctx,
		cancel:          cancel,
		hubDone:         make(chan struct{}),
	}
	WithRateLimit(defaultFrames, defaultWindow)(m)
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.NewNop()
	}
	m.logger = m.logger.WithComponent("websocket")

	go m.runHub()
	return m
}

// HandleWebSocket upgrades the request and registers the client.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if m.isShutdown.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !m.originValidator.IsAllowedOrigin(origin) {
		m.logger.Warn(r.Context(), nil, "WebSocket connection rejected", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The origin was checked above.
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		m.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxFrameSize)

	client := &Client{
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		remoteAddr:   r.RemoteAddr,
		rateLimiter:  m.newLimiter(),
		lastActivity: time.Now(),
	}
	m.queueLatest(client)

	select {
	case m.register <- client:
	case <-m.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	default:
		_ = conn.Close(websocket.StatusTryAgainLater, "server busy")
		return
	}

	go m.handleClient(client)
}

func (m *Manager) runHub() {
	defer close(m.hubDone)
	for {
		select {
		case client := <-m.register:
			m.registerClient(client)
		case conn := <-m.unregister:
			m.unregisterClient(conn)
		case message := <-m.broadcast:
			m.broadcastToClients(message)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.conn] = client
	total := len(m.clients)
	m.clientsMutex.Unlock()

	m.logger.Debug(m.ctx, "WebSocket client connected", "remote", client.remoteAddr, "clients", total)
}

func (m *Manager) unregisterClient(conn *websocket.Conn) {
	m.clientsMutex.Lock()
	client, exists := m.clients[conn]
	if exists {
		delete(m.clients, conn)
		client.close()
	}
	total := len(m.clients)
	m.clientsMutex.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		m.logger.Debug(m.ctx, "WebSocket client disconnected", "remote", client.remoteAddr, "clients", total)
	}
}

func (m *Manager) broadcastToClients(message []byte) {
	m.clientsMutex.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	m.clientsMutex.RUnlock()

	for _, client := range clients {
		if !client.trySend(message) {
			m.logger.Warn(m.ctx, nil, "WebSocket client too slow, dropping", "remote", client.remoteAddr)
			m.unregisterClient(client.conn)
		}
	}
}

func (m *Manager) handleClient(client *Client) {
	defer func() {
		select {
		case m.unregister <- client.conn:
		case <-m.ctx.Done():
		}
	}()

	go m.writeToClient(client)
	m.readFromClient(client)
}

func (m *Manager) readFromClient(client *Client) {
	for {
		_, data, err := client.conn.Read(m.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && m.ctx.Err() == nil {
				m.logger.Debug(m.ctx, "WebSocket read ended", "remote", client.remoteAddr, "error", err.Error())
			}
			return
		}
		client.touch()

		if !client.rateLimiter.IsAllowed() {
			m.logger.Warn(m.ctx, nil, "WebSocket client exceeded frame rate", "remote", client.remoteAddr)
			_ = client.conn.Close(websocket.StatusPolicyViolation, "rate limit exceeded")
			return
		}

		m.processClientMessage(client, data)
	}
}

func (m *Manager) writeToClient(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(m.ctx, writeTimeout)
			err := client.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				_ = client.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(m.ctx, writeTimeout)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				_ = client.conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}

		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) processClientMessage(client *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		m.sendTo(client, Message{Type: TypeError, Error: "malformed message"})
		return
	}

	switch msg.Type {
	case TypeSync:
		m.queueLatest(client)
	case TypePing:
		m.sendTo(client, Message{Type: TypePing})
	default:
		m.sendTo(client, Message{Type: TypeError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// queueLatest sends the latest snapshot to one client, if there is one.
func (m *Manager) queueLatest(client *Client) {
	if m.latest == nil {
		return
	}
	snap, ok := m.latest()
	if !ok {
		return
	}
	m.sendTo(client, Message{Type: TypeSnapshot, Snapshot: &snap})
}

func (m *Manager) sendTo(client *Client, msg Message) {
	data, err := encode(msg)
	if err != nil {
		m.logger.Error(m.ctx, err, "Failed to encode WebSocket message")
		return
	}
	client.trySend(data)
}

// Broadcast queues msg for every connected client. It never blocks.
func (m *Manager) Broadcast(msg Message) {
	if m.isShutdown.Load() {
		return
	}
	data, err := encode(msg)
	if err != nil {
		m.logger.Error(m.ctx, err, "Failed to encode broadcast message")
		return
	}

	select {
	case m.broadcast <- data:
	default:
		m.logger.Warn(m.ctx, nil, "Broadcast queue full, dropping message", "type", msg.Type)
	}
}

// BroadcastSnapshot publishes a preview snapshot. Its signature matches
// preview.Policy.Subscribe.
func (m *Manager) BroadcastSnapshot(s preview.Snapshot) {
	m.Broadcast(Message{Type: TypeSnapshot, Snapshot: &s})
}

// BroadcastError tells every client that a reload failed.
func (m *Manager) BroadcastError(err error) {
	m.Broadcast(Message{Type: TypeError, Error: err.Error()})
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// Shutdown stops the hub and closes every connection.
func (m *Manager) Shutdown(ctx context.Context) error {
	var err error
	m.shutdownOnce.Do(func() {
		m.isShutdown.Store(true)
		m.cancel()

		select {
		case <-m.hubDone:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}

		m.clientsMutex.Lock()
		for conn, client := range m.clients {
			client.close()
			_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
		m.clients = make(map[*websocket.Conn]*Client)
		m.clientsMutex.Unlock()
	})
	return err
}

// IsShutdown reports whether Shutdown has been called.
func (m *Manager) IsShutdown() bool {
	return m.isShutdown.Load()
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}
