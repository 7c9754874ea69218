package roomsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"liveclass-backend/internal/wire"
)

// Connection is the transport seam between a room and the network. The room
// only ever reads events from it or calls Send; it never touches the socket.
type Connection interface {
	Connect(ctx context.Context) error
	Events() <-chan wire.Envelope
	Send(env wire.Envelope) error
	IsConnected() bool
	OnStateChange(fn func(connected bool))
	// LeaveBeacon fires the best-effort leave notification through a
	// mechanism that survives connection teardown.
	LeaveBeacon()
	Close() error
}

// ConnConfig describes one room connection.
type ConnConfig struct {
	// ServerURL is the relay base URL, e.g. "http://localhost:8080".
	ServerURL   string
	Token       string
	RoomCode    string
	UserID      string
	DisplayName string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
}

// ConnManager owns the lifecycle of one persistent room connection: it
// dials, reads, reconnects after abnormal closure, and reports connectivity.
// One instance per room entry, torn down on exit. It is never a process-wide
// singleton, so multiple rooms (and tests) do not interfere.
//
// Reconnection gives no replay guarantee: events broadcast during an outage
// are gone for this client.
type ConnManager struct {
	cfg    ConnConfig
	dialer *websocket.Dialer

	mu        sync.RWMutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	connected bool
	closed    bool

	events   chan wire.Envelope
	stateFns []func(bool)
	done     chan struct{}

	// beacon client is independent of the websocket so the leave
	// notification still goes out after the socket is gone.
	beacon *http.Client
}

// NewConnManager creates a manager for one room. Connect must be called
// before Send.
func NewConnManager(cfg ConnConfig) *ConnManager {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReconnectMin == 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 30 * time.Second
	}

	return &ConnManager{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		events: make(chan wire.Envelope, 256),
		done:   make(chan struct{}),
		beacon: &http.Client{Timeout: 3 * time.Second},
	}
}

// Connect establishes the room connection and starts the read pump.
func (m *ConnManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrRoomClosed
	}
	if m.connected {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to room %s: %w", m.cfg.RoomCode, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.connected = true
	m.mu.Unlock()
	m.notifyState(true)

	go m.readPump(conn)
	return nil
}

// dial opens one websocket to the relay's room endpoint.
func (m *ConnManager) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(m.cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/rooms/" + m.cfg.RoomCode
	q := u.Query()
	q.Set("token", m.cfg.Token)
	u.RawQuery = q.Encode()

	conn, _, err := m.dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// readPump reads envelopes until the connection drops, then hands off to the
// reconnect loop. Malformed frames are skipped; they must not kill delivery
// of subsequent events.
func (m *ConnManager) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("[Conn %s] Dropping malformed frame: %v", m.cfg.RoomCode, err)
			continue
		}

		select {
		case m.events <- env:
		case <-m.done:
			return
		}
	}

	m.mu.Lock()
	m.connected = false
	alreadyClosed := m.closed
	m.mu.Unlock()
	m.notifyState(false)

	if !alreadyClosed {
		m.reconnectLoop()
	}
}

// reconnectLoop re-dials with exponential backoff until it succeeds or the
// manager is closed.
func (m *ConnManager) reconnectLoop() {
	backoff := m.cfg.ReconnectMin

	for {
		select {
		case <-m.done:
			return
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
		conn, err := m.dial(ctx)
		cancel()
		if err != nil {
			log.Printf("[Conn %s] Reconnect failed: %v (retrying in %s)", m.cfg.RoomCode, err, backoff)
			backoff *= 2
			if backoff > m.cfg.ReconnectMax {
				backoff = m.cfg.ReconnectMax
			}
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.connected = true
		m.mu.Unlock()
		m.notifyState(true)

		log.Printf("[Conn %s] Reconnected", m.cfg.RoomCode)
		go m.readPump(conn)
		return
	}
}

// Events returns the inbound event stream. There is exactly one consumer:
// the room dispatch loop.
func (m *ConnManager) Events() <-chan wire.Envelope {
	return m.events
}

// Send writes one envelope, best effort. While disconnected it fails loudly
// with ErrNotConnected instead of queueing, so the caller can tell the user.
func (m *ConnManager) Send(env wire.Envelope) error {
	m.mu.RLock()
	conn := m.conn
	connected := m.connected
	m.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("send on room %s: %w", m.cfg.RoomCode, err)
	}
	return nil
}

// IsConnected reports current connectivity. It stays accurate across stuck
// sends and reconnects so callers can decide when to retry.
func (m *ConnManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// OnStateChange registers a connectivity listener. Listeners run on the
// pump goroutine and must not block.
func (m *ConnManager) OnStateChange(fn func(bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateFns = append(m.stateFns, fn)
}

func (m *ConnManager) notifyState(connected bool) {
	m.mu.RLock()
	fns := make([]func(bool), len(m.stateFns))
	copy(fns, m.stateFns)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(connected)
	}
}

// LeaveBeacon posts the leave notification over plain HTTP with a short
// timeout. It does not depend on the websocket or the dispatch loop still
// running, which is what page-teardown delivery needs.
func (m *ConnManager) LeaveBeacon() {
	base := strings.TrimRight(m.cfg.ServerURL, "/")
	u := fmt.Sprintf("%s/api/sessions/%s/leave-beacon?token=%s",
		base, m.cfg.RoomCode, url.QueryEscape(m.cfg.Token))

	resp, err := m.beacon.Post(u, "application/json", nil)
	if err != nil {
		log.Printf("[Conn %s] Leave beacon failed: %v", m.cfg.RoomCode, err)
		return
	}
	resp.Body.Close()
}

// Close tears the connection down for good and stops reconnection.
func (m *ConnManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.connected = false
	conn := m.conn
	m.mu.Unlock()

	close(m.done)
	if conn != nil {
		return conn.Close()
	}
	return nil
}
