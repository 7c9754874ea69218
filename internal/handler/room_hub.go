package handler

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"liveclass-backend/internal/config"
	"liveclass-backend/internal/presence"
	"liveclass-backend/internal/wire"
)

// =============================================================================
// Room Hub - 세션 룸 단위 WebSocket 중계
// =============================================================================

// clientConn is the write surface of one websocket. The indirection exists so
// the relay logic can be driven without a real socket.
type clientConn interface {
	WriteMessage(messageType int, data []byte) error
}

// RoomHub manages all live session rooms and their connections
type RoomHub struct {
	rooms    map[string]*Room
	mu       sync.RWMutex
	cfg      *config.Config
	presence *presence.Manager // Redis 접속 상태 (nil이면 비활성)
	serverID string
}

// Room relays envelopes between the participants of one session code.
// The relay does not interpret payloads beyond what routing needs: chat gets
// an id and goes to everyone including the sender, whiteboard goes to
// everyone except the sender.
type Room struct {
	Code      string
	clients   map[int64]*RoomClient
	broadcast chan *outbound
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	hub       *RoomHub
	isRunning bool
}

// RoomClient represents one connected participant
type RoomClient struct {
	UserID   int64
	Nickname string
	Role     wire.ParticipantRole
	conn     clientConn
	writeMu  sync.Mutex
}

// outbound is one envelope queued for fan-out. excludeUser 0 means nobody is
// excluded.
type outbound struct {
	env         wire.Envelope
	excludeUser int64
}

// NewRoomHub creates a new RoomHub instance
func NewRoomHub(cfg *config.Config, pres *presence.Manager, serverID string) *RoomHub {
	return &RoomHub{
		rooms:    make(map[string]*Room),
		cfg:      cfg,
		presence: pres,
		serverID: serverID,
	}
}

// GetOrCreateRoom gets an existing room or creates a new one
func (h *RoomHub) GetOrCreateRoom(code string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[code]; exists {
		return room
	}

	ctx, cancel := context.WithCancel(context.Background())
	room := &Room{
		Code:      code,
		clients:   make(map[int64]*RoomClient),
		broadcast: make(chan *outbound, h.cfg.Room.BroadcastBufferSize),
		ctx:       ctx,
		cancel:    cancel,
		hub:       h,
	}

	h.rooms[code] = room
	log.Printf("[RoomHub] Created room: %s", code)

	return room
}

// GetRoom returns an existing room, or nil
func (h *RoomHub) GetRoom(code string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[code]
}

// RemoveRoom removes an empty room
func (h *RoomHub) RemoveRoom(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[code]; exists {
		room.Shutdown()
		delete(h.rooms, code)
		log.Printf("[RoomHub] Removed room: %s", code)
	}
}

// BroadcastStatus pushes a lifecycle transition to every client in the room.
// No-op when nobody is connected; late joiners get the status on connect.
func (h *RoomHub) BroadcastStatus(code string, p wire.StatusPayload) {
	room := h.GetRoom(code)
	if room == nil {
		return
	}

	env, err := wire.NewEnvelope(wire.EventStatusChange, "", "system", p)
	if err != nil {
		log.Printf("[RoomHub] Failed to build status envelope: %v", err)
		return
	}
	room.Broadcast(&outbound{env: env})
}

// NotifyLeave marks a participant offline and tells the room, regardless of
// how the leave arrived (socket close, REST leave, or teardown beacon).
func (h *RoomHub) NotifyLeave(code string, userID int64) {
	if h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.presence.SetOffline(ctx, code, userID); err != nil {
			log.Printf("[RoomHub] Failed to mark user %d offline: %v", userID, err)
		}
	}

	room := h.GetRoom(code)
	if room == nil {
		return
	}

	env, err := wire.NewEnvelope(wire.EventLeave, strconv.FormatInt(userID, 10), "", wire.LeavePayload{
		UserID: strconv.FormatInt(userID, 10),
	})
	if err != nil {
		return
	}
	room.Broadcast(&outbound{env: env})
}

// =============================================================================
// Room Methods
// =============================================================================

// AddClient registers a participant connection and announces the join to the
// whole room, the joiner included. Clients deduplicate their own join.
func (r *Room) AddClient(client *RoomClient) {
	r.mu.Lock()
	r.clients[client.UserID] = client

	if !r.isRunning {
		r.isRunning = true
		go r.runBroadcaster()
	}
	total := len(r.clients)
	r.mu.Unlock()

	log.Printf("[Room %s] Added client: %d (%s), total: %d",
		r.Code, client.UserID, client.Nickname, total)

	if r.hub.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.hub.presence.SetOnline(ctx, r.Code, client.UserID, client.Nickname, r.hub.serverID); err != nil {
			log.Printf("[Room %s] Failed to mark user %d online: %v", r.Code, client.UserID, err)
		}
	}

	senderID := strconv.FormatInt(client.UserID, 10)
	env, err := wire.NewEnvelope(wire.EventJoin, senderID, client.Nickname, wire.JoinPayload{
		UserID:      senderID,
		DisplayName: client.Nickname,
		Role:        client.Role,
	})
	if err != nil {
		log.Printf("[Room %s] Failed to build join envelope: %v", r.Code, err)
		return
	}
	r.Broadcast(&outbound{env: env})
}

// RemoveClient unregisters a participant and announces the leave
func (r *Room) RemoveClient(userID int64) {
	r.mu.Lock()
	_, exists := r.clients[userID]
	if exists {
		delete(r.clients, userID)
	}
	remaining := len(r.clients)
	r.mu.Unlock()

	if !exists {
		return
	}

	log.Printf("[Room %s] Removed client: %d, remaining: %d", r.Code, userID, remaining)
	r.hub.NotifyLeave(r.Code, userID)

	if remaining == 0 {
		go r.hub.RemoveRoom(r.Code)
	}
}

// HandleInbound routes one raw frame from a client. Malformed frames and
// event types clients may not originate are dropped with a log line.
func (r *Room) HandleInbound(sender *RoomClient, data []byte) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[Room %s] Dropping malformed frame from %d: %v", r.Code, sender.UserID, err)
		return
	}

	// The relay stamps sender identity; clients cannot spoof it.
	env.SenderID = strconv.FormatInt(sender.UserID, 10)
	env.SenderName = sender.Nickname
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	switch env.Type {
	case wire.EventChat:
		r.relayChat(&env)
	case wire.EventWhiteboard:
		// No echo to the sender: their client already rendered the stroke.
		r.Broadcast(&outbound{env: env, excludeUser: sender.UserID})
	default:
		log.Printf("[Room %s] Dropping client-originated %q from %d", r.Code, env.Type, sender.UserID)
	}
}

// relayChat assigns the dedup id when the sender omitted one, then fans out
// to everyone including the sender. The echo is what gives all participants,
// sender included, the same transcript order.
func (r *Room) relayChat(env *wire.Envelope) {
	p, err := env.DecodeChat()
	if err != nil {
		log.Printf("[Room %s] Dropping bad chat payload: %v", r.Code, err)
		return
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
		raw, err := json.Marshal(p)
		if err != nil {
			return
		}
		env.Payload = raw
	}
	r.Broadcast(&outbound{env: *env})
}

// Broadcast queues an envelope for fan-out, dropping when the buffer is full
func (r *Room) Broadcast(msg *outbound) {
	select {
	case r.broadcast <- msg:
	default:
		log.Printf("[Room %s] Broadcast buffer full, dropping %s event", r.Code, msg.env.Type)
	}
}

// SendTo writes one envelope to a single client, used for the status sync on
// connect.
func (r *Room) SendTo(client *RoomClient, env wire.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Room %s] Failed to marshal envelope: %v", r.Code, err)
		return
	}
	r.writeTo(client, data)
}

// Shutdown gracefully shuts down the room
func (r *Room) Shutdown() {
	r.cancel()
	log.Printf("[Room %s] Shutdown complete", r.Code)
}

// =============================================================================
// Room Goroutines
// =============================================================================

// runBroadcaster fans queued envelopes out to the room and keeps the
// presence TTL keys of connected clients alive.
func (r *Room) runBroadcaster() {
	log.Printf("[Room %s] Broadcaster started", r.Code)
	defer log.Printf("[Room %s] Broadcaster stopped", r.Code)

	interval := r.hub.cfg.Room.PresenceTTL / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-r.broadcast:
			if !ok {
				return
			}
			r.fanOut(msg)
		case <-heartbeat.C:
			r.refreshPresence()
		}
	}
}

// refreshPresence extends the TTL of every connected client's presence key.
// A key that cannot be refreshed is re-created, covering relay restarts.
func (r *Room) refreshPresence() {
	if r.hub.presence == nil {
		return
	}

	r.mu.RLock()
	clients := make([]*RoomClient, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, client := range clients {
		if err := r.hub.presence.Heartbeat(ctx, r.Code, client.UserID); err != nil {
			if err := r.hub.presence.SetOnline(ctx, r.Code, client.UserID, client.Nickname, r.hub.serverID); err != nil {
				log.Printf("[Room %s] Presence refresh failed for %d: %v", r.Code, client.UserID, err)
			}
		}
	}
}

func (r *Room) fanOut(msg *outbound) {
	data, err := json.Marshal(msg.env)
	if err != nil {
		log.Printf("[Room %s] Failed to marshal envelope: %v", r.Code, err)
		return
	}

	r.mu.RLock()
	clients := make([]*RoomClient, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	for _, client := range clients {
		if msg.excludeUser != 0 && client.UserID == msg.excludeUser {
			continue
		}
		r.writeTo(client, data)
	}
}

func (r *Room) writeTo(client *RoomClient, data []byte) {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[Room %s] Failed to send to client %d: %v", r.Code, client.UserID, err)
	}
}

// =============================================================================
// Cleanup
// =============================================================================

// CleanupInactiveRooms removes rooms with no connected clients
func (h *RoomHub) CleanupInactiveRooms() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for code, room := range h.rooms {
		room.mu.RLock()
		isEmpty := len(room.clients) == 0
		room.mu.RUnlock()

		if isEmpty {
			room.Shutdown()
			delete(h.rooms, code)
			log.Printf("[RoomHub] Cleaned up inactive room: %s", code)
		}
	}
}
