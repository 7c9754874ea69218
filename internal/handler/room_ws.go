package handler

import (
	"log"

	"github.com/gofiber/contrib/websocket"

	"liveclass-backend/internal/model"
	"liveclass-backend/internal/wire"
)

// RoomWSHandler 세션 룸 WebSocket 핸들러
type RoomWSHandler struct {
	hub      *RoomHub
	sessions *SessionHandler
}

// NewRoomWSHandler RoomWSHandler 생성
func NewRoomWSHandler(hub *RoomHub, sessions *SessionHandler) *RoomWSHandler {
	return &RoomWSHandler{hub: hub, sessions: sessions}
}

// HandleWebSocket runs the read loop for one room connection. Identity and
// membership were verified by the upgrade middleware; this only wires the
// socket into the hub.
func (h *RoomWSHandler) HandleWebSocket(c *websocket.Conn) {
	code, ok1 := c.Locals("sessionCode").(string)
	userID, ok2 := c.Locals("userId").(int64)
	nickname, ok3 := c.Locals("nickname").(string)
	role, ok4 := c.Locals("role").(wire.ParticipantRole)

	if !ok1 || !ok2 || !ok3 || !ok4 {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"invalid session"}`))
		c.Close()
		return
	}

	room := h.hub.GetOrCreateRoom(code)

	client := &RoomClient{
		UserID:   userID,
		Nickname: nickname,
		Role:     role,
		conn:     c,
	}

	room.AddClient(client)
	log.Printf("[RoomWS] Client connected: session=%s, user=%d", code, userID)

	// Sync the current lifecycle state to the new connection so a joiner of
	// an already-active session starts their timer at the right offset.
	h.sendStatusSync(room, client, code)

	defer func() {
		room.RemoveClient(userID)
		c.Close()
		log.Printf("[RoomWS] Client disconnected: session=%s, user=%d", code, userID)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		room.HandleInbound(client, data)
	}
}

// sendStatusSync sends the room's persisted lifecycle status to one client
func (h *RoomWSHandler) sendStatusSync(room *Room, client *RoomClient, code string) {
	session, err := h.sessions.findByCode(code)
	if err != nil {
		log.Printf("[RoomWS] Status sync lookup failed for %s: %v", code, err)
		return
	}

	payload := wire.StatusPayload{
		Status:    statusToWire(session.Status),
		StartedAt: session.StartedAt,
	}
	if session.Summary != nil {
		payload.Summary = *session.Summary
	}

	env, err := wire.NewEnvelope(wire.EventStatusChange, "", "system", payload)
	if err != nil {
		return
	}
	room.SendTo(client, env)
}

// statusToWire maps the persisted session status onto the wire vocabulary
func statusToWire(status string) wire.RoomStatus {
	switch status {
	case string(model.SessionStatusInProgress):
		return wire.StatusActive
	case string(model.SessionStatusEnded):
		return wire.StatusEnded
	default:
		return wire.StatusWaiting
	}
}

// RoleToWire maps the persisted participant role onto the wire vocabulary
func RoleToWire(role string) wire.ParticipantRole {
	if role == string(model.RoleHost) {
		return wire.RoleHost
	}
	return wire.RoleAttendee
}
