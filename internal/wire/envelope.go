package wire

import (
	"encoding/json"
	"time"
)

// Event type tags carried by every envelope. Dispatch is by exhaustive
// switch on this tag; payload shape depends on it.
type EventType string

const (
	EventChat         EventType = "chat"
	EventWhiteboard   EventType = "whiteboard"
	EventJoin         EventType = "join"
	EventLeave        EventType = "leave"
	EventStatusChange EventType = "statusChange"
)

// Envelope is the single message format exchanged over a session room
// connection, in both directions. Payload stays raw until the type switch.
type Envelope struct {
	Type       EventType       `json:"type"`
	SenderID   string          `json:"senderId,omitempty"`
	SenderName string          `json:"senderName,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ChatKind classifies a chat payload.
type ChatKind string

const (
	ChatText   ChatKind = "text"
	ChatFile   ChatKind = "file"
	ChatCode   ChatKind = "code"
	ChatSystem ChatKind = "system"
)

// ChatPayload carries one chat entry. ID is assigned by the relay when the
// sender did not provide one; it is the deduplication identity.
type ChatPayload struct {
	ID       string   `json:"id,omitempty"`
	Kind     ChatKind `json:"kind"`
	Content  string   `json:"content"`
	FileURL  string   `json:"fileUrl,omitempty"`
	FileName string   `json:"fileName,omitempty"`
	Language string   `json:"language,omitempty"`
}

// Point is a whiteboard coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeKind is draw or clear.
type StrokeKind string

const (
	StrokeDraw  StrokeKind = "draw"
	StrokeClear StrokeKind = "clear"
)

// Tool selects the drawing tool for a stroke.
type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
)

// StrokePayload carries one whiteboard operation. Strokes have no identity
// and are never deduplicated; the surface is a replay target.
type StrokePayload struct {
	Kind       StrokeKind `json:"kind"`
	Points     []Point    `json:"points,omitempty"`
	Color      string     `json:"color,omitempty"`
	BrushWidth float64    `json:"brushWidth,omitempty"`
	Tool       Tool       `json:"tool,omitempty"`
}

// ParticipantRole within a room. The room creator is the host; roles are
// fixed for the room's duration.
type ParticipantRole string

const (
	RoleHost     ParticipantRole = "host"
	RoleAttendee ParticipantRole = "attendee"
)

// JoinPayload announces a participant entering the room.
type JoinPayload struct {
	UserID      string          `json:"userId"`
	DisplayName string          `json:"displayName"`
	Role        ParticipantRole `json:"role"`
}

// LeavePayload announces a participant leaving the room.
type LeavePayload struct {
	UserID string `json:"userId"`
}

// RoomStatus is the lifecycle status as seen on the wire.
type RoomStatus string

const (
	StatusWaiting RoomStatus = "waiting"
	StatusActive  RoomStatus = "active"
	StatusEnded   RoomStatus = "ended"
)

// StatusPayload signals a lifecycle transition. StartedAt is set once the
// room is (or was) active so late joiners can seed their elapsed counter.
type StatusPayload struct {
	Status    RoomStatus `json:"status"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	Summary   string     `json:"summary,omitempty"`
}

// DecodeChat decodes the payload of a chat envelope.
func (e *Envelope) DecodeChat() (*ChatPayload, error) {
	var p ChatPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeStroke decodes the payload of a whiteboard envelope.
func (e *Envelope) DecodeStroke() (*StrokePayload, error) {
	var p StrokePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeJoin decodes the payload of a join envelope.
func (e *Envelope) DecodeJoin() (*JoinPayload, error) {
	var p JoinPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeLeave decodes the payload of a leave envelope.
func (e *Envelope) DecodeLeave() (*LeavePayload, error) {
	var p LeavePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeStatus decodes the payload of a statusChange envelope.
func (e *Envelope) DecodeStatus() (*StatusPayload, error) {
	var p StatusPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// NewEnvelope builds an envelope with a marshalled payload and a UTC
// timestamp. The timestamp is informational; ordering is decided by arrival.
func NewEnvelope(t EventType, senderID, senderName string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:       t,
		SenderID:   senderID,
		SenderName: senderName,
		Timestamp:  time.Now().UTC(),
		Payload:    raw,
	}, nil
}
