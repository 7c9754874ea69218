package roomsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"liveclass-backend/internal/wire"
)

// fakeConn is an in-memory Connection for driving a Room without a network.
type fakeConn struct {
	mu        sync.Mutex
	events    chan wire.Envelope
	sent      []wire.Envelope
	connected bool
	beacons   int
	closed    bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan wire.Envelope, 64)}
}

func (f *fakeConn) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeConn) Events() <-chan wire.Envelope { return f.events }

func (f *fakeConn) Send(env wire.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) OnStateChange(func(bool)) {}

func (f *fakeConn) LeaveBeacon() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beacons++
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.connected = false
	return nil
}

func (f *fakeConn) setConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakeConn) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeConn) lastSent(t *testing.T) wire.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

// fakeDirectory serves a canned snapshot.
type fakeDirectory struct {
	snap *SessionSnapshot
}

func (d *fakeDirectory) FetchSnapshot(context.Context, string) (*SessionSnapshot, error) {
	return d.snap, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func openTestRoom(t *testing.T, conn *fakeConn, dir SessionDirectory) *Room {
	t.Helper()
	room := NewRoom(RoomConfig{
		Code:        "room-1",
		UserID:      "u1",
		DisplayName: "alice",
		Role:        wire.RoleAttendee,
		Surface:     &recordingSurface{},
	}, conn, dir)
	if err := room.Open(context.Background()); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { room.Leave() })
	return room
}

func TestRoom_OwnChatAppearsOnEcho(t *testing.T) {
	conn := newFakeConn()
	room := openTestRoom(t, conn, nil)

	if err := room.SendChat("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// No optimistic insert: transcript stays empty until the echo arrives.
	if len(room.Transcript()) != 0 {
		t.Fatal("send must not insert into the transcript directly")
	}

	conn.events <- conn.lastSent(t)
	waitFor(t, func() bool { return len(room.Transcript()) == 1 })

	entry := room.Transcript()[0]
	if entry.Content != "hello" || entry.SenderName != "alice" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestRoom_RedeliveredChatAppearsOnce(t *testing.T) {
	conn := newFakeConn()
	room := openTestRoom(t, conn, nil)

	env, _ := wire.NewEnvelope(wire.EventChat, "u2", "bob", wire.ChatPayload{
		ID: "m1", Kind: wire.ChatText, Content: "hi",
	})
	conn.events <- env
	conn.events <- env
	other, _ := wire.NewEnvelope(wire.EventChat, "u2", "bob", wire.ChatPayload{
		ID: "m2", Kind: wire.ChatText, Content: "again",
	})
	conn.events <- other

	waitFor(t, func() bool { return len(room.Transcript()) == 2 })
	entries := room.Transcript()
	if entries[0].Content != "hi" || entries[1].Content != "again" {
		t.Errorf("unexpected transcript: %+v", entries)
	}
}

func TestRoom_SendWhileDisconnected(t *testing.T) {
	conn := newFakeConn()
	room := openTestRoom(t, conn, nil)

	conn.setConnected(false)
	if err := room.SendChat("lost"); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if len(room.Transcript()) != 0 {
		t.Error("a failed send must not appear in the transcript")
	}
}

func TestRoom_SelfJoinNotAnnounced(t *testing.T) {
	conn := newFakeConn()
	room := openTestRoom(t, conn, nil)

	self, _ := wire.NewEnvelope(wire.EventJoin, "u1", "alice", wire.JoinPayload{
		UserID: "u1", DisplayName: "alice", Role: wire.RoleAttendee,
	})
	other, _ := wire.NewEnvelope(wire.EventJoin, "u2", "bob", wire.JoinPayload{
		UserID: "u2", DisplayName: "bob", Role: wire.RoleAttendee,
	})
	conn.events <- self
	conn.events <- other

	waitFor(t, func() bool { return len(room.Roster()) == 2 })
	waitFor(t, func() bool { return len(room.Transcript()) == 1 })

	entries := room.Transcript()
	if entries[0].Kind != wire.ChatSystem || entries[0].Content != "bob joined the session" {
		t.Errorf("expected a bob join line, got %+v", entries)
	}
}

func TestRoom_JoinAnnouncementDebounced(t *testing.T) {
	conn := newFakeConn()
	room := openTestRoom(t, conn, nil)

	for i := 0; i < 3; i++ {
		env, _ := wire.NewEnvelope(wire.EventJoin, "u2", "bob", wire.JoinPayload{
			UserID: "u2", DisplayName: "bob", Role: wire.RoleAttendee,
		})
		conn.events <- env
	}

	waitFor(t, func() bool { return len(room.Roster()) == 2 })
	// Give the loop a moment to process the remaining joins.
	time.Sleep(50 * time.Millisecond)

	if got := len(room.Transcript()); got != 1 {
		t.Errorf("reconnect storm should produce one join line, got %d", got)
	}
}

func TestRoom_LeaveFlipsOffline(t *testing.T) {
	conn := newFakeConn()
	room := openTestRoom(t, conn, nil)

	join, _ := wire.NewEnvelope(wire.EventJoin, "u2", "bob", wire.JoinPayload{
		UserID: "u2", DisplayName: "bob", Role: wire.RoleAttendee,
	})
	leave, _ := wire.NewEnvelope(wire.EventLeave, "u2", "bob", wire.LeavePayload{UserID: "u2"})
	conn.events <- join
	conn.events <- leave

	waitFor(t, func() bool {
		for _, p := range room.Roster() {
			if p.ID == "u2" && !p.IsOnline {
				return true
			}
		}
		return false
	})

	if len(room.Roster()) != 2 {
		t.Error("leave must not remove the participant from the roster")
	}
}

func TestRoom_StatusTransitions(t *testing.T) {
	conn := newFakeConn()
	room := openTestRoom(t, conn, nil)

	var mu sync.Mutex
	var statuses []wire.RoomStatus
	room.OnStatusChange(func(s wire.RoomStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	start := time.Now().UTC()
	active, _ := wire.NewEnvelope(wire.EventStatusChange, "", "system", wire.StatusPayload{
		Status: wire.StatusActive, StartedAt: &start,
	})
	ended, _ := wire.NewEnvelope(wire.EventStatusChange, "", "system", wire.StatusPayload{
		Status: wire.StatusEnded,
	})
	conn.events <- active
	conn.events <- ended

	waitFor(t, func() bool { return room.Status() == wire.StatusEnded })

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 2 || statuses[0] != wire.StatusActive || statuses[1] != wire.StatusEnded {
		t.Errorf("unexpected transitions: %v", statuses)
	}
}

func TestRoom_SnapshotSeedsRoster(t *testing.T) {
	conn := newFakeConn()
	dir := &fakeDirectory{snap: &SessionSnapshot{
		Status: wire.StatusWaiting,
		Participants: []Participant{
			{ID: "u1", DisplayName: "alice", IsOnline: false},
			{ID: "u3", DisplayName: "carol", IsOnline: true},
		},
	}}
	room := openTestRoom(t, conn, dir)

	waitFor(t, func() bool { return len(room.Roster()) == 2 })

	// The local participant was marked online synchronously at entry; the
	// stale snapshot must not downgrade that.
	self, ok := room.Roster()[0], false
	for _, p := range room.Roster() {
		if p.ID == "u1" {
			self, ok = p, true
		}
	}
	if !ok || !self.IsOnline {
		t.Errorf("self must stay online after snapshot, got %+v", self)
	}
}

func TestRoom_UnknownEventIgnored(t *testing.T) {
	conn := newFakeConn()
	room := openTestRoom(t, conn, nil)

	unknown := wire.Envelope{Type: "reaction", Timestamp: time.Now()}
	conn.events <- unknown

	known, _ := wire.NewEnvelope(wire.EventChat, "u2", "bob", wire.ChatPayload{
		ID: "m1", Kind: wire.ChatText, Content: "still alive",
	})
	conn.events <- known

	waitFor(t, func() bool { return len(room.Transcript()) == 1 })
}

func TestRoom_LeaveFiresBeaconAndCloses(t *testing.T) {
	conn := newFakeConn()
	room := openTestRoom(t, conn, nil)

	if err := room.Leave(); err != nil {
		t.Fatalf("leave failed: %v", err)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.beacons != 1 {
		t.Errorf("expected 1 beacon, got %d", conn.beacons)
	}
	if !conn.closed {
		t.Error("connection should be closed after leave")
	}
}

func TestRoom_WhiteboardNotEchoedLocally(t *testing.T) {
	conn := newFakeConn()
	surface := &recordingSurface{}
	room := NewRoom(RoomConfig{
		Code:        "room-1",
		UserID:      "u1",
		DisplayName: "alice",
		Role:        wire.RoleAttendee,
		Surface:     surface,
	}, conn, nil)
	if err := room.Open(context.Background()); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer room.Leave()

	err := room.DrawStroke(wire.Point{X: 0, Y: 0}, wire.Point{X: 1, Y: 1},
		StrokeStyle{Color: "#000000", Width: 2, Tool: wire.ToolPen})
	if err != nil {
		t.Fatalf("draw failed: %v", err)
	}

	if conn.sentCount() != 1 {
		t.Fatalf("expected 1 outbound stroke, got %d", conn.sentCount())
	}
	if len(surface.strokes) != 1 {
		t.Errorf("local render should happen exactly once, got %d", len(surface.strokes))
	}

	// A remote stroke renders on arrival.
	remote, _ := wire.NewEnvelope(wire.EventWhiteboard, "u2", "bob", wire.StrokePayload{
		Kind:   wire.StrokeDraw,
		Points: []wire.Point{{X: 2, Y: 2}, {X: 3, Y: 3}},
	})
	conn.events <- remote
	waitFor(t, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		return len(surface.strokes) == 2
	})
}
