package roomsync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveclass-backend/internal/wire"
)

// SessionSnapshot is the one-shot room state fetched on entry: the current
// lifecycle status and the known roster. Live events layer on top of it.
type SessionSnapshot struct {
	Status       wire.RoomStatus
	StartedAt    *time.Time
	Participants []Participant
}

// SessionDirectory answers roster/status snapshot queries for a room.
type SessionDirectory interface {
	FetchSnapshot(ctx context.Context, code string) (*SessionSnapshot, error)
}

// RoomConfig describes the local participant's view of one room.
type RoomConfig struct {
	Code        string
	UserID      string
	DisplayName string
	Role        wire.ParticipantRole

	// Surface receives whiteboard rendering. Optional; nil disables the
	// whiteboard panel.
	Surface Surface

	// JoinDebounce suppresses repeated "X joined" lines for the same
	// display name within the window.
	JoinDebounce time.Duration
}

// Room is the client-side state of one live session: the transcript, the
// whiteboard, the roster and the lifecycle, all driven by a single dispatch
// goroutine reading the deduplicated inbound stream.
//
// All mutation happens on the dispatch goroutine; the public accessors take
// the room lock and return copies, so they are safe to call from anywhere.
type Room struct {
	cfg  RoomConfig
	conn Connection
	dir  SessionDirectory

	mu         sync.Mutex
	admitter   *Admitter
	transcript *TranscriptStore
	board      *Whiteboard
	tracker    *Tracker
	lifecycle  *Lifecycle

	snapshots chan *SessionSnapshot
	done      chan struct{}
	closeOnce sync.Once

	onStatus  func(wire.RoomStatus)
	onElapsed func(seconds int)
}

// NewRoom assembles a room over the given connection and directory.
func NewRoom(cfg RoomConfig, conn Connection, dir SessionDirectory) *Room {
	if cfg.JoinDebounce == 0 {
		cfg.JoinDebounce = 5 * time.Second
	}

	r := &Room{
		cfg:        cfg,
		conn:       conn,
		dir:        dir,
		admitter:   NewAdmitter(),
		transcript: NewTranscriptStore(),
		tracker:    NewTracker(cfg.JoinDebounce),
		lifecycle:  NewLifecycle(),
		snapshots:  make(chan *SessionSnapshot, 1),
		done:       make(chan struct{}),
	}
	if cfg.Surface != nil {
		r.board = NewWhiteboard(cfg.Surface, r.sendStroke)
	}
	return r
}

// Open connects to the room and starts the dispatch loop. The local
// participant appears in the roster immediately, before any network round
// trip completes; the roster snapshot is fetched in the background so entry
// is never blocked on it.
func (r *Room) Open(ctx context.Context) error {
	if err := r.conn.Connect(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.tracker.Upsert(Participant{
		ID:          r.cfg.UserID,
		DisplayName: r.cfg.DisplayName,
		Role:        r.cfg.Role,
		IsOnline:    true,
	})
	r.mu.Unlock()

	if r.dir != nil {
		go r.fetchSnapshot(ctx)
	}
	go r.run()
	return nil
}

// fetchSnapshot performs the background roster/status fetch. Failure is
// logged and tolerated: live events alone still converge the roster.
func (r *Room) fetchSnapshot(ctx context.Context) {
	snap, err := r.dir.FetchSnapshot(ctx, r.cfg.Code)
	if err != nil {
		log.Printf("[Room %s] Snapshot fetch failed: %v", r.cfg.Code, err)
		return
	}
	select {
	case r.snapshots <- snap:
	case <-r.done:
	}
}

// run is the dispatch loop: the single goroutine that mutates room state.
func (r *Room) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return

		case env, ok := <-r.conn.Events():
			if !ok {
				return
			}
			r.handleEnvelope(env)

		case snap := <-r.snapshots:
			r.applySnapshot(snap)

		case <-ticker.C:
			r.tick()
		}
	}
}

// handleEnvelope admits one inbound event and folds it into the matching
// component. Unknown event types are dropped with a log line so a newer
// relay does not kill older clients.
func (r *Room) handleEnvelope(env wire.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	admitted, ok := r.admitter.Admit(env)
	if !ok {
		return
	}

	switch env.Type {
	case wire.EventChat:
		p, err := env.DecodeChat()
		if err != nil {
			log.Printf("[Room %s] Bad chat payload: %v", r.cfg.Code, err)
			return
		}
		r.transcript.Append(ChatEntry{
			ID:         p.ID,
			SenderID:   env.SenderID,
			SenderName: env.SenderName,
			Content:    p.Content,
			Timestamp:  env.Timestamp,
			Kind:       p.Kind,
			FileURL:    p.FileURL,
			FileName:   p.FileName,
			Language:   p.Language,
			Seq:        admitted.Seq,
		})

	case wire.EventWhiteboard:
		if r.board == nil {
			return
		}
		p, err := env.DecodeStroke()
		if err != nil {
			log.Printf("[Room %s] Bad stroke payload: %v", r.cfg.Code, err)
			return
		}
		r.board.ApplyRemote(*p)

	case wire.EventJoin:
		p, err := env.DecodeJoin()
		if err != nil {
			log.Printf("[Room %s] Bad join payload: %v", r.cfg.Code, err)
			return
		}
		r.tracker.Upsert(Participant{
			ID:          p.UserID,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			IsOnline:    true,
		})
		// Our own join comes back from the relay like everyone else's;
		// announcing ourselves would read as noise.
		if p.UserID != r.cfg.UserID && r.tracker.ShouldAnnounceJoin(p.DisplayName) {
			r.transcript.Append(ChatEntry{
				SenderName: "system",
				Content:    fmt.Sprintf("%s joined the session", p.DisplayName),
				Timestamp:  env.Timestamp,
				Kind:       wire.ChatSystem,
				Seq:        admitted.Seq,
			})
		}

	case wire.EventLeave:
		p, err := env.DecodeLeave()
		if err != nil {
			log.Printf("[Room %s] Bad leave payload: %v", r.cfg.Code, err)
			return
		}
		r.tracker.SetOffline(p.UserID)

	case wire.EventStatusChange:
		p, err := env.DecodeStatus()
		if err != nil {
			log.Printf("[Room %s] Bad status payload: %v", r.cfg.Code, err)
			return
		}
		if r.lifecycle.Apply(*p) {
			status := r.lifecycle.Status()
			elapsed := r.lifecycle.ElapsedSeconds()
			if r.onStatus != nil {
				r.onStatus(status)
			}
			if r.onElapsed != nil {
				r.onElapsed(elapsed)
			}
		}

	default:
		log.Printf("[Room %s] Dropping unknown event type %q", r.cfg.Code, env.Type)
	}
}

// applySnapshot layers the fetched roster and status under live state.
func (r *Room) applySnapshot(snap *SessionSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Seed(snap.Participants)

	changed := r.lifecycle.Apply(wire.StatusPayload{
		Status:    snap.Status,
		StartedAt: snap.StartedAt,
	})
	if changed && r.onStatus != nil {
		r.onStatus(r.lifecycle.Status())
	}
}

// tick emits the running elapsed counter while the session is active.
func (r *Room) tick() {
	r.mu.Lock()
	active := r.lifecycle.Status() == wire.StatusActive
	elapsed := r.lifecycle.ElapsedSeconds()
	fn := r.onElapsed
	r.mu.Unlock()

	if active && fn != nil {
		fn(elapsed)
	}
}

// SendChat sends a text message. There is no optimistic local insert: the
// entry appears in the transcript when the relay's copy arrives, same as for
// every other participant. The id is assigned here so redelivery deduplicates.
func (r *Room) SendChat(content string) error {
	return r.sendChatPayload(wire.ChatPayload{
		ID:      uuid.NewString(),
		Kind:    wire.ChatText,
		Content: content,
	})
}

// SendFileShare announces a shared file. The transcript entry and the
// files-index entry both materialize on delivery.
func (r *Room) SendFileShare(fileURL, fileName string) error {
	return r.sendChatPayload(wire.ChatPayload{
		ID:       uuid.NewString(),
		Kind:     wire.ChatFile,
		Content:  fileName,
		FileURL:  fileURL,
		FileName: fileName,
	})
}

// SendCodeShare sends a code snippet with its language tag.
func (r *Room) SendCodeShare(content, language string) error {
	return r.sendChatPayload(wire.ChatPayload{
		ID:       uuid.NewString(),
		Kind:     wire.ChatCode,
		Content:  content,
		Language: language,
	})
}

func (r *Room) sendChatPayload(p wire.ChatPayload) error {
	env, err := wire.NewEnvelope(wire.EventChat, r.cfg.UserID, r.cfg.DisplayName, p)
	if err != nil {
		return err
	}
	return r.conn.Send(env)
}

// sendStroke is the whiteboard engine's outbound path.
func (r *Room) sendStroke(p wire.StrokePayload) error {
	env, err := wire.NewEnvelope(wire.EventWhiteboard, r.cfg.UserID, r.cfg.DisplayName, p)
	if err != nil {
		return err
	}
	return r.conn.Send(env)
}

// DrawStroke renders a local stroke segment and broadcasts it.
func (r *Room) DrawStroke(from, to wire.Point, style StrokeStyle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return fmt.Errorf("room %s: no whiteboard surface", r.cfg.Code)
	}
	return r.board.DrawLocal(from, to, style)
}

// ClearBoard blanks the whiteboard for everyone.
func (r *Room) ClearBoard() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return fmt.Errorf("room %s: no whiteboard surface", r.cfg.Code)
	}
	return r.board.ClearLocal()
}

// Transcript returns the chat log in global order.
func (r *Room) Transcript() []ChatEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.All()
}

// Files returns the shared-files index.
func (r *Room) Files() []FileShare {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.Files()
}

// Roster returns the participants in first-sighting order.
func (r *Room) Roster() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracker.Roster()
}

// Status returns the current lifecycle status.
func (r *Room) Status() wire.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lifecycle.Status()
}

// ElapsedSeconds returns the session timer value.
func (r *Room) ElapsedSeconds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lifecycle.ElapsedSeconds()
}

// IsConnected reports transport connectivity.
func (r *Room) IsConnected() bool {
	return r.conn.IsConnected()
}

// OnChat registers a listener for every appended transcript entry. Register
// before Open; listeners run on the dispatch goroutine.
func (r *Room) OnChat(fn func(ChatEntry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript.OnChange(fn)
}

// OnStatusChange registers a lifecycle listener.
func (r *Room) OnStatusChange(fn func(wire.RoomStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStatus = fn
}

// OnElapsed registers the timer listener, called once per second while the
// session is active and once on each status transition.
func (r *Room) OnElapsed(fn func(seconds int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onElapsed = fn
}

// OnConnState registers a connectivity listener.
func (r *Room) OnConnState(fn func(connected bool)) {
	r.conn.OnStateChange(fn)
}

// Leave exits the room: the best-effort leave beacon goes out first, then
// the connection and dispatch loop shut down.
func (r *Room) Leave() error {
	var err error
	r.closeOnce.Do(func() {
		r.conn.LeaveBeacon()
		err = r.conn.Close()
		close(r.done)
	})
	return err
}
