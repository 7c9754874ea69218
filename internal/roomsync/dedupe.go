package roomsync

import (
	"fmt"
	"time"

	"liveclass-backend/internal/wire"
)

// AdmittedEvent is an inbound envelope that passed deduplication. Seq is the
// admission sequence number and is the one true ordering of events within a
// room session; embedded timestamps are never used for ordering because
// remote clocks are not trusted.
type AdmittedEvent struct {
	Seq      uint64
	Envelope wire.Envelope
}

// Admitter filters duplicate deliveries and assigns arrival order.
//
// Only chat events carry a deduplication identity. Whiteboard strokes and the
// other non-identified kinds are admitted unconditionally. Admitted ids are
// remembered for the lifetime of the room session, which keeps duplicates out
// across reconnects; memory is bounded by the number of distinct chat entries
// in a session.
//
// Not safe for concurrent use: the room dispatch loop is the only producer,
// which is exactly what makes the seen-set safe without a lock.
type Admitter struct {
	seen map[string]struct{}
	seq  uint64
	now  func() time.Time
}

// NewAdmitter creates an empty admitter.
func NewAdmitter() *Admitter {
	return &Admitter{
		seen: make(map[string]struct{}),
		now:  time.Now,
	}
}

// Admit accepts or rejects one inbound envelope. It returns the admitted
// event and true, or nil and false for a duplicate.
func (a *Admitter) Admit(env wire.Envelope) (*AdmittedEvent, bool) {
	if env.Type == wire.EventChat {
		id := a.chatID(env)
		if _, dup := a.seen[id]; dup {
			return nil, false
		}
		a.seen[id] = struct{}{}
	}

	a.seq++
	return &AdmittedEvent{Seq: a.seq, Envelope: env}, true
}

// chatID extracts the dedup identity of a chat envelope. An entry without an
// id gets a synthetic one derived from receipt time; that makes dedup
// best-effort for id-less redeliveries, so senders wanting hard guarantees
// must supply an id.
func (a *Admitter) chatID(env wire.Envelope) string {
	if p, err := env.DecodeChat(); err == nil && p.ID != "" {
		return p.ID
	}
	return fmt.Sprintf("recv-%d", a.now().UnixNano())
}
