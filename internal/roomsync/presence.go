package roomsync

import (
	"time"

	"liveclass-backend/internal/wire"
)

// Participant is one roster entry. Participants are created on first
// sighting and never deleted; only IsOnline flips.
type Participant struct {
	ID          string
	DisplayName string
	Role        wire.ParticipantRole
	IsOnline    bool
}

// Tracker maintains the roster of one room. Like the other room components
// it is owned by the dispatch loop and needs no locking.
type Tracker struct {
	byID  map[string]*Participant
	order []string // first-sighting order, stable across flips

	// Join announcements within this window of a previous one for the same
	// display name are suppressed, so reconnect storms do not spam the
	// transcript with duplicate "X joined" lines.
	debounce    time.Duration
	lastJoinMsg map[string]time.Time
	now         func() time.Time
}

// NewTracker creates an empty roster with the given join-debounce window.
func NewTracker(debounce time.Duration) *Tracker {
	return &Tracker{
		byID:        make(map[string]*Participant),
		debounce:    debounce,
		lastJoinMsg: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Upsert records a sighting of a participant. A rejoin after offline updates
// the existing record in place; identities are never duplicated.
func (t *Tracker) Upsert(p Participant) {
	if existing, ok := t.byID[p.ID]; ok {
		existing.DisplayName = p.DisplayName
		existing.Role = p.Role
		existing.IsOnline = p.IsOnline
		return
	}
	cp := p
	t.byID[p.ID] = &cp
	t.order = append(t.order, p.ID)
}

// Seed layers a one-shot roster fetch under whatever live events already
// arrived. It must not overwrite an IsOnline=true set by a join event that
// raced ahead of the fetch response.
func (t *Tracker) Seed(list []Participant) {
	for _, p := range list {
		if existing, ok := t.byID[p.ID]; ok {
			if existing.IsOnline {
				continue
			}
			existing.DisplayName = p.DisplayName
			existing.Role = p.Role
			existing.IsOnline = p.IsOnline
			continue
		}
		cp := p
		t.byID[p.ID] = &cp
		t.order = append(t.order, p.ID)
	}
}

// SetOffline flips a participant offline. Unknown ids are ignored: a leave
// for someone we never saw carries no roster information.
func (t *Tracker) SetOffline(id string) {
	if p, ok := t.byID[id]; ok {
		p.IsOnline = false
	}
}

// Get returns a copy of one participant.
func (t *Tracker) Get(id string) (Participant, bool) {
	if p, ok := t.byID[id]; ok {
		return *p, true
	}
	return Participant{}, false
}

// Roster returns the participants in first-sighting order.
func (t *Tracker) Roster() []Participant {
	out := make([]Participant, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.byID[id])
	}
	return out
}

// ShouldAnnounceJoin reports whether a "X joined" system line should be
// written for this display name, and records the announcement time. Repeats
// within the debounce window are suppressed.
func (t *Tracker) ShouldAnnounceJoin(displayName string) bool {
	now := t.now()
	if last, ok := t.lastJoinMsg[displayName]; ok && now.Sub(last) < t.debounce {
		return false
	}
	t.lastJoinMsg[displayName] = now
	return true
}
