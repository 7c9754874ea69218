package roomsync

import (
	"time"

	"liveclass-backend/internal/wire"
)

// Lifecycle tracks the room status and derives the running elapsed-time
// counter. Transitions are driven by lifecycle events from the network, not
// by the local clock; the clock only measures elapsed time while active.
//
// waiting → active → ended, and ended is terminal: once reached, no event
// moves the machine anywhere else.
type Lifecycle struct {
	status    wire.RoomStatus
	startedAt time.Time
	// elapsed at the moment the room ended; frozen from then on.
	finalElapsed int
	now          func() time.Time
}

// NewLifecycle creates a machine in the waiting state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		status: wire.StatusWaiting,
		now:    time.Now,
	}
}

// Apply folds one lifecycle event into the machine and reports whether the
// visible status changed. Re-entering an already-active room seeds the
// counter from the actual start time carried by the event, so elapsed picks
// up at now-startedAt instead of restarting at zero.
func (l *Lifecycle) Apply(p wire.StatusPayload) bool {
	if l.status == wire.StatusEnded {
		return false
	}

	switch p.Status {
	case wire.StatusActive:
		if l.status == wire.StatusActive {
			return false
		}
		l.status = wire.StatusActive
		if p.StartedAt != nil {
			l.startedAt = *p.StartedAt
		} else {
			l.startedAt = l.now()
		}
		return true

	case wire.StatusEnded:
		l.finalElapsed = l.ElapsedSeconds()
		l.status = wire.StatusEnded
		return true

	case wire.StatusWaiting:
		// waiting is the initial state only; there is no way back into it.
		return false
	}

	return false
}

// Status returns the current room status.
func (l *Lifecycle) Status() wire.RoomStatus {
	return l.status
}

// ElapsedSeconds returns the running counter: zero while waiting, seconds
// since the actual start while active, and frozen at its last value once
// ended. Derived from the start time rather than accumulated, so it is
// non-decreasing while active by construction.
func (l *Lifecycle) ElapsedSeconds() int {
	switch l.status {
	case wire.StatusActive:
		d := l.now().Sub(l.startedAt)
		if d < 0 {
			return 0
		}
		return int(d / time.Second)
	case wire.StatusEnded:
		return l.finalElapsed
	default:
		return 0
	}
}
