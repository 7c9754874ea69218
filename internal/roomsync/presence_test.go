package roomsync

import (
	"testing"
	"time"

	"liveclass-backend/internal/wire"
)

func TestTracker_RejoinUpdatesInPlace(t *testing.T) {
	tr := NewTracker(5 * time.Second)

	tr.Upsert(Participant{ID: "u1", DisplayName: "alice", Role: wire.RoleAttendee, IsOnline: true})
	tr.SetOffline("u1")
	tr.Upsert(Participant{ID: "u1", DisplayName: "alice", Role: wire.RoleAttendee, IsOnline: true})

	roster := tr.Roster()
	if len(roster) != 1 {
		t.Fatalf("rejoin must not duplicate, got %d entries", len(roster))
	}
	if !roster[0].IsOnline {
		t.Error("rejoined participant should be online")
	}
}

func TestTracker_ParticipantsNeverDeleted(t *testing.T) {
	tr := NewTracker(5 * time.Second)

	tr.Upsert(Participant{ID: "u1", DisplayName: "alice", IsOnline: true})
	tr.SetOffline("u1")

	p, ok := tr.Get("u1")
	if !ok {
		t.Fatal("participant must remain in roster after going offline")
	}
	if p.IsOnline {
		t.Error("participant should be marked offline")
	}
}

func TestTracker_SetOfflineUnknownIgnored(t *testing.T) {
	tr := NewTracker(5 * time.Second)
	tr.SetOffline("ghost")
	if len(tr.Roster()) != 0 {
		t.Error("a leave for an unknown id must not create roster entries")
	}
}

func TestTracker_SeedNeverDowngradesOnline(t *testing.T) {
	tr := NewTracker(5 * time.Second)

	// Live join lands before the snapshot response.
	tr.Upsert(Participant{ID: "u1", DisplayName: "alice", IsOnline: true})

	// Stale snapshot says offline.
	tr.Seed([]Participant{
		{ID: "u1", DisplayName: "alice", IsOnline: false},
		{ID: "u2", DisplayName: "bob", IsOnline: false},
	})

	p, _ := tr.Get("u1")
	if !p.IsOnline {
		t.Error("snapshot must not downgrade a participant already seen online")
	}
	if p2, ok := tr.Get("u2"); !ok || p2.IsOnline {
		t.Error("snapshot-only participant should be present and offline")
	}
}

func TestTracker_RosterFirstSightingOrder(t *testing.T) {
	tr := NewTracker(5 * time.Second)

	tr.Upsert(Participant{ID: "u1", DisplayName: "alice", IsOnline: true})
	tr.Upsert(Participant{ID: "u2", DisplayName: "bob", IsOnline: true})
	tr.SetOffline("u1")
	tr.Upsert(Participant{ID: "u1", DisplayName: "alice", IsOnline: true})

	roster := tr.Roster()
	if roster[0].ID != "u1" || roster[1].ID != "u2" {
		t.Errorf("roster order should be first sighting, got %v then %v", roster[0].ID, roster[1].ID)
	}
}

func TestTracker_JoinAnnouncementDebounce(t *testing.T) {
	tr := NewTracker(5 * time.Second)
	now := time.Unix(1000, 0)
	tr.now = func() time.Time { return now }

	if !tr.ShouldAnnounceJoin("alice") {
		t.Fatal("first join should be announced")
	}

	now = now.Add(2 * time.Second)
	if tr.ShouldAnnounceJoin("alice") {
		t.Error("join within the debounce window should be suppressed")
	}

	// A different display name is independent.
	if !tr.ShouldAnnounceJoin("bob") {
		t.Error("unrelated participant should be announced")
	}

	now = now.Add(6 * time.Second)
	if !tr.ShouldAnnounceJoin("alice") {
		t.Error("join after the window should be announced again")
	}
}
