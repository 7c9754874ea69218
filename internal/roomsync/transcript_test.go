package roomsync

import (
	"testing"
	"time"

	"liveclass-backend/internal/wire"
)

func TestTranscriptStore_AppendOrder(t *testing.T) {
	s := NewTranscriptStore()

	s.Append(ChatEntry{ID: "a", Content: "one", Seq: 1})
	s.Append(ChatEntry{ID: "b", Content: "two", Seq: 2})
	s.Append(ChatEntry{ID: "c", Content: "three", Seq: 3})

	all := s.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	for i, want := range []string{"one", "two", "three"} {
		if all[i].Content != want {
			t.Errorf("entry %d: expected %q, got %q", i, want, all[i].Content)
		}
	}

	// Re-reading must not change anything.
	again := s.All()
	for i := range all {
		if all[i].ID != again[i].ID {
			t.Errorf("entry %d changed between reads", i)
		}
	}
}

func TestTranscriptStore_FileIndexIdempotent(t *testing.T) {
	s := NewTranscriptStore()
	sharedAt := time.Now()

	entry := ChatEntry{
		ID:         "f1",
		SenderName: "alice",
		Kind:       wire.ChatFile,
		FileName:   "notes.pdf",
		FileURL:    "https://files/notes.pdf",
		Timestamp:  sharedAt,
		Seq:        1,
	}
	s.Append(entry)

	// Same (fileName, senderName) arriving again, e.g. a redelivered entry
	// with a synthetic id that slipped past dedup.
	entry.ID = "f2"
	entry.Seq = 2
	s.Append(entry)

	files := s.Files()
	if len(files) != 1 {
		t.Fatalf("expected 1 file index entry, got %d", len(files))
	}
	if files[0].FileName != "notes.pdf" || files[0].SenderName != "alice" {
		t.Errorf("unexpected file entry: %+v", files[0])
	}

	// A different sender sharing the same file name is a distinct entry.
	s.Append(ChatEntry{
		ID:         "f3",
		SenderName: "bob",
		Kind:       wire.ChatFile,
		FileName:   "notes.pdf",
		Seq:        3,
	})
	if len(s.Files()) != 2 {
		t.Errorf("expected 2 file index entries, got %d", len(s.Files()))
	}
}

func TestTranscriptStore_ListenerNotified(t *testing.T) {
	s := NewTranscriptStore()

	var got []string
	s.OnChange(func(e ChatEntry) {
		got = append(got, e.Content)
	})

	s.Append(ChatEntry{ID: "a", Content: "hello", Seq: 1})
	s.Append(ChatEntry{ID: "b", Content: "world", Seq: 2})

	if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Errorf("listener saw %v", got)
	}
}

func TestTranscriptStore_SnapshotIsCopy(t *testing.T) {
	s := NewTranscriptStore()
	s.Append(ChatEntry{ID: "a", Content: "original", Seq: 1})

	snap := s.All()
	snap[0].Content = "mutated"

	if s.All()[0].Content != "original" {
		t.Error("mutating a snapshot must not affect the store")
	}
}
