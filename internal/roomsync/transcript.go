package roomsync

import (
	"time"

	"liveclass-backend/internal/wire"
)

// ChatEntry is one immutable transcript line. Seq is the admission sequence
// number; the transcript is ordered by it, not by Timestamp.
type ChatEntry struct {
	ID         string
	SenderID   string
	SenderName string
	Content    string
	Timestamp  time.Time
	Kind       wire.ChatKind
	FileURL    string
	FileName   string
	Language   string
	Seq        uint64
}

// FileShare is one entry in the room's shared-files index.
type FileShare struct {
	FileName   string
	SenderName string
	FileURL    string
	SharedAt   time.Time
}

type fileKey struct {
	fileName   string
	senderName string
}

// TranscriptStore is the append-only chat log of one room session.
//
// The only writer is the room dispatch loop, and the only path into the log
// is the deduplicated inbound stream: a local send does not insert here, it
// comes back through the network like everyone else's messages. That is what
// gives every participant the same global order.
type TranscriptStore struct {
	entries   []ChatEntry
	files     []FileShare
	fileSeen  map[fileKey]struct{}
	listeners []func(ChatEntry)
}

// NewTranscriptStore creates an empty transcript.
func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{
		fileSeen: make(map[fileKey]struct{}),
	}
}

// Append adds one admitted entry and notifies listeners. File-share entries
// are also mirrored into the files index, idempotently: redelivery of the
// same (fileName, senderName) pair does not duplicate the index.
func (s *TranscriptStore) Append(entry ChatEntry) {
	s.entries = append(s.entries, entry)

	if entry.Kind == wire.ChatFile {
		key := fileKey{fileName: entry.FileName, senderName: entry.SenderName}
		if _, dup := s.fileSeen[key]; !dup {
			s.fileSeen[key] = struct{}{}
			s.files = append(s.files, FileShare{
				FileName:   entry.FileName,
				SenderName: entry.SenderName,
				FileURL:    entry.FileURL,
				SharedAt:   entry.Timestamp,
			})
		}
	}

	for _, fn := range s.listeners {
		fn(entry)
	}
}

// All returns the transcript in admission order. The result is a snapshot;
// re-reading returns the same entries in the same order since the log is
// append-only within a room's lifetime.
func (s *TranscriptStore) All() []ChatEntry {
	out := make([]ChatEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Files returns the shared-files index in first-seen order.
func (s *TranscriptStore) Files() []FileShare {
	out := make([]FileShare, len(s.files))
	copy(out, s.files)
	return out
}

// Len returns the number of transcript entries.
func (s *TranscriptStore) Len() int {
	return len(s.entries)
}

// OnChange registers a listener invoked for every appended entry.
func (s *TranscriptStore) OnChange(fn func(ChatEntry)) {
	s.listeners = append(s.listeners, fn)
}
