package model

// SessionStatus lifecycle status of a live session
type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "SCHEDULED"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusEnded      SessionStatus = "ENDED"
)

func (s SessionStatus) String() string {
	return string(s)
}

// ParticipantRole role of a participant within a session
type ParticipantRole string

const (
	RoleHost     ParticipantRole = "HOST"
	RoleAttendee ParticipantRole = "ATTENDEE"
)

func (r ParticipantRole) String() string {
	return string(r)
}
