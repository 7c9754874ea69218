package model

import (
	"time"
)

// User 사용자
type User struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname   string  `gorm:"type:varchar(100);not null" json:"nickname"`
	ProfileImg *string `gorm:"type:text" json:"profile_img,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Participants []SessionParticipant `gorm:"foreignKey:UserID" json:"participants,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Session 라이브 세션
type Session struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	HostID    int64      `gorm:"not null" json:"host_id"`
	Title     string     `gorm:"type:varchar(200);not null" json:"title"`
	Code      string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"`
	Status    string     `gorm:"type:varchar(20);default:'SCHEDULED'" json:"status"`
	Summary   *string    `gorm:"type:text" json:"summary,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Host         User                 `gorm:"foreignKey:HostID" json:"host,omitempty"`
	Participants []SessionParticipant `gorm:"foreignKey:SessionID" json:"participants,omitempty"`
}

func (Session) TableName() string {
	return "sessions"
}

// SessionParticipant 세션 참가자
type SessionParticipant struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID int64      `gorm:"not null;index:idx_session_user" json:"session_id"`
	UserID    int64      `gorm:"not null;index:idx_session_user" json:"user_id"`
	Role      string     `gorm:"type:varchar(20);not null" json:"role"` // HOST, ATTENDEE
	JoinedAt  time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`

	// Relations
	Session Session `gorm:"foreignKey:SessionID" json:"session,omitempty"`
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (SessionParticipant) TableName() string {
	return "session_participants"
}
