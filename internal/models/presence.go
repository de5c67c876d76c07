package models

import (
	"time"

	"github.com/google/uuid"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceOffline:
		return true
	}
	return false
}

type PresenceRecord struct {
	UserID     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"user_id"`
	RoomID     uuid.UUID      `gorm:"column:community_id;type:uuid;primaryKey" json:"room_id"`
	Status     PresenceStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	LastSeenAt time.Time      `gorm:"not null;index" json:"last_seen_at"`
}

func (PresenceRecord) TableName() string { return "user_presence" }

type Receipt struct {
	UserID    uuid.UUID  `json:"user_id"`
	FullName  string     `json:"full_name"`
	AvatarURL *string    `json:"avatar_url"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

type Receipts struct {
	Read      []Receipt `json:"read"`
	Delivered []Receipt `json:"delivered"`
}
