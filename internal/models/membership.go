package models

import (
	"time"

	"github.com/google/uuid"
)

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// Membership is a community_members row. Rows are managed by the community
// module; chat reads role and writes only last_read_at.
type Membership struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RoomID     uuid.UUID  `gorm:"column:community_id;type:uuid;not null;uniqueIndex:idx_community_member,priority:1"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_community_member,priority:2"`
	Role       MemberRole `gorm:"type:varchar(20);not null;default:'member'"`
	LastReadAt *time.Time `gorm:"column:last_read_at"`
	JoinedAt   time.Time  `gorm:"autoCreateTime"`
}

func (Membership) TableName() string { return "community_members" }

// HasReadUpTo reports whether the member's watermark covers a message created at t.
func (m *Membership) HasReadUpTo(t time.Time) bool {
	return m.LastReadAt != nil && !m.LastReadAt.Before(t)
}
