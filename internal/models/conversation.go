package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Conversation is a DM thread between exactly two community members. UserAID is
// always the lower id of the pair.
type Conversation struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CommunityID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_dm_pair,priority:1" json:"community_id"`
	UserAID     uuid.UUID `gorm:"column:user_a_id;type:uuid;not null;uniqueIndex:idx_dm_pair,priority:2" json:"user_a_id"`
	UserBID     uuid.UUID `gorm:"column:user_b_id;type:uuid;not null;uniqueIndex:idx_dm_pair,priority:3;index" json:"user_b_id"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Conversation) TableName() string { return "dm_conversations" }

// CanonicalPair orders two user ids so that (a, b) and (b, a) produce the same key.
func CanonicalPair(a, b uuid.UUID) (low, high uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// Peer returns the other participant.
func (c *Conversation) Peer(userID uuid.UUID) uuid.UUID {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

func (c *Conversation) Participants() []uuid.UUID {
	return []uuid.UUID{c.UserAID, c.UserBID}
}

type ConversationSummary struct {
	ID          uuid.UUID    `json:"id"`
	CommunityID uuid.UUID    `json:"community_id"`
	OtherUser   *UserSummary `json:"other_user"`
	LastMessage *string      `json:"last_message"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
