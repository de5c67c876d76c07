package models

import (
	"time"

	"github.com/google/uuid"
)

type Reaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reaction_triple,priority:1"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reaction_triple,priority:2"`
	Emoji     string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_reaction_triple,priority:3"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Reaction) TableName() string { return "message_reactions" }

type ReactionView struct {
	ID     uuid.UUID    `json:"id"`
	Emoji  string       `json:"emoji"`
	UserID uuid.UUID    `json:"user_id"`
	User   *UserSummary `json:"user,omitempty"`
}
