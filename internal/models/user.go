package models

import (
	"github.com/google/uuid"
)

// User is the profile row owned by the account system; chat only reads it.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	FullName  string    `gorm:"column:full_name"`
	AvatarURL *string   `gorm:"column:avatar_url"`
}

func (User) TableName() string { return "users" }

type UserSummary struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	AvatarURL *string   `json:"avatar_url"`
}

func (u *User) ToSummary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
	}
}
