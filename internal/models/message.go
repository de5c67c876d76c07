package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindRoom   MessageKind = "room"
	KindDirect MessageKind = "direct"
)

// DeletedPreview replaces the body of a tombstone in conversation previews.
const DeletedPreview = "[deleted message]"

// RoomMessage is a message posted to a community's room chat.
type RoomMessage struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RoomID    uuid.UUID  `gorm:"column:community_id;type:uuid;not null;index:idx_community_messages_page,priority:1"`
	AuthorID  uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	Content   string     `gorm:"type:text;not null;default:''"`
	ImageURL  *string    `gorm:"column:image_url;type:text"`
	CreatedAt time.Time  `gorm:"not null;index:idx_community_messages_page,priority:2,sort:desc"`
	UpdatedAt time.Time  `gorm:"not null"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

func (RoomMessage) TableName() string { return "community_messages" }

// DirectMessage is a message inside a DM conversation.
type DirectMessage struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_dm_messages_page,priority:1"`
	SenderID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	Content        string     `gorm:"type:text;not null;default:''"`
	ImageURL       *string    `gorm:"column:image_url;type:text"`
	CreatedAt      time.Time  `gorm:"not null;index:idx_dm_messages_page,priority:2,sort:desc"`
	UpdatedAt      time.Time  `gorm:"not null"`
	DeletedAt      *time.Time `gorm:"column:deleted_at"`
}

func (DirectMessage) TableName() string { return "dm_messages" }

// Message is the kind-tagged shape both tables share. Content holds the stored
// (encrypted) body; it is never plaintext outside the service layer.
type Message struct {
	Kind      MessageKind `msgpack:"k"`
	ID        uuid.UUID   `msgpack:"id"`
	ScopeID   uuid.UUID   `msgpack:"s"`
	AuthorID  uuid.UUID   `msgpack:"a"`
	Content   string      `msgpack:"c"`
	ImageURL  *string     `msgpack:"i"`
	CreatedAt time.Time   `msgpack:"ca"`
	UpdatedAt time.Time   `msgpack:"ua"`
	DeletedAt *time.Time  `msgpack:"da"`
}

func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

func (m *RoomMessage) ToMessage() Message {
	return Message{
		Kind:      KindRoom,
		ID:        m.ID,
		ScopeID:   m.RoomID,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		DeletedAt: m.DeletedAt,
	}
}

func (m *DirectMessage) ToMessage() Message {
	return Message{
		Kind:      KindDirect,
		ID:        m.ID,
		ScopeID:   m.ConversationID,
		AuthorID:  m.SenderID,
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		DeletedAt: m.DeletedAt,
	}
}

func NewRoomMessage(m *Message) *RoomMessage {
	return &RoomMessage{
		ID:        m.ID,
		RoomID:    m.ScopeID,
		AuthorID:  m.AuthorID,
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		DeletedAt: m.DeletedAt,
	}
}

func NewDirectMessage(m *Message) *DirectMessage {
	return &DirectMessage{
		ID:             m.ID,
		ConversationID: m.ScopeID,
		SenderID:       m.AuthorID,
		Content:        m.Content,
		ImageURL:       m.ImageURL,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		DeletedAt:      m.DeletedAt,
	}
}

type MessageView struct {
	ID             uuid.UUID      `json:"id"`
	Kind           MessageKind    `json:"kind"`
	RoomID         *uuid.UUID     `json:"room_id,omitempty"`
	ConversationID *uuid.UUID     `json:"conversation_id,omitempty"`
	AuthorID       uuid.UUID      `json:"author_id"`
	Author         *UserSummary   `json:"author,omitempty"`
	Content        string         `json:"content"`
	ImageURL       *string        `json:"image_url"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	IsDeleted      bool           `json:"is_deleted"`
	IsEdited       bool           `json:"is_edited"`
	Reactions      []ReactionView `json:"reactions"`
}

// NewMessageView renders a stored message with its decrypted body. Tombstones
// never carry content or an image.
func NewMessageView(m *Message, plaintext string) MessageView {
	v := MessageView{
		ID:        m.ID,
		Kind:      m.Kind,
		AuthorID:  m.AuthorID,
		Content:   plaintext,
		ImageURL:  m.ImageURL,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		DeletedAt: m.DeletedAt,
		IsEdited:  m.UpdatedAt.After(m.CreatedAt),
		Reactions: []ReactionView{},
	}
	scope := m.ScopeID
	if m.Kind == KindDirect {
		v.ConversationID = &scope
	} else {
		v.RoomID = &scope
	}
	if m.IsDeleted() {
		v.Content = ""
		v.ImageURL = nil
		v.IsDeleted = true
	}
	return v
}
