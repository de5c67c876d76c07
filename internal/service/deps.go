package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/repository"
	"github.com/rs/zerolog"
)

// Stores bundles the persistence adapters the services read and write.
type Stores struct {
	Messages      repository.MessageRepositoryInterface
	Conversations repository.ConversationRepositoryInterface
	Reactions     repository.ReactionRepositoryInterface
	Memberships   repository.MembershipRepositoryInterface
	Presence      repository.PresenceRepositoryInterface
	Users         repository.UserRepositoryInterface
}

// ContentCipher protects message bodies at rest.
type ContentCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(stored string) string
}

// Event is a realtime notification pushed to connected clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	EventMessageCreated  = "message.created"
	EventMessageUpdated  = "message.updated"
	EventMessageDeleted  = "message.deleted"
	EventReactionAdded   = "reaction.added"
	EventReactionRemoved = "reaction.removed"
	EventPresence        = "presence"
	EventRead            = "read"
	EventTyping          = "typing"
)

// EventPublisher delivers events to whichever recipients are connected.
type EventPublisher interface {
	Publish(recipients []uuid.UUID, event Event)
}

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// accessGate answers membership questions for rooms (communities).
type accessGate struct {
	members repository.MembershipRepositoryInterface
	log     zerolog.Logger
}

func (g accessGate) require(ctx context.Context, roomID, userID uuid.UUID) (*models.Membership, error) {
	if userID == uuid.Nil {
		return nil, ErrNotAuthenticated
	}
	m, err := g.members.Get(ctx, roomID, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotAMember
		}
		return nil, storageFailure(g.log, "membership.get", err)
	}
	return m, nil
}

// notifier fans events out to room members or explicit recipients. Failures are
// logged; realtime delivery never fails a write.
type notifier struct {
	publisher EventPublisher
	members   repository.MembershipRepositoryInterface
	log       zerolog.Logger
}

func (n notifier) enabled() bool {
	return n.publisher != nil
}

func (n notifier) toRoom(ctx context.Context, roomID uuid.UUID, event Event) {
	if !n.enabled() {
		return
	}
	members, err := n.members.ListByRoom(ctx, roomID)
	if err != nil {
		n.log.Warn().Err(err).Str("room_id", roomID.String()).Str("event", event.Type).Msg("skipping realtime fan-out")
		return
	}
	ids := make([]uuid.UUID, len(members))
	for i := range members {
		ids[i] = members[i].UserID
	}
	n.publisher.Publish(ids, event)
}

func (n notifier) toUsers(ids []uuid.UUID, event Event) {
	if !n.enabled() {
		return
	}
	n.publisher.Publish(ids, event)
}

func summariesByID(users []models.User) map[uuid.UUID]*models.UserSummary {
	out := make(map[uuid.UUID]*models.UserSummary, len(users))
	for i := range users {
		s := users[i].ToSummary()
		out[users[i].ID] = &s
	}
	return out
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
