package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/repository"
	"github.com/rs/zerolog"
)

// ReadStateService tracks each member's read watermark and derives receipts
// from it.
type ReadStateService struct {
	memberships repository.MembershipRepositoryInterface
	messages    repository.MessageRepositoryInterface
	users       repository.UserRepositoryInterface
	gate        accessGate
	notify      notifier
	log         zerolog.Logger
	now         func() time.Time
}

func NewReadStateService(stores Stores, publisher EventPublisher, log zerolog.Logger) *ReadStateService {
	return &ReadStateService{
		memberships: stores.Memberships,
		messages:    stores.Messages,
		users:       stores.Users,
		gate:        accessGate{members: stores.Memberships, log: log},
		notify:      notifier{publisher: publisher, members: stores.Memberships, log: log},
		log:         log,
		now:         defaultClock,
	}
}

type ReadEvent struct {
	RoomID     uuid.UUID `json:"room_id"`
	UserID     uuid.UUID `json:"user_id"`
	LastReadAt time.Time `json:"last_read_at"`
}

// MarkRead moves the actor's watermark to now.
func (s *ReadStateService) MarkRead(ctx context.Context, actor, roomID uuid.UUID) (time.Time, error) {
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return time.Time{}, err
	}
	now := s.now()
	if err := s.memberships.TouchLastRead(ctx, roomID, actor, now); err != nil {
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return time.Time{}, ErrNotAMember
		}
		return time.Time{}, storageFailure(s.log, "membership.touch", err)
	}
	s.notify.toRoom(ctx, roomID, Event{Type: EventRead, Payload: ReadEvent{
		RoomID: roomID, UserID: actor, LastReadAt: now,
	}})
	return now, nil
}

// Receipts splits the room's other members into those whose watermark covers
// the message and those who have not read it yet.
func (s *ReadStateService) Receipts(ctx context.Context, actor, roomID, messageID uuid.UUID) (*models.Receipts, error) {
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return nil, err
	}
	msg, err := s.messages.FindByID(ctx, models.KindRoom, messageID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, storageFailure(s.log, "message.get", err)
	}
	if msg.ScopeID != roomID {
		return nil, ErrNotFound
	}

	members, err := s.memberships.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, storageFailure(s.log, "membership.list", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for i := range members {
		if members[i].UserID != actor {
			ids = append(ids, members[i].UserID)
		}
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, storageFailure(s.log, "user.list", err)
	}
	byID := summariesByID(users)

	out := &models.Receipts{Read: []models.Receipt{}, Delivered: []models.Receipt{}}
	for i := range members {
		m := &members[i]
		if m.UserID == actor {
			continue
		}
		r := models.Receipt{UserID: m.UserID}
		if u := byID[m.UserID]; u != nil {
			r.FullName = u.FullName
			r.AvatarURL = u.AvatarURL
		}
		if m.HasReadUpTo(msg.CreatedAt) {
			r.ReadAt = m.LastReadAt
			out.Read = append(out.Read, r)
		} else {
			out.Delivered = append(out.Delivered, r)
		}
	}
	sortReceipts(out.Read)
	sortReceipts(out.Delivered)
	return out, nil
}

func sortReceipts(rs []models.Receipt) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := strings.ToLower(rs[i].FullName), strings.ToLower(rs[j].FullName)
		if a != b {
			return a < b
		}
		return rs[i].UserID.String() < rs[j].UserID.String()
	})
}
