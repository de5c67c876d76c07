package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/metrics"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/repository"
	"github.com/noteduco342/courtside-chat/internal/validation"
	"github.com/rs/zerolog"
)

const previewLength = 120

// ConversationService resolves and lists direct conversations. A pair of users
// has at most one conversation per community.
type ConversationService struct {
	conversations repository.ConversationRepositoryInterface
	messages      repository.MessageRepositoryInterface
	users         repository.UserRepositoryInterface
	gate          accessGate
	cipher        ContentCipher
	log           zerolog.Logger
	now           func() time.Time
}

func NewConversationService(stores Stores, cipher ContentCipher, log zerolog.Logger) *ConversationService {
	return &ConversationService{
		conversations: stores.Conversations,
		messages:      stores.Messages,
		users:         stores.Users,
		gate:          accessGate{members: stores.Memberships, log: log},
		cipher:        cipher,
		log:           log,
		now:           defaultClock,
	}
}

// Resolve returns the conversation between actor and peer in a community,
// creating it on first contact. Concurrent callers converge on one row.
func (s *ConversationService) Resolve(ctx context.Context, communityID, actor, peer uuid.UUID) (*models.Conversation, error) {
	if actor == uuid.Nil {
		return nil, ErrNotAuthenticated
	}
	if peer == uuid.Nil || peer == actor {
		return nil, invalid("peer_id", "must be another member")
	}
	if _, err := s.gate.require(ctx, communityID, actor); err != nil {
		return nil, err
	}
	if _, err := s.gate.require(ctx, communityID, peer); err != nil {
		return nil, err
	}

	low, high := models.CanonicalPair(actor, peer)
	conv, err := s.conversations.FindByPair(ctx, communityID, low, high)
	if err == nil {
		return conv, nil
	}
	if !repository.IsNotFound(err) {
		return nil, storageFailure(s.log, "conversation.find", err)
	}

	now := s.now()
	conv = &models.Conversation{
		ID:          uuid.New(),
		CommunityID: communityID,
		UserAID:     low,
		UserBID:     high,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.conversations.Create(ctx, conv)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, storageFailure(s.log, "conversation.create", err)
	}

	// Lost the race; the winner's row is the conversation.
	metrics.ConflictsAbsorbed.WithLabelValues("conversation").Inc()
	conv, err = s.conversations.FindByPair(ctx, communityID, low, high)
	if err != nil {
		return nil, storageFailure(s.log, "conversation.refetch", err)
	}
	return conv, nil
}

// Get loads a conversation the actor participates in.
func (s *ConversationService) Get(ctx context.Context, actor, conversationID uuid.UUID) (*models.Conversation, error) {
	if actor == uuid.Nil {
		return nil, ErrNotAuthenticated
	}
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, storageFailure(s.log, "conversation.get", err)
	}
	if !conv.HasParticipant(actor) {
		return nil, ErrNotAMember
	}
	return conv, nil
}

// List returns the actor's conversations in a community, most recently active
// first, each with the peer and a preview of the latest message.
func (s *ConversationService) List(ctx context.Context, actor, communityID uuid.UUID) ([]models.ConversationSummary, error) {
	if _, err := s.gate.require(ctx, communityID, actor); err != nil {
		return nil, err
	}
	convs, err := s.conversations.ListForUser(ctx, communityID, actor)
	if err != nil {
		return nil, storageFailure(s.log, "conversation.list", err)
	}
	if len(convs) == 0 {
		return []models.ConversationSummary{}, nil
	}

	ids := make([]uuid.UUID, len(convs))
	peers := make([]uuid.UUID, len(convs))
	for i := range convs {
		ids[i] = convs[i].ID
		peers[i] = convs[i].Peer(actor)
	}

	latest, err := s.messages.LatestByScope(ctx, models.KindDirect, ids)
	if err != nil {
		return nil, storageFailure(s.log, "conversation.latest", err)
	}
	users, err := s.users.FindByIDs(ctx, uniqueIDs(peers))
	if err != nil {
		return nil, storageFailure(s.log, "conversation.peers", err)
	}
	byID := summariesByID(users)

	out := make([]models.ConversationSummary, len(convs))
	for i := range convs {
		c := &convs[i]
		out[i] = models.ConversationSummary{
			ID:          c.ID,
			CommunityID: c.CommunityID,
			OtherUser:   byID[peers[i]],
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		}
		if msg, ok := latest[c.ID]; ok {
			preview := s.preview(&msg)
			out[i].LastMessage = &preview
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *ConversationService) preview(msg *models.Message) string {
	if msg.IsDeleted() {
		return models.DeletedPreview
	}
	return validation.TrimAndLimit(s.cipher.Decrypt(msg.Content), previewLength)
}
