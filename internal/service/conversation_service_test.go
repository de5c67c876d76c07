package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
)

func TestResolveIsSymmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member("Alex", models.RoleMember)
	b := f.member("Blair", models.RoleMember)

	ab, err := f.conversationSvc.Resolve(ctx, f.room, a, b)
	if err != nil {
		t.Fatalf("Resolve(a, b) error = %v", err)
	}
	ba, err := f.conversationSvc.Resolve(ctx, f.room, b, a)
	if err != nil {
		t.Fatalf("Resolve(b, a) error = %v", err)
	}
	if ab.ID != ba.ID {
		t.Errorf("Resolve(a, b) = %v, Resolve(b, a) = %v, want same", ab.ID, ba.ID)
	}
	low, high := models.CanonicalPair(a, b)
	if ab.UserAID != low || ab.UserBID != high {
		t.Errorf("pair = (%v, %v), want canonical (%v, %v)", ab.UserAID, ab.UserBID, low, high)
	}
	if n := f.conversations.count(); n != 1 {
		t.Errorf("conversations = %d, want 1", n)
	}
}

func TestResolveValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member("Alex", models.RoleMember)
	stranger := f.outsider("Stranger")

	tests := []struct {
		name    string
		actor   uuid.UUID
		peer    uuid.UUID
		wantErr error
	}{
		{"Self", a, a, ErrValidation},
		{"Nil peer", a, uuid.Nil, ErrValidation},
		{"Anonymous", uuid.Nil, a, ErrNotAuthenticated},
		{"Peer not a member", a, stranger, ErrNotAMember},
		{"Actor not a member", stranger, a, ErrNotAMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.conversationSvc.Resolve(ctx, f.room, tt.actor, tt.peer)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if n := f.conversations.count(); n != 0 {
		t.Errorf("conversations = %d, want 0", n)
	}
}

// Both participants resolve at once and then message; everything lands in one
// conversation.
func TestConcurrentResolveConverges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member("Alex", models.RoleMember)
	b := f.member("Blair", models.RoleMember)
	gate := make(chan struct{})
	f.conversations.createGate = gate

	const callers = 8
	ids := make([]uuid.UUID, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor, peer := a, b
			if i%2 == 1 {
				actor, peer = b, a
			}
			conv, err := f.conversationSvc.Resolve(ctx, f.room, actor, peer)
			errs[i] = err
			if conv != nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	close(gate)
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("caller %d got %v, want %v", i, ids[i], ids[0])
		}
	}
	if n := f.conversations.count(); n != 1 {
		t.Fatalf("conversations = %d, want 1", n)
	}

	fromA, err := f.messageSvc.SendDirectMessage(ctx, a, ids[0], SendMessageInput{Content: "hey"})
	if err != nil {
		t.Fatalf("SendDirectMessage(a) error = %v", err)
	}
	fromB, err := f.messageSvc.SendDirectMessage(ctx, b, ids[1], SendMessageInput{Content: "hey back"})
	if err != nil {
		t.Fatalf("SendDirectMessage(b) error = %v", err)
	}
	if *fromA.ConversationID != *fromB.ConversationID {
		t.Errorf("messages landed in %v and %v", *fromA.ConversationID, *fromB.ConversationID)
	}
}

func TestGetConversationAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member("Alex", models.RoleMember)
	b := f.member("Blair", models.RoleMember)
	c := f.member("Casey", models.RoleAdmin)

	conv, err := f.conversationSvc.Resolve(ctx, f.room, a, b)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, err := f.conversationSvc.Get(ctx, c, conv.ID); !errors.Is(err, ErrNotAMember) {
		t.Errorf("Get(third party) error = %v, want ErrNotAMember", err)
	}
	if _, err := f.conversationSvc.Get(ctx, a, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := f.messageSvc.PageConversation(ctx, c, conv.ID, nil, 10); !errors.Is(err, ErrNotAMember) {
		t.Errorf("PageConversation(third party) error = %v, want ErrNotAMember", err)
	}
}

func TestDirectMessagesAreSenderOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.member("Admin", models.RoleAdmin)
	peer := f.member("Peer", models.RoleOwner)

	res, err := f.messageSvc.SendDirectTo(ctx, admin, f.room, peer, SendMessageInput{Content: "hi"})
	if err != nil {
		t.Fatalf("SendDirectTo() error = %v", err)
	}
	convID, msgID := res.Conversation.ID, res.Message.ID

	if _, err := f.messageSvc.EditDirectMessage(ctx, peer, convID, msgID, EditMessageInput{Content: "x"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("peer edit error = %v, want ErrForbidden", err)
	}
	if _, err := f.messageSvc.DeleteDirectMessage(ctx, peer, convID, msgID); !errors.Is(err, ErrForbidden) {
		t.Errorf("peer delete error = %v, want ErrForbidden", err)
	}
	if _, err := f.messageSvc.EditDirectMessage(ctx, admin, convID, msgID, EditMessageInput{Content: "hello"}); err != nil {
		t.Errorf("sender edit error = %v", err)
	}
	if _, err := f.messageSvc.DeleteDirectMessage(ctx, admin, convID, msgID); err != nil {
		t.Errorf("sender delete error = %v", err)
	}
}

func TestSendDirectToValidatesBeforeResolving(t *testing.T) {
	f := newFixture(t)
	a := f.member("Alex", models.RoleMember)
	b := f.member("Blair", models.RoleMember)

	_, err := f.messageSvc.SendDirectTo(context.Background(), a, f.room, b, SendMessageInput{Content: " "})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("SendDirectTo() error = %v, want ErrValidation", err)
	}
	if n := f.conversations.count(); n != 0 {
		t.Errorf("conversations = %d, want 0", n)
	}
}

func TestListConversationsWithPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := f.member("Me", models.RoleMember)
	b := f.member("Blair", models.RoleMember)
	c := f.member("Casey", models.RoleMember)

	withB, err := f.messageSvc.SendDirectTo(ctx, me, f.room, b, SendMessageInput{Content: "older thread"})
	if err != nil {
		t.Fatalf("SendDirectTo(b) error = %v", err)
	}
	withC, err := f.messageSvc.SendDirectTo(ctx, c, f.room, me, SendMessageInput{Content: "newest thread"})
	if err != nil {
		t.Fatalf("SendDirectTo(c) error = %v", err)
	}
	if _, err := f.messageSvc.DeleteDirectMessage(ctx, me, withB.Conversation.ID, withB.Message.ID); err != nil {
		t.Fatalf("DeleteDirectMessage() error = %v", err)
	}

	list, err := f.conversationSvc.List(ctx, me, f.room)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	byID := map[uuid.UUID]models.ConversationSummary{}
	for _, s := range list {
		byID[s.ID] = s
	}

	cSummary := byID[withC.Conversation.ID]
	if cSummary.OtherUser == nil || cSummary.OtherUser.FullName != "Casey" {
		t.Errorf("OtherUser = %+v, want Casey", cSummary.OtherUser)
	}
	if cSummary.LastMessage == nil || *cSummary.LastMessage != "newest thread" {
		t.Errorf("LastMessage = %v, want decrypted preview", cSummary.LastMessage)
	}
	bSummary := byID[withB.Conversation.ID]
	if bSummary.LastMessage == nil || *bSummary.LastMessage != models.DeletedPreview {
		t.Errorf("LastMessage = %v, want %q", bSummary.LastMessage, models.DeletedPreview)
	}
}
