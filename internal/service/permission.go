package service

import (
	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
)

// MessagePermissionPolicy decides who may change a message. role is the actor's
// room role and is empty for direct messages.
type MessagePermissionPolicy interface {
	CanEdit(actor uuid.UUID, msg *models.Message, role models.MemberRole) bool
	CanDelete(actor uuid.UUID, msg *models.Message, role models.MemberRole) bool
}

// roomPolicy: authors edit their own messages and admins moderate. Owners may
// delete but not rewrite.
type roomPolicy struct{}

func (roomPolicy) CanEdit(actor uuid.UUID, msg *models.Message, role models.MemberRole) bool {
	return msg.AuthorID == actor || role == models.RoleAdmin
}

func (roomPolicy) CanDelete(actor uuid.UUID, msg *models.Message, role models.MemberRole) bool {
	return msg.AuthorID == actor || role == models.RoleAdmin || role == models.RoleOwner
}

// directPolicy: only the sender, whatever their community role.
type directPolicy struct{}

func (directPolicy) CanEdit(actor uuid.UUID, msg *models.Message, _ models.MemberRole) bool {
	return msg.AuthorID == actor
}

func (directPolicy) CanDelete(actor uuid.UUID, msg *models.Message, _ models.MemberRole) bool {
	return msg.AuthorID == actor
}

func PolicyFor(kind models.MessageKind) MessagePermissionPolicy {
	if kind == models.KindDirect {
		return directPolicy{}
	}
	return roomPolicy{}
}
