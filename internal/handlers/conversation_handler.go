package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/httpx"
	"github.com/noteduco342/courtside-chat/internal/service"
)

// ConversationHandler serves direct conversations between community members.
type ConversationHandler struct {
	conversations Conversations
	messages      DirectMessages
}

func NewConversationHandler(conversations Conversations, messages DirectMessages) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages}
}

func (h *ConversationHandler) List(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "communityId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	list, err := h.conversations.List(c.UserContext(), actor, ids[0])
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": list})
}

type resolveRequest struct {
	PeerID uuid.UUID `json:"peer_id"`
}

func (h *ConversationHandler) Resolve(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "communityId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	conv, err := h.conversations.Resolve(c.UserContext(), ids[0], actor, req.PeerID)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(conv)
}

type directSendRequest struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	service.SendMessageInput
}

// SendTo messages a member directly, opening the conversation on first contact.
func (h *ConversationHandler) SendTo(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "communityId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	var req directSendRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	res, err := h.messages.SendDirectTo(c.UserContext(), actor, ids[0], req.RecipientID, req.SendMessageInput)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *ConversationHandler) Get(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "conversationId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	conv, err := h.conversations.Get(c.UserContext(), actor, ids[0])
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(conv)
}

func (h *ConversationHandler) ListMessages(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "conversationId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	cursor, limit, err := pageParams(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	page, err := h.messages.PageConversation(c.UserContext(), actor, ids[0], cursor, limit)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(page)
}

func (h *ConversationHandler) SendMessage(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "conversationId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	var input service.SendMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	msg, err := h.messages.SendDirectMessage(c.UserContext(), actor, ids[0], input)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *ConversationHandler) GetMessage(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "conversationId", "messageId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	msg, err := h.messages.GetDirectMessage(c.UserContext(), actor, ids[0], ids[1])
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(msg)
}

func (h *ConversationHandler) EditMessage(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "conversationId", "messageId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	var input service.EditMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	msg, err := h.messages.EditDirectMessage(c.UserContext(), actor, ids[0], ids[1], input)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(msg)
}

func (h *ConversationHandler) DeleteMessage(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "conversationId", "messageId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	msg, err := h.messages.DeleteDirectMessage(c.UserContext(), actor, ids[0], ids[1])
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(msg)
}
