package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/courtside-chat/internal/httpx"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/service"
)

// RoomHandler serves community room chat: messages, reactions, read state and
// presence.
type RoomHandler struct {
	messages  RoomMessages
	reactions Reactions
	readState ReadState
	presence  Presence
}

func NewRoomHandler(messages RoomMessages, reactions Reactions, readState ReadState, presence Presence) *RoomHandler {
	return &RoomHandler{
		messages:  messages,
		reactions: reactions,
		readState: readState,
		presence:  presence,
	}
}

func (h *RoomHandler) ListMessages(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	cursor, limit, err := pageParams(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	page, err := h.messages.PageRoom(c.UserContext(), actor, ids[0], cursor, limit)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(page)
}

func (h *RoomHandler) SendMessage(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	var input service.SendMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	msg, err := h.messages.SendRoomMessage(c.UserContext(), actor, ids[0], input)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *RoomHandler) GetMessage(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId", "messageId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	msg, err := h.messages.GetRoomMessage(c.UserContext(), actor, ids[0], ids[1])
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(msg)
}

func (h *RoomHandler) EditMessage(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId", "messageId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	var input service.EditMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	msg, err := h.messages.EditRoomMessage(c.UserContext(), actor, ids[0], ids[1], input)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(msg)
}

func (h *RoomHandler) DeleteMessage(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId", "messageId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	msg, err := h.messages.DeleteRoomMessage(c.UserContext(), actor, ids[0], ids[1])
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(msg)
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *RoomHandler) AddReaction(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId", "messageId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	var req reactionRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	if err := h.reactions.Add(c.UserContext(), actor, ids[0], ids[1], req.Emoji); err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveReaction takes the emoji from the query string; DELETE bodies are
// dropped by some proxies.
func (h *RoomHandler) RemoveReaction(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId", "messageId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	if err := h.reactions.Remove(c.UserContext(), actor, ids[0], ids[1], c.Query("emoji")); err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *RoomHandler) Receipts(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId", "messageId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	receipts, err := h.readState.Receipts(c.UserContext(), actor, ids[0], ids[1])
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(receipts)
}

func (h *RoomHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	at, err := h.readState.MarkRead(c.UserContext(), actor, ids[0])
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(fiber.Map{"last_read_at": at})
}

type presenceRequest struct {
	Status models.PresenceStatus `json:"status"`
}

func (h *RoomHandler) SetPresence(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	var req presenceRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}

	rec, err := h.presence.Set(c.UserContext(), actor, ids[0], req.Status)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(rec)
}

// ListPresence returns every presence record in the room, or only the ids of
// online members with ?online=1.
func (h *RoomHandler) ListPresence(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	if c.QueryBool("online") {
		online, err := h.presence.Online(c.UserContext(), actor, ids[0])
		if err != nil {
			return httpx.FromServiceError(c, err)
		}
		return c.JSON(fiber.Map{"online": online})
	}

	recs, err := h.presence.List(c.UserContext(), actor, ids[0])
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.JSON(fiber.Map{"presence": recs})
}
