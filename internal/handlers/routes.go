package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/websocket/v2"
	"github.com/noteduco342/courtside-chat/internal/config"
	"github.com/noteduco342/courtside-chat/internal/httpx"
	"github.com/noteduco342/courtside-chat/internal/middleware"
)

// Router mounts the chat API on a fiber app.
type Router struct {
	Rooms         *RoomHandler
	Conversations *ConversationHandler
	Media         *MediaHandler
	WebSocket     *WebSocketHandler
	// Metrics is served to admins at /metrics when set.
	Metrics fiber.Handler
}

func (r Router) Mount(app *fiber.App, server config.ServerConfig, auth config.AuthConfig) {
	authRequired := middleware.AuthRequired(auth.JWTSecret)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "courtside chat is running",
		})
	})

	if r.Metrics != nil {
		app.Get("/metrics", authRequired, middleware.RequireRole("admin"), r.Metrics)
	}

	api := app.Group("/api", middleware.OriginAllowed(server.AllowedOrigins))
	protected := api.Group("/", authRequired, middleware.CSRFRequired(auth.CSRFMode, server.AllowedOrigins))

	rooms := protected.Group("/rooms/:roomId")
	rooms.Get("/messages", r.Rooms.ListMessages)
	rooms.Post("/messages", r.Rooms.SendMessage)
	rooms.Get("/messages/:messageId", r.Rooms.GetMessage)
	rooms.Patch("/messages/:messageId", r.Rooms.EditMessage)
	rooms.Delete("/messages/:messageId", r.Rooms.DeleteMessage)
	rooms.Post("/messages/:messageId/reactions", r.Rooms.AddReaction)
	rooms.Delete("/messages/:messageId/reactions", r.Rooms.RemoveReaction)
	rooms.Get("/messages/:messageId/receipts", r.Rooms.Receipts)
	rooms.Post("/read", r.Rooms.MarkRead)
	rooms.Put("/presence", r.Rooms.SetPresence)
	rooms.Get("/presence", r.Rooms.ListPresence)
	if r.Media != nil {
		rooms.Post(
			"/images",
			limiter.New(limiter.Config{
				Max:        30,
				Expiration: 10 * time.Minute,
				KeyGenerator: func(c *fiber.Ctx) string {
					if uid, err := httpx.LocalUUID(c, "userID"); err == nil {
						return "chat-image:" + uid.String()
					}
					return c.IP()
				},
			}),
			r.Media.UploadImage,
		)
		protected.Get("/media/chat/*", r.Media.GetChatImage)
	}

	communities := protected.Group("/communities/:communityId")
	communities.Get("/conversations", r.Conversations.List)
	communities.Post("/conversations", r.Conversations.Resolve)
	communities.Post("/dm", r.Conversations.SendTo)

	conversations := protected.Group("/conversations/:conversationId")
	conversations.Get("/", r.Conversations.Get)
	conversations.Get("/messages", r.Conversations.ListMessages)
	conversations.Post("/messages", r.Conversations.SendMessage)
	conversations.Get("/messages/:messageId", r.Conversations.GetMessage)
	conversations.Patch("/messages/:messageId", r.Conversations.EditMessage)
	conversations.Delete("/messages/:messageId", r.Conversations.DeleteMessage)

	if r.WebSocket != nil {
		app.Use(
			"/ws",
			middleware.OriginAllowed(server.AllowedOrigins),
			authRequired,
			r.WebSocket.Upgrade,
		)
		app.Get("/ws", websocket.New(r.WebSocket.HandleWebSocket))
	}
}
