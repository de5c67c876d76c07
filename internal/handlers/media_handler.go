package handlers

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/noteduco342/courtside-chat/internal/httpx"
	"github.com/noteduco342/courtside-chat/internal/storage"
	"github.com/rs/zerolog"
)

type MediaHandler struct {
	media Media
	log   zerolog.Logger
}

func NewMediaHandler(media Media, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{media: media, log: log.With().Str("component", "media").Logger()}
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, "\"")
	return v
}

// UploadImage stores a chat attachment for the room and returns the url to put
// on a message.
func (h *MediaHandler) UploadImage(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	ids, err := pathIDs(c, "roomId")
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return httpx.BadRequest(c, "missing_file", "file is required")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return httpx.BadRequest(c, "invalid_file", "Invalid upload")
	}
	defer f.Close()

	img, err := h.media.UploadChatImage(c.UserContext(), actor, ids[0], f)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(img)
}

// GetChatImage streams an attachment to a member of its room.
func (h *MediaHandler) GetChatImage(c *fiber.Ctx) error {
	actor, err := actorID(c)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	key := storage.ChatPrefix + "/" + strings.TrimSpace(c.Params("*"))
	obj, st, err := h.media.OpenChatImage(c.UserContext(), actor, key)
	if err != nil {
		return httpx.FromServiceError(c, err)
	}

	if st.ETag != "" {
		c.Set("ETag", "\""+st.ETag+"\"")
		if inm := normalizeETag(c.Get("If-None-Match")); inm != "" && inm == normalizeETag(st.ETag) {
			_ = obj.Close()
			return c.SendStatus(fiber.StatusNotModified)
		}
	}
	if !st.LastModified.IsZero() {
		c.Set("Last-Modified", st.LastModified.UTC().Format(time.RFC1123))
	}

	c.Set("Cache-Control", "private, max-age=31536000, immutable")
	contentType := st.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	c.Set(fiber.HeaderContentType, contentType)

	// Stream through fasthttp so mid-stream failures are visible in logs.
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			_ = obj.Close()
		}()

		n, copyErr := io.Copy(w, obj)
		if copyErr != nil {
			h.log.Warn().Err(copyErr).Str("key", key).Int64("copied", n).Msg("stream failed")
			return
		}
		if err := w.Flush(); err != nil {
			h.log.Debug().Err(err).Str("key", key).Msg("stream flush failed")
		}
	})
	return nil
}
