package httpx

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/service"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Error(c *fiber.Ctx, status int, code string, message string) error {
	if message == "" {
		message = "Request failed"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID(c),
	})
}

func BadRequest(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusBadRequest, code, message)
}

func Unauthorized(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusUnauthorized, code, message)
}

func Forbidden(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusForbidden, code, message)
}

func NotFound(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusNotFound, code, message)
}

func Internal(c *fiber.Ctx, code string) error {
	return Error(c, fiber.StatusInternalServerError, code, "Internal server error")
}

// FromServiceError maps the service error taxonomy onto HTTP responses.
// Anything unrecognised is a 500 with no detail.
func FromServiceError(c *fiber.Ctx, err error) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:     ve.Reason,
			Code:      "validation_failed",
			Field:     ve.Field,
			RequestID: requestID(c),
		})
	case errors.Is(err, service.ErrValidation):
		return BadRequest(c, "validation_failed", "Invalid request")
	case errors.Is(err, service.ErrNotAuthenticated):
		return Unauthorized(c, "not_authenticated", "Authentication required")
	case errors.Is(err, service.ErrNotAMember):
		return Forbidden(c, "not_a_member", "Not a member")
	case errors.Is(err, service.ErrForbidden):
		return Forbidden(c, "forbidden", "Not allowed")
	case errors.Is(err, service.ErrNotFound):
		return NotFound(c, "not_found", "Not found")
	case errors.Is(err, service.ErrStorageNotConfigured):
		return Error(c, fiber.StatusServiceUnavailable, "storage_not_configured", "Storage not configured")
	case errors.Is(err, service.ErrStorage):
		return Error(c, fiber.StatusServiceUnavailable, "operation_failed", "Operation failed, please retry")
	default:
		return Internal(c, "internal_error")
	}
}

// LocalUUID reads a uuid stored in fiber locals by the auth middleware.
func LocalUUID(c *fiber.Ctx, key string) (uuid.UUID, error) {
	v := c.Locals(key)
	if v == nil {
		return uuid.Nil, fmt.Errorf("missing local %s", key)
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid local %s", key)
	}
	return id, nil
}

// ParamUUID parses a route parameter.
func ParamUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Params(name))
}
