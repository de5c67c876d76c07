package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/service"
)

func TestFromServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"Validation", &service.ValidationError{Field: "content", Reason: "must not be empty"}, fiber.StatusBadRequest, "validation_failed"},
		{"Not authenticated", service.ErrNotAuthenticated, fiber.StatusUnauthorized, "not_authenticated"},
		{"Not a member", service.ErrNotAMember, fiber.StatusForbidden, "not_a_member"},
		{"Forbidden", service.ErrForbidden, fiber.StatusForbidden, "forbidden"},
		{"Not found", service.ErrNotFound, fiber.StatusNotFound, "not_found"},
		{"Storage", service.ErrStorage, fiber.StatusServiceUnavailable, "operation_failed"},
		{"Storage not configured", service.ErrStorageNotConfigured, fiber.StatusServiceUnavailable, "storage_not_configured"},
		{"Wrapped", fmt.Errorf("load: %w", service.ErrNotFound), fiber.StatusNotFound, "not_found"},
		{"Unknown", io.ErrUnexpectedEOF, fiber.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return FromServiceError(c, tt.err)
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return FromServiceError(c, &service.ValidationError{Field: "emoji", Reason: "not a valid emoji"})
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Field != "emoji" || body.Error != "not a valid emoji" {
		t.Errorf("body = %+v", body)
	}
}

func TestLocalUUID(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		value   interface{}
		wantErr bool
	}{
		{"Present", id, false},
		{"Missing", nil, true},
		{"Wrong type", "not-a-uuid", true},
		{"Nil uuid", uuid.Nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			var got uuid.UUID
			var gotErr error
			app.Get("/", func(c *fiber.Ctx) error {
				if tt.value != nil {
					c.Locals("userID", tt.value)
				}
				got, gotErr = LocalUUID(c, "userID")
				return c.SendStatus(fiber.StatusNoContent)
			})
			if _, err := app.Test(httptest.NewRequest("GET", "/", nil)); err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if (gotErr != nil) != tt.wantErr {
				t.Errorf("LocalUUID() error = %v, wantErr %v", gotErr, tt.wantErr)
			}
			if !tt.wantErr && got != id {
				t.Errorf("LocalUUID() = %v, want %v", got, id)
			}
		})
	}
}
