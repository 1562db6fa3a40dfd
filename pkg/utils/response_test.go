package utils

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func performEnvelopeRequest(t *testing.T, handler fiber.Handler) (*http.Response, map[string]any) {
	t.Helper()

	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading body: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("failed decoding body: %v", err)
	}

	return resp, body
}

func TestSuccessEnvelope(t *testing.T) {
	resp, body := performEnvelopeRequest(t, func(c *fiber.Ctx) error {
		return Success(c, fiber.StatusCreated, fiber.Map{"name": "value"})
	})

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}
	if body["success"] != true {
		t.Fatalf("expected success=true, got %v", body["success"])
	}
	data := body["data"].(map[string]any)
	if data["name"] != "value" {
		t.Fatalf("expected data payload, got %v", body["data"])
	}
}

func TestErrorEnvelope(t *testing.T) {
	resp, body := performEnvelopeRequest(t, func(c *fiber.Ctx) error {
		return Error(c, fiber.StatusUnauthorized, "invalid or expired session")
	})

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.StatusCode)
	}
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body["success"])
	}
	if body["error"] != "invalid or expired session" {
		t.Fatalf("expected error message, got %v", body["error"])
	}
}

func TestPaginatedEnvelope(t *testing.T) {
	resp, body := performEnvelopeRequest(t, func(c *fiber.Ctx) error {
		return Paginated(c, []string{"a", "b"}, 2, 20, 41)
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	pagination := body["pagination"].(map[string]any)
	if pagination["page"] != float64(2) || pagination["limit"] != float64(20) {
		t.Fatalf("unexpected pagination: %v", pagination)
	}
	if pagination["total"] != float64(41) {
		t.Fatalf("expected total=41, got %v", pagination["total"])
	}
	if pagination["totalPages"] != float64(3) {
		t.Fatalf("expected totalPages=3 for 41 items at 20 per page, got %v", pagination["totalPages"])
	}
}
