package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

func newAuthApp(t *testing.T, tokenHash string) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(APIToken(tokenHash))
	app.Get("/resource", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestAPITokenAcceptsValidToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	app := newAuthApp(t, string(hash))

	req := httptest.NewRequest(fiber.MethodGet, "/resource", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer secret-token")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAPITokenRejectsMissingAndWrongTokens(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	app := newAuthApp(t, string(hash))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/resource", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/resource", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer wrong")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", resp.StatusCode)
	}
}

func TestAPITokenDisabledWithoutHash(t *testing.T) {
	app := newAuthApp(t, "")
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/resource", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", resp.StatusCode)
	}
}
