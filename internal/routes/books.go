package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/beetlebooks/beetlebooks/internal/books"
)

// RegisterBooksReadRoutes adds the metadata listing endpoints.
func RegisterBooksReadRoutes(r fiber.Router, h *books.Handler) {
	r.Get("/accounts", h.Accounts)
	r.Get("/commodities", h.Commodities)
}

// RegisterMigrateRoute adds the bulk metadata import endpoint, gated by
// ALLOW_MIGRATE.
func RegisterMigrateRoute(r fiber.Router, h *books.Handler, d Deps) {
	r.Put("/migrate", requireEnabled(d.Cfg.AllowMigrate, "migration"), h.Migrate)
}
