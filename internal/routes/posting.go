package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/beetlebooks/beetlebooks/internal/posting"
)

// RegisterPostingRoutes adds the transaction submission endpoint, gated by
// ALLOW_ADD.
func RegisterPostingRoutes(r fiber.Router, h *posting.Handler, d Deps) {
	r.Put("/add", requireEnabled(d.Cfg.AllowAdd, "writing to the ledger"), h.Add)
}
