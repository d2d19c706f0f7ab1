package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/beetlebooks/beetlebooks/internal/allocation"
)

// RegisterAllocationRoutes adds the FCFS prepare endpoint. Prepare only
// reads ledger state, but it sits behind the same auth as the write routes
// because its output is meant to feed straight into /add.
func RegisterAllocationRoutes(r fiber.Router, h *allocation.Handler) {
	r.Post("/add/prepare", h.Prepare)
}
