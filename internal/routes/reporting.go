package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/beetlebooks/beetlebooks/internal/reporting"
)

// RegisterReportingRoutes adds the read-side query endpoints.
func RegisterReportingRoutes(r fiber.Router, h *reporting.Handler) {
	r.Post("/transactions", h.Transactions)
	r.Post("/balances", h.Balances)
	r.Post("/income-statements", h.IncomeStatements)
}
