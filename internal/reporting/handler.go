package reporting

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/beetlebooks/beetlebooks/internal/books"
	"github.com/beetlebooks/beetlebooks/internal/validate"
)

// Handler exposes the reporting HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a reporting handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transactionsRequest struct {
	Accounts    string `json:"accounts" validate:"required,account_glob"`
	From        uint64 `json:"from"`
	To          uint64 `json:"to"`
	OldestFirst bool   `json:"oldest_first"`
}

// Transactions reconstructs the transaction feed for matching accounts.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	var req transactionsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	txs, err := h.service.Transactions(c.UserContext(), TransactionQuery{
		Glob:        req.Accounts,
		FromMillis:  req.From,
		ToMillis:    req.To,
		OldestFirst: req.OldestFirst,
	})
	if err != nil {
		return mapReportingError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": txs})
}

type balancesRequest struct {
	Accounts string `json:"accounts" validate:"required,account_glob"`
	// Date samples the balance at this unix-millisecond instant; zero reads
	// the live position.
	Date uint64 `json:"date"`
}

// Balances reports account positions, live or as of a date.
func (h *Handler) Balances(c *fiber.Ctx) error {
	var req balancesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	balances, err := h.service.Balances(c.UserContext(), req.Accounts, req.Date)
	if err != nil {
		return mapReportingError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"balances": balances})
}

type incomeStatementsRequest struct {
	Accounts string   `json:"accounts" validate:"required,account_glob"`
	Dates    []uint64 `json:"dates" validate:"required,min=1"`
}

// IncomeStatements samples matching accounts' balances at a series of dates.
func (h *Handler) IncomeStatements(c *fiber.Ctx) error {
	var req incomeStatementsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	statements, err := h.service.IncomeStatements(c.UserContext(), req.Accounts, req.Dates)
	if err != nil {
		return mapReportingError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"income_statements": statements})
}

func mapReportingError(err error) error {
	if errors.Is(err, books.ErrInvalidGlob) {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return fiber.NewError(http.StatusInternalServerError, err.Error())
}
