package allocation

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/beetlebooks/beetlebooks/internal/books"
	"github.com/beetlebooks/beetlebooks/internal/engine"
	"github.com/beetlebooks/beetlebooks/internal/posting"
	"github.com/beetlebooks/beetlebooks/internal/validate"
)

// Handler exposes the FCFS prepare endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds an allocation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type prepareRequest struct {
	Requests []requestDTO `json:"requests" validate:"required,min=1,dive"`
}

type requestDTO struct {
	DebitAccount       string   `json:"debit_account" validate:"required,account_name"`
	CreditAccountGlobs []string `json:"credit_account_globs" validate:"required,min=1,dive,account_glob"`
	Unit               string   `json:"unit" validate:"required"`
	Amount             int64    `json:"amount" validate:"required,gt=0"`
	Code               uint16   `json:"code"`
	CorrelationID      string   `json:"correlation_id"`
}

type preparedTransaction struct {
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Unit          string `json:"unit"`
	Amount        int64  `json:"amount"`
	Code          uint16 `json:"code"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Prepare plans FCFS allocations without committing anything.
func (h *Handler) Prepare(c *fiber.Ctx) error {
	var req prepareRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	requests := make([]Request, 0, len(req.Requests))
	for _, r := range req.Requests {
		request := Request{
			DebitAccount:       r.DebitAccount,
			CreditAccountGlobs: r.CreditAccountGlobs,
			CommodityUnit:      r.Unit,
			Amount:             r.Amount,
			Code:               r.Code,
		}
		if r.CorrelationID != "" {
			id, err := engine.ParseHex(r.CorrelationID)
			if err != nil {
				return fiber.NewError(http.StatusBadRequest, err.Error())
			}
			request.CorrelationID = id
		}
		requests = append(requests, request)
	}

	txs, err := h.service.Prepare(c.UserContext(), requests)
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientFunds):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, books.ErrInvalidGlob),
			errors.Is(err, books.ErrInvalidAccountName),
			errors.Is(err, posting.ErrNonPositiveAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	out := make([]preparedTransaction, 0, len(txs))
	for _, tx := range txs {
		p := preparedTransaction{
			DebitAccount:  tx.DebitAccount,
			CreditAccount: tx.CreditAccount,
			Unit:          tx.CommodityUnit,
			Amount:        tx.Amount,
			Code:          tx.Code,
		}
		if !tx.CorrelationID.IsZero() {
			p.CorrelationID = tx.CorrelationID.Hex()
		}
		out = append(out, p)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}
