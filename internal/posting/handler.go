package posting

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/beetlebooks/beetlebooks/internal/books"
	"github.com/beetlebooks/beetlebooks/internal/engine"
	"github.com/beetlebooks/beetlebooks/internal/validate"
)

// Handler exposes the posting HTTP endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds a posting handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transactionRequest struct {
	DebitAccount  string `json:"debit_account" validate:"required,account_name"`
	CreditAccount string `json:"credit_account" validate:"required,account_name"`
	Unit          string `json:"unit" validate:"required"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Code          uint16 `json:"code"`
	CorrelationID string `json:"correlation_id"`
	TransferID    string `json:"transfer_id"`
	OccurredAt    uint64 `json:"occurred_at"`
}

type addRequest struct {
	Transactions []transactionRequest `json:"transactions" validate:"required,min=1,dive"`
}

// Add submits a batch of logical transactions.
func (h *Handler) Add(c *fiber.Ctx) error {
	var req addRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	txs := make([]LogicalTransaction, 0, len(req.Transactions))
	for _, t := range req.Transactions {
		tx := LogicalTransaction{
			DebitAccount:  t.DebitAccount,
			CreditAccount: t.CreditAccount,
			CommodityUnit: t.Unit,
			Amount:        t.Amount,
			Code:          t.Code,
			OccurredAt:    t.OccurredAt,
		}
		var err error
		if tx.CorrelationID, err = parseOptionalID(t.CorrelationID); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if tx.TransferID, err = parseOptionalID(t.TransferID); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		txs = append(txs, tx)
	}

	receipt, err := h.service.Submit(c.UserContext(), txs)
	if err != nil {
		var reject *engine.RejectError
		if errors.As(err, &reject) {
			// reason codes preserved; transfers lists what committed
			// before the rejected chunk
			return c.Status(http.StatusBadGateway).JSON(fiber.Map{
				"error":     err.Error(),
				"transfers": receipt.Transfers,
			})
		}
		return mapPostingError(err)
	}
	return c.Status(http.StatusCreated).JSON(receipt)
}

func parseOptionalID(s string) (engine.ID, error) {
	if s == "" {
		return engine.ID{}, nil
	}
	return engine.ParseHex(s)
}

// mapPostingError translates non-engine service failures to HTTP errors.
func mapPostingError(err error) error {
	switch {
	case errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrNonPositiveAmount),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrUnbalancedPosting),
		errors.Is(err, books.ErrInvalidAccountName),
		errors.Is(err, engine.ErrMalformedIdentifier):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
