package books

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/beetlebooks/beetlebooks/internal/engine"
)

// Handler exposes metadata listing and migration endpoints.
type Handler struct {
	repo Repository
}

// NewHandler builds a books handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// Accounts lists every known account name.
func (h *Handler) Accounts(c *fiber.Ctx) error {
	names, err := h.repo.ListAccountNames(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if names == nil {
		names = []string{}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"accounts": names})
}

// Commodities lists every known commodity unit.
func (h *Handler) Commodities(c *fiber.Ctx) error {
	units, err := h.repo.ListCommodityUnits(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if units == nil {
		units = []string{}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"commodities": units})
}

type migrateCommodity struct {
	ID           int32  `json:"id"`
	LedgerID     int32  `json:"ledger_id"`
	Unit         string `json:"unit"`
	DecimalPlace int32  `json:"decimal_place"`
}

type migrateAccount struct {
	Name        string `json:"name"`
	EngineID    string `json:"engine_id"`
	CommodityID int32  `json:"commodity_id"`
}

type migrateRequest struct {
	Commodities []migrateCommodity `json:"commodities"`
	Accounts    []migrateAccount   `json:"accounts"`
}

// Migrate bulk-imports metadata from an existing ledger. Engine-side
// accounts are expected to exist already; only the name mapping is written.
func (h *Handler) Migrate(c *fiber.Ctx) error {
	var req migrateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	knownCommodities := make(map[int32]struct{}, len(req.Commodities))
	for _, mc := range req.Commodities {
		knownCommodities[mc.ID] = struct{}{}
	}

	accounts := make([]Account, 0, len(req.Accounts))
	for _, ma := range req.Accounts {
		if !ValidAccountName(ma.Name) {
			return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("invalid account name %q", ma.Name))
		}
		id, err := engine.ParseHex(ma.EngineID)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if _, ok := knownCommodities[ma.CommodityID]; !ok {
			return fiber.NewError(http.StatusBadRequest,
				fmt.Sprintf("account %q references commodity %d missing from the listing", ma.Name, ma.CommodityID))
		}
		accounts = append(accounts, Account{
			Name:        ma.Name,
			EngineID:    id,
			CommodityID: ma.CommodityID,
		})
	}

	ctx := c.UserContext()
	for _, mc := range req.Commodities {
		err := h.repo.ImportCommodity(ctx, Commodity{
			ID:           mc.ID,
			LedgerID:     mc.LedgerID,
			Unit:         mc.Unit,
			DecimalPlace: mc.DecimalPlace,
		})
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	if err := h.repo.ImportAccounts(ctx, accounts); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"commodities": len(req.Commodities),
		"accounts":    len(accounts),
	})
}
