// Package reporting reconstructs transactions and balances from the ledger
// engine's per-account transfer and snapshot streams.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/beetlebooks/beetlebooks/internal/books"
	"github.com/beetlebooks/beetlebooks/internal/engine"
)

// ErrCommodityNotFound indicates a transfer whose ledger number maps to no
// known commodity. Every committed transfer must map, so this is internal.
var ErrCommodityNotFound = errors.New("transfer ledger number maps to no commodity")

// TransactionQuery selects transfers touching accounts matching Glob inside
// a closed unix-millisecond window. A zero ToMillis leaves the window open.
type TransactionQuery struct {
	Glob        string
	FromMillis  uint64
	ToMillis    uint64
	OldestFirst bool
}

// Leg is one side of a projected transaction. Debit legs carry positive
// amounts, credit legs the exact negation.
type Leg struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
	Display string `json:"display_amount"`
}

// Transaction is one reconstructed double-entry movement.
type Transaction struct {
	ID            string `json:"id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Unit          string `json:"unit"`
	Code          uint16 `json:"code"`
	Millis        uint64 `json:"timestamp"`
	Debit         Leg    `json:"debit"`
	Credit        Leg    `json:"credit"`
}

// Service answers transaction and balance queries.
type Service struct {
	repo   books.Repository
	eng    engine.Engine
	logger *slog.Logger
}

// NewService wires a reporting service.
func NewService(repo books.Repository, eng engine.Engine, logger *slog.Logger) *Service {
	return &Service{repo: repo, eng: eng, logger: logger}
}

// Transactions reconstructs every transfer touching accounts matching the
// query glob. Each transfer is seen from both of its legs; deduplication by
// transfer id collapses the two views.
func (s *Service) Transactions(ctx context.Context, q TransactionQuery) ([]Transaction, error) {
	accounts, err := s.repo.AccountsByGlob(ctx, q.Glob)
	if err != nil {
		return nil, err
	}

	seen := make(map[engine.ID]engine.Transfer)
	for _, account := range accounts {
		if err := s.collectTransfers(ctx, account.EngineID, q, seen); err != nil {
			return nil, fmt.Errorf("account %s: %w", account.Name, err)
		}
	}

	names, err := s.resolveNames(ctx, accounts, seen)
	if err != nil {
		return nil, err
	}
	commodities, err := s.commoditiesByLedger(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Transaction, 0, len(seen))
	for _, t := range seen {
		commodity, ok := commodities[t.Ledger]
		if !ok {
			s.logger.Error("transfer on unknown ledger",
				slog.String("transfer", t.ID.Hex()),
				slog.Int("ledger", int(t.Ledger)))
			return nil, fmt.Errorf("%w: ledger %d", ErrCommodityNotFound, t.Ledger)
		}
		amount := int64(t.Amount)
		tx := Transaction{
			ID:     t.ID.Hex(),
			Unit:   commodity.Unit,
			Code:   t.Code,
			Millis: engine.MillisFromTimestamp(t.Timestamp),
			Debit: Leg{
				Account: names[t.DebitAccountID],
				Amount:  amount,
				Display: DisplayAmount(amount, commodity.DecimalPlace),
			},
			Credit: Leg{
				Account: names[t.CreditAccountID],
				Amount:  -amount,
				Display: DisplayAmount(-amount, commodity.DecimalPlace),
			},
		}
		if !t.UserData128.IsZero() {
			tx.CorrelationID = t.UserData128.Hex()
		}
		out = append(out, tx)
	}

	sort.Slice(out, func(i, j int) bool {
		if q.OldestFirst {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out, nil
}

func less(a, b Transaction) bool {
	if a.Millis != b.Millis {
		return a.Millis < b.Millis
	}
	return a.ID < b.ID
}

// collectTransfers pages through one account's transfer stream. A page that
// comes back full may be truncated, so the window is narrowed to just below
// the oldest timestamp seen and the fetch repeated; the one-tick overlap at
// the boundary is absorbed by the dedupe map.
func (s *Service) collectTransfers(ctx context.Context, id engine.ID, q TransactionQuery, seen map[engine.ID]engine.Transfer) error {
	min := engine.TimestampFromMillis(q.FromMillis)
	max := uint64(0)
	if q.ToMillis > 0 {
		max = engine.EndOfMillisecond(q.ToMillis)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.eng.GetAccountTransfers(ctx, engine.AccountFilter{
			AccountID:    id,
			TimestampMin: min,
			TimestampMax: max,
			Limit:        engine.MaxBatchSize,
			Debits:       true,
			Credits:      true,
			Reversed:     true,
		})
		if err != nil {
			return err
		}
		for _, t := range page {
			if _, dup := seen[t.ID]; !dup {
				seen[t.ID] = t
			}
		}
		if len(page) < engine.MaxBatchSize {
			return nil
		}
		// descending order: the page's last entry is the oldest fetched
		oldest := page[len(page)-1].Timestamp
		if oldest <= min {
			return nil
		}
		max = oldest - engine.Tick
	}
}

// resolveNames maps every engine id referenced by a collected transfer to an
// account name. Counterparties outside the queried set are resolved in one
// bulk lookup; a genuinely unknown id resolves to an empty name rather than
// failing the query.
func (s *Service) resolveNames(ctx context.Context, known []books.Account, seen map[engine.ID]engine.Transfer) (map[engine.ID]string, error) {
	names := make(map[engine.ID]string, len(known))
	for _, a := range known {
		names[a.EngineID] = a.Name
	}

	var missing []engine.ID
	for _, t := range seen {
		for _, id := range []engine.ID{t.DebitAccountID, t.CreditAccountID} {
			if _, ok := names[id]; !ok {
				names[id] = ""
				missing = append(missing, id)
			}
		}
	}
	if len(missing) == 0 {
		return names, nil
	}

	resolved, err := s.repo.AccountsByEngineIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("resolve counterparties: %w", err)
	}
	for _, a := range resolved {
		names[a.EngineID] = a.Name
	}
	return names, nil
}

func (s *Service) commoditiesByLedger(ctx context.Context) (map[uint32]books.Commodity, error) {
	commodities, err := s.repo.ListCommodities(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]books.Commodity, len(commodities))
	for _, c := range commodities {
		out[uint32(c.LedgerID)] = c
	}
	return out, nil
}
