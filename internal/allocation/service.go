// Package allocation drains funds from prioritized account groups on a
// first-come-first-served basis.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beetlebooks/beetlebooks/internal/books"
	"github.com/beetlebooks/beetlebooks/internal/engine"
	"github.com/beetlebooks/beetlebooks/internal/posting"
)

var (
	// ErrInsufficientFunds is the business outcome of a request whose
	// candidate accounts cannot cover the amount. Callers may retry later.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAllocationInvariant indicates the allocation loop emitted amounts
	// that do not reconcile with the request totals. Always a defect.
	ErrAllocationInvariant = errors.New("allocation invariant violated")
)

// Request asks for amount to be moved into debit_account, drained from
// accounts matching the globs. Globs are priority groups: earlier globs are
// exhausted before later ones are touched.
type Request struct {
	DebitAccount       string
	CreditAccountGlobs []string
	CommodityUnit      string
	Amount             int64
	Code               uint16
	CorrelationID      engine.ID
}

// Service plans allocations. It only reads ledger state; the caller submits
// the returned transactions through the posting service.
type Service struct {
	repo     books.Repository
	resolver *books.Resolver
	eng      engine.Engine
	logger   *slog.Logger
}

// NewService wires an allocation service.
func NewService(repo books.Repository, resolver *books.Resolver, eng engine.Engine, logger *slog.Logger) *Service {
	return &Service{repo: repo, resolver: resolver, eng: eng, logger: logger}
}

// Prepare turns requests into concrete transactions. The call is
// all-or-nothing: if any request cannot be covered, no transactions are
// returned. Balances drained by earlier requests are seen as drained by
// later ones within the same call.
func (s *Service) Prepare(ctx context.Context, requests []Request) ([]posting.LogicalTransaction, error) {
	if len(requests) == 0 {
		return nil, errors.New("at least one allocation request required")
	}
	for i, req := range requests {
		if req.Amount <= 0 {
			return nil, fmt.Errorf("request %d: %w", i, posting.ErrNonPositiveAmount)
		}
		if len(req.CreditAccountGlobs) == 0 {
			return nil, fmt.Errorf("request %d: at least one credit account glob required", i)
		}
	}

	balances := make(map[engine.ID]int64)
	var out []posting.LogicalTransaction
	requested := make(map[string]int64)

	for i, req := range requests {
		requested[req.CommodityUnit] += req.Amount
		txs, err := s.prepareOne(ctx, req, balances)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		out = append(out, txs...)
	}

	// sum reconciliation: every requested amount must be covered exactly
	emitted := make(map[string]int64)
	for _, tx := range out {
		emitted[tx.CommodityUnit] += tx.Amount
	}
	for unit, want := range requested {
		if emitted[unit] != want {
			s.logger.Error("allocation sums do not reconcile",
				slog.String("unit", unit),
				slog.Int64("requested", want),
				slog.Int64("emitted", emitted[unit]))
			return nil, fmt.Errorf("%w: commodity %s requested %d, emitted %d",
				ErrAllocationInvariant, unit, want, emitted[unit])
		}
	}
	return out, nil
}

func (s *Service) prepareOne(ctx context.Context, req Request, balances map[engine.ID]int64) ([]posting.LogicalTransaction, error) {
	commodity, err := s.resolver.ResolveCommodity(ctx, req.CommodityUnit)
	if err != nil {
		return nil, err
	}

	remaining := req.Amount
	var out []posting.LogicalTransaction
	for _, glob := range req.CreditAccountGlobs {
		if remaining == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		accounts, err := s.repo.AccountsByGlobAndCommodity(ctx, glob, commodity.ID)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", glob, err)
		}
		if err := s.fetchBalances(ctx, accounts, balances); err != nil {
			return nil, err
		}

		// accounts arrive sorted by name, which fixes the drain order
		for _, account := range accounts {
			if remaining == 0 {
				break
			}
			balance := balances[account.EngineID]
			if balance <= 0 {
				continue
			}
			take := remaining
			if balance < take {
				take = balance
			}
			out = append(out, posting.LogicalTransaction{
				DebitAccount:  req.DebitAccount,
				CreditAccount: account.Name,
				CommodityUnit: req.CommodityUnit,
				Amount:        take,
				Code:          req.Code,
				CorrelationID: req.CorrelationID,
			})
			balances[account.EngineID] -= take
			remaining -= take
		}
	}

	if remaining > 0 {
		return nil, fmt.Errorf("%w: %d of %d uncovered", ErrInsufficientFunds, remaining, req.Amount)
	}
	return out, nil
}

// fetchBalances bulk-loads balances for accounts not seen yet in this call.
func (s *Service) fetchBalances(ctx context.Context, accounts []books.Account, balances map[engine.ID]int64) error {
	var missing []engine.ID
	for _, a := range accounts {
		if _, ok := balances[a.EngineID]; !ok {
			missing = append(missing, a.EngineID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	fetched, err := s.eng.LookupAccounts(ctx, missing)
	if err != nil {
		return fmt.Errorf("lookup balances: %w", err)
	}
	for _, a := range fetched {
		balances[a.ID] = a.Balance()
	}
	// accounts the engine does not know about stay at zero
	for _, id := range missing {
		if _, ok := balances[id]; !ok {
			balances[id] = 0
		}
	}
	return nil
}
