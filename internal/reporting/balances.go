package reporting

import (
	"context"
	"fmt"

	"github.com/beetlebooks/beetlebooks/internal/books"
	"github.com/beetlebooks/beetlebooks/internal/engine"
)

// Balance is one account's net position, debits minus credits.
type Balance struct {
	Account string `json:"account"`
	Unit    string `json:"unit"`
	Amount  int64  `json:"amount"`
	Display string `json:"display_amount"`
}

// IncomeStatement is one account's balance sampled at a series of dates.
type IncomeStatement struct {
	Account string  `json:"account"`
	Unit    string  `json:"unit"`
	Series  []Point `json:"series"`
}

// Point is a balance at one sample date.
type Point struct {
	Millis  uint64 `json:"timestamp"`
	Amount  int64  `json:"amount"`
	Display string `json:"display_amount"`
}

// Balances reports the position of every account matching the glob. A zero
// atMillis reads the live position; otherwise the latest balance snapshot at
// or before the date is used, and an account without snapshots reports zero.
func (s *Service) Balances(ctx context.Context, glob string, atMillis uint64) ([]Balance, error) {
	accounts, err := s.repo.AccountsByGlob(ctx, glob)
	if err != nil {
		return nil, err
	}
	commodities, err := s.commoditiesByID(ctx)
	if err != nil {
		return nil, err
	}

	amounts := make(map[engine.ID]int64, len(accounts))
	if atMillis == 0 {
		if err := s.liveBalances(ctx, accounts, amounts); err != nil {
			return nil, err
		}
	} else {
		for _, a := range accounts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			amount, err := s.balanceAsOf(ctx, a.EngineID, atMillis)
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", a.Name, err)
			}
			amounts[a.EngineID] = amount
		}
	}

	out := make([]Balance, 0, len(accounts))
	for _, a := range accounts {
		commodity := commodities[a.CommodityID]
		amount := amounts[a.EngineID]
		out = append(out, Balance{
			Account: a.Name,
			Unit:    commodity.Unit,
			Amount:  amount,
			Display: DisplayAmount(amount, commodity.DecimalPlace),
		})
	}
	return out, nil
}

// IncomeStatements samples each matching account's balance at every supplied
// date, in the caller's date order.
func (s *Service) IncomeStatements(ctx context.Context, glob string, datesMillis []uint64) ([]IncomeStatement, error) {
	accounts, err := s.repo.AccountsByGlob(ctx, glob)
	if err != nil {
		return nil, err
	}
	commodities, err := s.commoditiesByID(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]IncomeStatement, 0, len(accounts))
	for _, a := range accounts {
		commodity := commodities[a.CommodityID]
		statement := IncomeStatement{
			Account: a.Name,
			Unit:    commodity.Unit,
			Series:  make([]Point, 0, len(datesMillis)),
		}
		for _, date := range datesMillis {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			amount, err := s.balanceAsOf(ctx, a.EngineID, date)
			if err != nil {
				return nil, fmt.Errorf("account %s: %w", a.Name, err)
			}
			statement.Series = append(statement.Series, Point{
				Millis:  date,
				Amount:  amount,
				Display: DisplayAmount(amount, commodity.DecimalPlace),
			})
		}
		out = append(out, statement)
	}
	return out, nil
}

// balanceAsOf reads the latest balance snapshot at or before the date. An
// account with no snapshots yet has zero balance, not an error.
func (s *Service) balanceAsOf(ctx context.Context, id engine.ID, atMillis uint64) (int64, error) {
	snapshots, err := s.eng.GetAccountBalances(ctx, engine.AccountFilter{
		AccountID:    id,
		TimestampMax: engine.EndOfMillisecond(atMillis),
		Limit:        1,
		Debits:       true,
		Credits:      true,
		Reversed:     true,
	})
	if err != nil {
		return 0, err
	}
	if len(snapshots) == 0 {
		return 0, nil
	}
	return snapshots[0].Net(), nil
}

func (s *Service) liveBalances(ctx context.Context, accounts []books.Account, amounts map[engine.ID]int64) error {
	if len(accounts) == 0 {
		return nil
	}
	ids := make([]engine.ID, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.EngineID)
	}
	fetched, err := s.eng.LookupAccounts(ctx, ids)
	if err != nil {
		return fmt.Errorf("lookup balances: %w", err)
	}
	for _, a := range fetched {
		amounts[a.ID] = a.Balance()
	}
	return nil
}

func (s *Service) commoditiesByID(ctx context.Context) (map[int32]books.Commodity, error) {
	commodities, err := s.repo.ListCommodities(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int32]books.Commodity, len(commodities))
	for _, c := range commodities {
		out[c.ID] = c
	}
	return out, nil
}
