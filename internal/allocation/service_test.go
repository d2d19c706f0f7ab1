package allocation

import (
	"context"
	"errors"
	"testing"

	"github.com/beetlebooks/beetlebooks/internal/books"
	"github.com/beetlebooks/beetlebooks/internal/engine"
	"github.com/beetlebooks/beetlebooks/internal/logging"
	"github.com/beetlebooks/beetlebooks/internal/posting"
)

type fixture struct {
	svc      *Service
	post     *posting.Service
	resolver *books.Resolver
	eng      engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := books.NewMemoryRepository()
	eng := engine.NewInMemory()
	resolver := books.NewResolver(repo, eng, nil, 0, logging.Discard())
	return &fixture{
		svc:      NewService(repo, resolver, eng, logging.Discard()),
		post:     posting.NewService(resolver, eng, logging.Discard()),
		resolver: resolver,
		eng:      eng,
	}
}

// fund gives an asset account a positive balance via an equity counterpart.
func (f *fixture) fund(t *testing.T, account string, amount int64) {
	t.Helper()
	_, err := f.post.Submit(context.Background(), []posting.LogicalTransaction{{
		DebitAccount:  account,
		CreditAccount: "equity:opening",
		CommodityUnit: "USD",
		Amount:        amount,
	}})
	if err != nil {
		t.Fatalf("fund %s: %v", account, err)
	}
}

func TestPrepareDrainsInPriorityOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "assets:bank:first", 100)
	f.fund(t, "assets:bank:second", 250)

	txs, err := f.svc.Prepare(ctx, []Request{{
		DebitAccount:       "expenses:rent",
		CreditAccountGlobs: []string{"assets:bank:first", "assets:bank:second"},
		CommodityUnit:      "USD",
		Amount:             300,
	}})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].CreditAccount != "assets:bank:first" || txs[0].Amount != 100 {
		t.Fatalf("first allocation wrong: %+v", txs[0])
	}
	if txs[1].CreditAccount != "assets:bank:second" || txs[1].Amount != 200 {
		t.Fatalf("second allocation wrong: %+v", txs[1])
	}
}

func TestPrepareStopsOnceCovered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "assets:bank:first", 400)
	f.fund(t, "assets:bank:second", 250)

	txs, err := f.svc.Prepare(ctx, []Request{{
		DebitAccount:       "expenses:rent",
		CreditAccountGlobs: []string{"assets:bank:**"},
		CommodityUnit:      "USD",
		Amount:             300,
	}})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	if txs[0].Amount != 300 {
		t.Fatalf("expected 300 from the first account, got %d", txs[0].Amount)
	}
}

func TestPrepareInsufficientFundsEmitsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "assets:bank:first", 100)

	txs, err := f.svc.Prepare(ctx, []Request{{
		DebitAccount:       "expenses:rent",
		CreditAccountGlobs: []string{"assets:bank:**"},
		CommodityUnit:      "USD",
		Amount:             300,
	}})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected no transactions, got %d", len(txs))
	}
}

func TestPrepareFailingRequestPoisonsWholeCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "assets:bank:first", 500)

	txs, err := f.svc.Prepare(ctx, []Request{
		{
			DebitAccount:       "expenses:rent",
			CreditAccountGlobs: []string{"assets:bank:**"},
			CommodityUnit:      "USD",
			Amount:             100,
		},
		{
			DebitAccount:       "expenses:food",
			CreditAccountGlobs: []string{"assets:bank:**"},
			CommodityUnit:      "USD",
			Amount:             10000,
		},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("no partial results on failure, got %d transactions", len(txs))
	}
}

func TestPrepareSeesEarlierRequestsDrains(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "assets:bank:first", 100)

	// two requests of 100 against a single account holding 100: the second
	// must observe the drain from the first
	_, err := f.svc.Prepare(ctx, []Request{
		{DebitAccount: "expenses:rent", CreditAccountGlobs: []string{"assets:bank:**"}, CommodityUnit: "USD", Amount: 100},
		{DebitAccount: "expenses:food", CreditAccountGlobs: []string{"assets:bank:**"}, CommodityUnit: "USD", Amount: 100},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestPrepareSkipsRepeatedAccountsAcrossGlobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "assets:bank:first", 100)
	f.fund(t, "assets:bank:second", 100)

	// the first account appears in both priority groups but must only be
	// drained once
	txs, err := f.svc.Prepare(ctx, []Request{{
		DebitAccount:       "expenses:rent",
		CreditAccountGlobs: []string{"assets:bank:first", "assets:bank:**"},
		CommodityUnit:      "USD",
		Amount:             200,
	}})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	total := txs[0].Amount + txs[1].Amount
	if total != 200 {
		t.Fatalf("expected 200 total, got %d", total)
	}
	if txs[0].CreditAccount == txs[1].CreditAccount {
		t.Fatalf("account drained twice: %s", txs[0].CreditAccount)
	}
}

func TestPreparedTransactionsSubmitCleanly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "assets:bank:first", 100)
	f.fund(t, "assets:bank:second", 250)

	txs, err := f.svc.Prepare(ctx, []Request{{
		DebitAccount:       "expenses:rent",
		CreditAccountGlobs: []string{"assets:bank:**"},
		CommodityUnit:      "USD",
		Amount:             300,
	}})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := f.post.Submit(ctx, txs); err != nil {
		t.Fatalf("submit prepared transactions: %v", err)
	}

	rent, _ := f.resolver.Resolve(ctx, "expenses:rent", "USD")
	accounts, err := f.eng.LookupAccounts(ctx, []engine.ID{rent.Account.EngineID})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := accounts[0].Balance(); got != 300 {
		t.Fatalf("rent balance: expected 300, got %d", got)
	}
}
