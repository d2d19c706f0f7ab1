package posting

import (
	"context"
	"errors"
	"testing"

	"github.com/beetlebooks/beetlebooks/internal/books"
	"github.com/beetlebooks/beetlebooks/internal/engine"
	"github.com/beetlebooks/beetlebooks/internal/logging"
)

func newTestService(t *testing.T) (*Service, engine.Engine, *books.Resolver) {
	t.Helper()
	repo := books.NewMemoryRepository()
	eng := engine.NewInMemory()
	resolver := books.NewResolver(repo, eng, nil, 0, logging.Discard())
	return NewService(resolver, eng, logging.Discard()), eng, resolver
}

func TestBuildValidation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	if _, err := s.Build(ctx, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}

	_, err := s.Build(ctx, []LogicalTransaction{{
		DebitAccount: "expenses:rent", CreditAccount: "assets:cash", CommodityUnit: "USD", Amount: 0,
	}})
	if !errors.Is(err, ErrNonPositiveAmount) {
		t.Fatalf("expected ErrNonPositiveAmount, got %v", err)
	}

	_, err = s.Build(ctx, []LogicalTransaction{{
		DebitAccount: "assets:cash", CreditAccount: "assets:cash", CommodityUnit: "USD", Amount: 10,
	}})
	if !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
}

func TestBuildResolvesLegsAndLedger(t *testing.T) {
	ctx := context.Background()
	s, _, resolver := newTestService(t)

	correlation := engine.NewID()
	transfers, err := s.Build(ctx, []LogicalTransaction{{
		DebitAccount:  "expenses:rent",
		CreditAccount: "assets:cash",
		CommodityUnit: "USD",
		Amount:        500,
		Code:          7,
		CorrelationID: correlation,
		OccurredAt:    1700000000000,
	}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(transfers))
	}

	tr := transfers[0]
	if tr.ID.IsZero() {
		t.Fatalf("expected a fresh transfer id")
	}
	if tr.Amount != 500 || tr.Code != 7 || tr.UserData64 != 1700000000000 {
		t.Fatalf("transfer fields mangled: %+v", tr)
	}
	if tr.UserData128 != correlation {
		t.Fatalf("correlation id not carried")
	}

	debit, err := resolver.Resolve(ctx, "expenses:rent", "USD")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tr.DebitAccountID != debit.Account.EngineID {
		t.Fatalf("debit leg resolved to the wrong account")
	}
	if tr.Ledger != uint32(debit.Commodity.LedgerID) {
		t.Fatalf("ledger must follow the debit account's commodity")
	}
}

func dummyTransfers(n int) []engine.Transfer {
	a, b := engine.NewID(), engine.NewID()
	out := make([]engine.Transfer, n)
	for i := range out {
		out[i] = engine.Transfer{ID: engine.NewID(), DebitAccountID: a, CreditAccountID: b, Amount: 1, Ledger: 1}
	}
	return out
}

func TestChunkShape(t *testing.T) {
	cases := []struct {
		k      int
		chunks int
	}{
		{1, 1},
		{2, 1},
		{engine.MaxBatchSize, 1},
		{engine.MaxBatchSize + 1, 2},
		{2 * engine.MaxBatchSize, 2},
	}
	for _, c := range cases {
		chunks := Chunk(dummyTransfers(c.k))
		if len(chunks) != c.chunks {
			t.Fatalf("k=%d: expected %d chunks, got %d", c.k, c.chunks, len(chunks))
		}
		total := 0
		for _, chunk := range chunks {
			total += len(chunk)
			for i, tr := range chunk {
				last := i == len(chunk)-1
				if tr.Flags.Linked == last {
					t.Fatalf("k=%d: transfer %d linked=%v, want %v", c.k, i, tr.Flags.Linked, !last)
				}
			}
		}
		if total != c.k {
			t.Fatalf("k=%d: chunks dropped transfers, got %d", c.k, total)
		}
	}
}

func TestSubmitMovesBalances(t *testing.T) {
	ctx := context.Background()
	s, eng, resolver := newTestService(t)

	receipt, err := s.Submit(ctx, []LogicalTransaction{{
		DebitAccount: "expenses:rent", CreditAccount: "assets:cash", CommodityUnit: "USD", Amount: 500,
	}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(receipt.Transfers) != 1 {
		t.Fatalf("expected 1 committed transfer, got %d", len(receipt.Transfers))
	}
	if _, err := engine.ParseHex(receipt.Transfers[0]); err != nil {
		t.Fatalf("receipt id not parseable: %v", err)
	}

	cash, _ := resolver.Resolve(ctx, "assets:cash", "USD")
	rent, _ := resolver.Resolve(ctx, "expenses:rent", "USD")
	accounts, err := eng.LookupAccounts(ctx, []engine.ID{cash.Account.EngineID, rent.Account.EngineID})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	balances := map[engine.ID]int64{}
	for _, a := range accounts {
		balances[a.ID] = a.Balance()
	}
	if balances[cash.Account.EngineID] != -500 {
		t.Fatalf("cash: expected -500, got %d", balances[cash.Account.EngineID])
	}
	if balances[rent.Account.EngineID] != 500 {
		t.Fatalf("rent: expected 500, got %d", balances[rent.Account.EngineID])
	}
}

func TestSubmitRejectionReportsCommittedPrefix(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)

	// revenues accounts cap debits at credits, so debiting a fresh one fails
	receipt, err := s.Submit(ctx, []LogicalTransaction{{
		DebitAccount: "revenues:salary", CreditAccount: "assets:cash", CommodityUnit: "USD", Amount: 100,
	}})
	var reject *engine.RejectError
	if !errors.As(err, &reject) {
		t.Fatalf("expected reject error, got %v", err)
	}
	if len(receipt.Transfers) != 0 {
		t.Fatalf("nothing committed, yet receipt lists %d transfers", len(receipt.Transfers))
	}
	if reject.Results[0].Code != engine.ResultExceedsCredits {
		t.Fatalf("expected %s, got %s", engine.ResultExceedsCredits, reject.Results[0].Code)
	}
}

func TestPostingPairTransaction(t *testing.T) {
	pair := PostingPair{
		Debit:  Posting{Account: "expenses:rent", CommodityUnit: "USD", Amount: 500},
		Credit: Posting{Account: "assets:cash", CommodityUnit: "USD", Amount: -500},
	}
	tx, err := pair.Transaction()
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if tx.Amount != 500 || tx.DebitAccount != "expenses:rent" || tx.CreditAccount != "assets:cash" {
		t.Fatalf("pair mapped wrong: %+v", tx)
	}

	bad := []PostingPair{
		{Debit: Posting{Account: "a:b", CommodityUnit: "USD", Amount: -500}, Credit: Posting{Account: "c:d", CommodityUnit: "USD", Amount: 500}},
		{Debit: Posting{Account: "a:b", CommodityUnit: "USD", Amount: 500}, Credit: Posting{Account: "c:d", CommodityUnit: "USD", Amount: -400}},
		{Debit: Posting{Account: "a:b", CommodityUnit: "USD", Amount: 500}, Credit: Posting{Account: "c:d", CommodityUnit: "EUR", Amount: -500}},
	}
	for i, p := range bad {
		if _, err := p.Transaction(); !errors.Is(err, ErrUnbalancedPosting) {
			t.Fatalf("pair %d: expected ErrUnbalancedPosting, got %v", i, err)
		}
	}
}

func TestSubmitTwoFullChunks(t *testing.T) {
	ctx := context.Background()
	s, eng, resolver := newTestService(t)

	k := 2 * engine.MaxBatchSize
	txs := make([]LogicalTransaction, k)
	for i := range txs {
		txs[i] = LogicalTransaction{
			DebitAccount: "expenses:rent", CreditAccount: "assets:cash", CommodityUnit: "USD", Amount: 1,
		}
	}
	receipt, err := s.Submit(ctx, txs)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(receipt.Transfers) != k {
		t.Fatalf("expected %d committed transfers, got %d", k, len(receipt.Transfers))
	}

	cash, _ := resolver.Resolve(ctx, "assets:cash", "USD")
	accounts, err := eng.LookupAccounts(ctx, []engine.ID{cash.Account.EngineID})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := accounts[0].Balance(); got != -int64(k) {
		t.Fatalf("cash: expected %d, got %d", -k, got)
	}
}
