package engine

import (
	"context"
	"sort"
	"sync"
	"time"
)

type inMemoryEngine struct {
	mu        sync.Mutex
	accounts  map[ID]*Account
	transfers []Transfer
	byID      map[ID]Transfer
	history   map[ID][]AccountBalance
	lastTS    uint64
}

// NewInMemory creates a concurrency-safe in-memory ledger engine useful for
// unit tests. It models the behaviors this service depends on: monotonic
// per-transfer timestamps, linked-chain all-or-nothing application, balance
// constraint flags, history snapshots, and windowed/limited retrieval.
func NewInMemory() Engine {
	return &inMemoryEngine{
		accounts: make(map[ID]*Account),
		byID:     make(map[ID]Transfer),
		history:  make(map[ID][]AccountBalance),
	}
}

func (e *inMemoryEngine) nextTimestamp() uint64 {
	ts := uint64(time.Now().UnixNano())
	if ts <= e.lastTS {
		ts = e.lastTS + 1
	}
	e.lastTS = ts
	return ts
}

func (e *inMemoryEngine) CreateAccounts(_ context.Context, accounts []Account) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var results []EventResult
	for i, a := range accounts {
		if a.ID.IsZero() {
			results = append(results, EventResult{Index: uint32(i), Code: ResultIDMustNotBeZero})
			continue
		}
		if existing, ok := e.accounts[a.ID]; ok {
			if existing.Ledger == a.Ledger && existing.Code == a.Code && existing.Flags == a.Flags {
				results = append(results, EventResult{Index: uint32(i), Code: ResultExists})
			} else {
				results = append(results, EventResult{Index: uint32(i), Code: ResultExistsDifferent})
			}
			continue
		}
		created := a
		created.DebitsPosted = 0
		created.CreditsPosted = 0
		created.Timestamp = e.nextTimestamp()
		e.accounts[a.ID] = &created
	}
	if len(results) > 0 {
		return &RejectError{Op: "create_accounts", Results: results}
	}
	return nil
}

func (e *inMemoryEngine) CreateTransfers(_ context.Context, transfers []Transfer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var results []EventResult
	for start := 0; start < len(transfers); {
		end := start
		for end < len(transfers) && transfers[end].Flags.Linked {
			end++
		}
		chainOpen := end == len(transfers)
		if !chainOpen {
			end++ // chain closes on the first transfer without the linked flag
		}
		chain := transfers[start:end]

		failedAt, code := e.validateChain(chain, chainOpen)
		if failedAt >= 0 {
			for i := range chain {
				c := ResultLinkedEventFailed
				if i == failedAt {
					c = code
				}
				results = append(results, EventResult{Index: uint32(start + i), Code: c})
			}
		} else {
			for _, t := range chain {
				e.apply(t)
			}
		}
		start = end
	}
	if len(results) > 0 {
		return &RejectError{Op: "create_transfers", Results: results}
	}
	return nil
}

// validateChain checks every transfer of a linked chain against the current
// state, including the cumulative effect of earlier chain members on the
// constraint flags. Returns the failing offset and code, or -1.
func (e *inMemoryEngine) validateChain(chain []Transfer, chainOpen bool) (int, ResultCode) {
	type delta struct{ debits, credits uint64 }
	pending := make(map[ID]delta)

	for i, t := range chain {
		if chainOpen {
			return i, ResultCode("linked_event_chain_open")
		}
		if t.ID.IsZero() {
			return i, ResultIDMustNotBeZero
		}
		if existing, ok := e.byID[t.ID]; ok {
			if existing.DebitAccountID == t.DebitAccountID &&
				existing.CreditAccountID == t.CreditAccountID &&
				existing.Amount == t.Amount && existing.Ledger == t.Ledger {
				return i, ResultExists
			}
			return i, ResultExistsDifferent
		}
		if t.Amount == 0 {
			return i, ResultZeroAmount
		}
		if t.DebitAccountID == t.CreditAccountID {
			return i, ResultAccountsMustDiff
		}
		debit, ok := e.accounts[t.DebitAccountID]
		if !ok {
			return i, ResultAccountNotFound
		}
		credit, ok := e.accounts[t.CreditAccountID]
		if !ok {
			return i, ResultAccountNotFound
		}
		if debit.Ledger != t.Ledger || credit.Ledger != t.Ledger {
			return i, ResultLedgerMismatch
		}

		d := pending[t.DebitAccountID]
		c := pending[t.CreditAccountID]
		newDebits := debit.DebitsPosted + d.debits + t.Amount
		newCredits := credit.CreditsPosted + c.credits + t.Amount
		if debit.Flags.DebitsMustNotExceedCredits && newDebits > debit.CreditsPosted+d.credits {
			return i, ResultExceedsCredits
		}
		if credit.Flags.CreditsMustNotExceedDebits && newCredits > credit.DebitsPosted+c.debits {
			return i, ResultExceedsDebits
		}
		d.debits += t.Amount
		pending[t.DebitAccountID] = d
		c.credits += t.Amount
		pending[t.CreditAccountID] = c
	}
	return -1, ""
}

func (e *inMemoryEngine) apply(t Transfer) {
	t.Timestamp = e.nextTimestamp()
	debit := e.accounts[t.DebitAccountID]
	credit := e.accounts[t.CreditAccountID]
	debit.DebitsPosted += t.Amount
	credit.CreditsPosted += t.Amount
	e.transfers = append(e.transfers, t)
	e.byID[t.ID] = t
	for _, a := range []*Account{debit, credit} {
		if a.Flags.History {
			e.history[a.ID] = append(e.history[a.ID], AccountBalance{
				DebitsPosted:  a.DebitsPosted,
				CreditsPosted: a.CreditsPosted,
				Timestamp:     t.Timestamp,
			})
		}
	}
}

func (e *inMemoryEngine) LookupAccounts(_ context.Context, ids []ID) ([]Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := e.accounts[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (e *inMemoryEngine) GetAccountTransfers(_ context.Context, f AccountFilter) ([]Transfer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Transfer
	for _, t := range e.transfers {
		legMatch := (f.Debits && t.DebitAccountID == f.AccountID) ||
			(f.Credits && t.CreditAccountID == f.AccountID)
		if legMatch && inWindow(t.Timestamp, f) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if f.Reversed {
		reverse(out)
	}
	return clip(out, f.Limit), nil
}

func (e *inMemoryEngine) GetAccountBalances(_ context.Context, f AccountFilter) ([]AccountBalance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []AccountBalance
	for _, b := range e.history[f.AccountID] {
		if inWindow(b.Timestamp, f) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if f.Reversed {
		reverse(out)
	}
	return clip(out, f.Limit), nil
}

func inWindow(ts uint64, f AccountFilter) bool {
	if ts < f.TimestampMin {
		return false
	}
	return f.TimestampMax == 0 || ts <= f.TimestampMax
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func clip[T any](s []T, limit uint32) []T {
	if limit == 0 || uint32(len(s)) <= limit {
		return s
	}
	return s[:limit]
}
