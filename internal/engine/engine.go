package engine

import (
	"context"
	"fmt"
	"strings"
)

// MaxBatchSize is the largest number of events the ledger engine accepts in
// one call. Submissions larger than this must be split into chunks; linked
// atomicity never spans a chunk boundary.
const MaxBatchSize = 8190

// Tick is the engine's minimum timestamp unit in nanoseconds. Pagination
// narrows a time window by one tick to avoid re-reading a full page.
const Tick = 1

// AccountFlags mirror the engine-side account flags relevant to this bridge.
type AccountFlags struct {
	DebitsMustNotExceedCredits bool
	CreditsMustNotExceedDebits bool
	History                    bool
}

// TransferFlags mirror the engine-side transfer flags relevant to this bridge.
type TransferFlags struct {
	Linked bool
}

// Account is the engine's view of an account. Balances are posted totals in
// minor units; the net balance convention throughout this service is
// debits minus credits.
type Account struct {
	ID            ID
	DebitsPosted  uint64
	CreditsPosted uint64
	Ledger        uint32
	Code          uint16
	Flags         AccountFlags
	Timestamp     uint64
}

// Balance returns the account's net balance (debits posted minus credits posted).
func (a Account) Balance() int64 {
	return int64(a.DebitsPosted) - int64(a.CreditsPosted)
}

// Transfer is a single immutable double-entry movement between two accounts
// on one ledger.
type Transfer struct {
	ID              ID
	DebitAccountID  ID
	CreditAccountID ID
	Amount          uint64
	Ledger          uint32
	Code            uint16
	UserData128     ID
	UserData64      uint64
	Flags           TransferFlags
	Timestamp       uint64
}

// AccountBalance is a historical balance snapshot recorded after a transfer
// touched an account with the history flag enabled.
type AccountBalance struct {
	DebitsPosted  uint64
	CreditsPosted uint64
	Timestamp     uint64
}

// Net returns the snapshot's net balance (debits posted minus credits posted).
func (b AccountBalance) Net() int64 {
	return int64(b.DebitsPosted) - int64(b.CreditsPosted)
}

// AccountFilter selects transfers or balance snapshots for one account.
// A zero TimestampMax means no upper bound. Reversed returns results
// newest-first.
type AccountFilter struct {
	AccountID    ID
	TimestampMin uint64
	TimestampMax uint64
	Limit        uint32
	Debits       bool
	Credits      bool
	Reversed     bool
}

// Engine is the capability set this service consumes from the external
// double-entry ledger engine. Every call is a blocking I/O boundary and
// honors the supplied context.
type Engine interface {
	CreateAccounts(ctx context.Context, accounts []Account) error
	CreateTransfers(ctx context.Context, transfers []Transfer) error
	LookupAccounts(ctx context.Context, ids []ID) ([]Account, error)
	GetAccountTransfers(ctx context.Context, f AccountFilter) ([]Transfer, error)
	GetAccountBalances(ctx context.Context, f AccountFilter) ([]AccountBalance, error)
}

// ResultCode identifies why the engine refused an individual event.
type ResultCode string

const (
	// ResultLinkedEventFailed marks an event rejected only because another
	// member of its linked chain failed.
	ResultLinkedEventFailed ResultCode = "linked_event_failed"
	// ResultExists reports an event whose identifier was already created
	// with identical parameters; safe to treat as a no-op.
	ResultExists ResultCode = "exists"
	// ResultExistsDifferent reports an identifier collision with different
	// parameters. Never safe to ignore.
	ResultExistsDifferent ResultCode = "exists_with_different_parameters"

	ResultIDMustNotBeZero  ResultCode = "id_must_not_be_zero"
	ResultAccountNotFound  ResultCode = "account_not_found"
	ResultAccountsMustDiff ResultCode = "accounts_must_be_different"
	ResultLedgerMismatch   ResultCode = "transfer_must_have_the_same_ledger_as_accounts"
	ResultZeroAmount       ResultCode = "amount_must_not_be_zero"
	ResultExceedsCredits   ResultCode = "exceeds_credits"
	ResultExceedsDebits    ResultCode = "exceeds_debits"
)

// EventResult is the engine's verdict on one event of a batch.
type EventResult struct {
	Index uint32
	Code  ResultCode
}

// RejectError reports per-event engine rejections, preserving the engine's
// reason codes verbatim.
type RejectError struct {
	Op      string
	Results []EventResult
}

func (e *RejectError) Error() string {
	parts := make([]string, 0, len(e.Results))
	for _, r := range e.Results {
		parts = append(parts, fmt.Sprintf("[%d] %s", r.Index, r.Code))
	}
	return fmt.Sprintf("%s rejected: %s", e.Op, strings.Join(parts, ", "))
}

// ExistsOnly reports whether every rejection is a benign duplicate, which
// callers performing idempotent creation treat as success.
func (e *RejectError) ExistsOnly() bool {
	for _, r := range e.Results {
		if r.Code != ResultExists {
			return false
		}
	}
	return len(e.Results) > 0
}

// TimestampFromMillis converts a unix-millisecond API date to an engine
// timestamp in nanoseconds.
func TimestampFromMillis(ms uint64) uint64 {
	return ms * 1_000_000
}

// MillisFromTimestamp converts an engine timestamp back to unix milliseconds.
func MillisFromTimestamp(ts uint64) uint64 {
	return ts / 1_000_000
}

// EndOfMillisecond returns the largest engine timestamp still inside the
// given unix millisecond, so as-of queries include everything recorded
// within that millisecond.
func EndOfMillisecond(ms uint64) uint64 {
	return TimestampFromMillis(ms) + 999_999
}
