// Package tb adapts the official TigerBeetle client to the engine
// abstraction the rest of the service is written against.
package tb

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	tigerbeetle "github.com/tigerbeetle/tigerbeetle-go"
	"github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"github.com/beetlebooks/beetlebooks/internal/engine"
)

const (
	accountFlagDebitsMustNotExceedCredits = uint16(1) << 1
	accountFlagCreditsMustNotExceedDebits = uint16(1) << 2
	accountFlagHistory                    = uint16(1) << 3

	transferFlagLinked = uint16(1) << 0
)

// Client wraps a TigerBeetle connection behind the engine.Engine interface.
type Client struct {
	c tigerbeetle.Client
}

var _ engine.Engine = (*Client)(nil)

// Dial connects to a TigerBeetle cluster.
func Dial(clusterID uint64, address string) (*Client, error) {
	c, err := tigerbeetle.NewClient(types.ToUint128(clusterID), []string{address})
	if err != nil {
		return nil, fmt.Errorf("connect tigerbeetle: %w", err)
	}
	return &Client{c: c}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.c.Close()
}

func (c *Client) CreateAccounts(ctx context.Context, accounts []engine.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := make([]types.Account, 0, len(accounts))
	for _, a := range accounts {
		batch = append(batch, types.Account{
			ID:     toU128(a.ID),
			Ledger: a.Ledger,
			Code:   a.Code,
			Flags:  accountFlagBits(a.Flags),
		})
	}
	results, err := c.c.CreateAccounts(batch)
	if err != nil {
		return fmt.Errorf("create accounts: %w", err)
	}
	if len(results) == 0 {
		return nil
	}
	reject := &engine.RejectError{Op: "create_accounts"}
	for _, r := range results {
		reject.Results = append(reject.Results, engine.EventResult{
			Index: r.Index,
			Code:  accountResultCode(r.Result),
		})
	}
	return reject
}

func (c *Client) CreateTransfers(ctx context.Context, transfers []engine.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := make([]types.Transfer, 0, len(transfers))
	for _, t := range transfers {
		var flags uint16
		if t.Flags.Linked {
			flags |= transferFlagLinked
		}
		batch = append(batch, types.Transfer{
			ID:              toU128(t.ID),
			DebitAccountID:  toU128(t.DebitAccountID),
			CreditAccountID: toU128(t.CreditAccountID),
			Amount:          types.ToUint128(t.Amount),
			UserData128:     toU128(t.UserData128),
			UserData64:      t.UserData64,
			Ledger:          t.Ledger,
			Code:            t.Code,
			Flags:           flags,
		})
	}
	results, err := c.c.CreateTransfers(batch)
	if err != nil {
		return fmt.Errorf("create transfers: %w", err)
	}
	if len(results) == 0 {
		return nil
	}
	reject := &engine.RejectError{Op: "create_transfers"}
	for _, r := range results {
		reject.Results = append(reject.Results, engine.EventResult{
			Index: r.Index,
			Code:  transferResultCode(r.Result),
		})
	}
	return reject
}

func (c *Client) LookupAccounts(ctx context.Context, ids []engine.ID) ([]engine.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lookup := make([]types.Uint128, 0, len(ids))
	for _, id := range ids {
		lookup = append(lookup, toU128(id))
	}
	accounts, err := c.c.LookupAccounts(lookup)
	if err != nil {
		return nil, fmt.Errorf("lookup accounts: %w", err)
	}
	out := make([]engine.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, fromAccount(a))
	}
	return out, nil
}

func (c *Client) GetAccountTransfers(ctx context.Context, f engine.AccountFilter) ([]engine.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	transfers, err := c.c.GetAccountTransfers(toFilter(f))
	if err != nil {
		return nil, fmt.Errorf("get account transfers: %w", err)
	}
	out := make([]engine.Transfer, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, engine.Transfer{
			ID:              fromU128(t.ID),
			DebitAccountID:  fromU128(t.DebitAccountID),
			CreditAccountID: fromU128(t.CreditAccountID),
			Amount:          lowU64(t.Amount),
			Ledger:          t.Ledger,
			Code:            t.Code,
			UserData128:     fromU128(t.UserData128),
			UserData64:      t.UserData64,
			Flags:           engine.TransferFlags{Linked: t.Flags&transferFlagLinked != 0},
			Timestamp:       t.Timestamp,
		})
	}
	return out, nil
}

func (c *Client) GetAccountBalances(ctx context.Context, f engine.AccountFilter) ([]engine.AccountBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	balances, err := c.c.GetAccountBalances(toFilter(f))
	if err != nil {
		return nil, fmt.Errorf("get account balances: %w", err)
	}
	out := make([]engine.AccountBalance, 0, len(balances))
	for _, b := range balances {
		out = append(out, engine.AccountBalance{
			DebitsPosted:  lowU64(b.DebitsPosted),
			CreditsPosted: lowU64(b.CreditsPosted),
			Timestamp:     b.Timestamp,
		})
	}
	return out, nil
}

// --- conversions ---

// TigerBeetle stores 128-bit values little-endian.
func toU128(id engine.ID) types.Uint128 {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], id.Lo)
	binary.LittleEndian.PutUint64(b[8:16], id.Hi)
	return types.BytesToUint128(b)
}

func fromU128(v types.Uint128) engine.ID {
	b := [16]byte(v)
	return engine.ID{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// lowU64 narrows a 128-bit amount; amounts handled by this bridge always fit.
func lowU64(v types.Uint128) uint64 {
	b := [16]byte(v)
	return binary.LittleEndian.Uint64(b[0:8])
}

func accountFlagBits(f engine.AccountFlags) uint16 {
	var bits uint16
	if f.DebitsMustNotExceedCredits {
		bits |= accountFlagDebitsMustNotExceedCredits
	}
	if f.CreditsMustNotExceedDebits {
		bits |= accountFlagCreditsMustNotExceedDebits
	}
	if f.History {
		bits |= accountFlagHistory
	}
	return bits
}

func fromAccount(a types.Account) engine.Account {
	return engine.Account{
		ID:            fromU128(a.ID),
		DebitsPosted:  lowU64(a.DebitsPosted),
		CreditsPosted: lowU64(a.CreditsPosted),
		Ledger:        a.Ledger,
		Code:          a.Code,
		Flags: engine.AccountFlags{
			DebitsMustNotExceedCredits: a.Flags&accountFlagDebitsMustNotExceedCredits != 0,
			CreditsMustNotExceedDebits: a.Flags&accountFlagCreditsMustNotExceedDebits != 0,
			History:                    a.Flags&accountFlagHistory != 0,
		},
		Timestamp: a.Timestamp,
	}
}

func toFilter(f engine.AccountFilter) types.AccountFilter {
	return types.AccountFilter{
		AccountID:    toU128(f.AccountID),
		TimestampMin: f.TimestampMin,
		TimestampMax: f.TimestampMax,
		Limit:        f.Limit,
		Flags: types.AccountFilterFlags{
			Debits:   f.Debits,
			Credits:  f.Credits,
			Reversed: f.Reversed,
		}.ToUint32(),
	}
}

func accountResultCode(r types.CreateAccountResult) engine.ResultCode {
	switch r {
	case types.AccountExists:
		return engine.ResultExists
	case types.AccountLinkedEventFailed:
		return engine.ResultLinkedEventFailed
	}
	code := snakeResult(r.String(), "account")
	if strings.HasPrefix(code, "exists_with_different") {
		return engine.ResultExistsDifferent
	}
	return engine.ResultCode(code)
}

func transferResultCode(r types.CreateTransferResult) engine.ResultCode {
	switch r {
	case types.TransferExists:
		return engine.ResultExists
	case types.TransferLinkedEventFailed:
		return engine.ResultLinkedEventFailed
	case types.TransferExceedsCredits:
		return engine.ResultExceedsCredits
	case types.TransferExceedsDebits:
		return engine.ResultExceedsDebits
	}
	code := snakeResult(r.String(), "transfer")
	if strings.HasPrefix(code, "exists_with_different") {
		return engine.ResultExistsDifferent
	}
	return engine.ResultCode(code)
}

// snakeResult turns a generated result name like "TransferDebitAccountNotFound"
// into "debit_account_not_found".
func snakeResult(name, prefix string) string {
	var sb strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return strings.TrimPrefix(sb.String(), prefix+"_")
}
