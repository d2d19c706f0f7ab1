package posting

import (
	"errors"
	"fmt"
)

// ErrUnbalancedPosting rejects a posting pair whose legs do not cancel out or
// do not share a commodity.
var ErrUnbalancedPosting = errors.New("posting pair does not balance")

// Posting is one signed leg of a journal entry: positive amounts debit the
// account, negative amounts credit it.
type Posting struct {
	Account       string
	CommodityUnit string
	Amount        int64
}

// PostingPair is a matched debit/credit pair as written in a journal.
type PostingPair struct {
	Debit  Posting
	Credit Posting
}

// Transaction converts a balanced pair into a logical transaction. It fails
// with ErrUnbalancedPosting when the debit leg is not positive, the credit
// leg is not its exact negation, or the legs name different commodities.
func (p PostingPair) Transaction() (LogicalTransaction, error) {
	if p.Debit.Amount <= 0 {
		return LogicalTransaction{}, fmt.Errorf("%w: debit leg %d is not positive", ErrUnbalancedPosting, p.Debit.Amount)
	}
	if p.Credit.Amount != -p.Debit.Amount {
		return LogicalTransaction{}, fmt.Errorf("%w: legs %d and %d do not cancel", ErrUnbalancedPosting, p.Debit.Amount, p.Credit.Amount)
	}
	if p.Debit.CommodityUnit != p.Credit.CommodityUnit {
		return LogicalTransaction{}, fmt.Errorf("%w: legs in %s and %s", ErrUnbalancedPosting, p.Debit.CommodityUnit, p.Credit.CommodityUnit)
	}
	return LogicalTransaction{
		DebitAccount:  p.Debit.Account,
		CreditAccount: p.Credit.Account,
		CommodityUnit: p.Debit.CommodityUnit,
		Amount:        p.Debit.Amount,
	}, nil
}
