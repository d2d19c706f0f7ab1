// Package posting builds and submits double-entry transfer batches against
// the ledger engine.
package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beetlebooks/beetlebooks/internal/books"
	"github.com/beetlebooks/beetlebooks/internal/engine"
	"github.com/beetlebooks/beetlebooks/internal/obs"
)

var (
	// ErrEmptyBatch rejects a submission with no transactions.
	ErrEmptyBatch = errors.New("batch must contain at least one transaction")
	// ErrNonPositiveAmount rejects zero or negative transfer amounts.
	ErrNonPositiveAmount = errors.New("amount must be positive")
	// ErrSelfTransfer rejects transactions whose legs resolve to the same
	// engine account.
	ErrSelfTransfer = errors.New("debit and credit account must differ")
)

// LogicalTransaction is one double-entry movement expressed in names rather
// than engine identifiers.
type LogicalTransaction struct {
	DebitAccount  string
	CreditAccount string
	CommodityUnit string
	Amount        int64
	Code          uint16
	CorrelationID engine.ID
	// TransferID is normally zero and assigned fresh; migrations replaying
	// an existing ledger supply their own.
	TransferID engine.ID
	// OccurredAt is a caller-supplied secondary timestamp in unix
	// milliseconds, carried on the transfer's user data.
	OccurredAt uint64
}

// Receipt reports what a submission committed. On partial failure Transfers
// holds the ids of chunks that committed before the rejection.
type Receipt struct {
	Transfers []string `json:"transfers"`
}

// Service validates logical transactions, resolves their legs and submits
// them in linked chunks.
type Service struct {
	resolver *books.Resolver
	eng      engine.Engine
	logger   *slog.Logger
}

// NewService wires a posting service.
func NewService(resolver *books.Resolver, eng engine.Engine, logger *slog.Logger) *Service {
	return &Service{resolver: resolver, eng: eng, logger: logger}
}

// Build validates and resolves a batch into engine transfers, in input order.
// No transfer is submitted.
func (s *Service) Build(ctx context.Context, txs []LogicalTransaction) ([]engine.Transfer, error) {
	if len(txs) == 0 {
		return nil, ErrEmptyBatch
	}
	for i, tx := range txs {
		if tx.Amount <= 0 {
			return nil, fmt.Errorf("transaction %d: %w", i, ErrNonPositiveAmount)
		}
	}

	transfers := make([]engine.Transfer, 0, len(txs))
	for i, tx := range txs {
		debit, err := s.resolver.Resolve(ctx, tx.DebitAccount, tx.CommodityUnit)
		if err != nil {
			return nil, fmt.Errorf("transaction %d debit leg: %w", i, err)
		}
		credit, err := s.resolver.Resolve(ctx, tx.CreditAccount, tx.CommodityUnit)
		if err != nil {
			return nil, fmt.Errorf("transaction %d credit leg: %w", i, err)
		}
		if debit.Account.EngineID == credit.Account.EngineID {
			return nil, fmt.Errorf("transaction %d: %w", i, ErrSelfTransfer)
		}

		id := tx.TransferID
		if id.IsZero() {
			id = engine.NewID()
		}
		transfers = append(transfers, engine.Transfer{
			ID:              id,
			DebitAccountID:  debit.Account.EngineID,
			CreditAccountID: credit.Account.EngineID,
			Amount:          uint64(tx.Amount),
			Ledger:          uint32(debit.Commodity.LedgerID),
			Code:            tx.Code,
			UserData128:     tx.CorrelationID,
			UserData64:      tx.OccurredAt,
		})
	}
	return transfers, nil
}

// Chunk splits transfers into engine-sized chunks and marks every transfer
// except the last of each chunk as linked, making each chunk all-or-nothing.
// Atomicity does not span chunks.
func Chunk(transfers []engine.Transfer) [][]engine.Transfer {
	var chunks [][]engine.Transfer
	for len(transfers) > 0 {
		n := len(transfers)
		if n > engine.MaxBatchSize {
			n = engine.MaxBatchSize
		}
		chunk := make([]engine.Transfer, n)
		copy(chunk, transfers[:n])
		for i := 0; i < n-1; i++ {
			chunk[i].Flags.Linked = true
		}
		chunks = append(chunks, chunk)
		transfers = transfers[n:]
	}
	return chunks
}

// Submit builds, chunks and submits a batch. A rejected chunk aborts the
// remaining ones; the receipt still lists transfers from chunks that
// committed before the failure, alongside the error.
func (s *Service) Submit(ctx context.Context, txs []LogicalTransaction) (Receipt, error) {
	transfers, err := s.Build(ctx, txs)
	if err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{Transfers: make([]string, 0, len(transfers))}
	for _, chunk := range Chunk(transfers) {
		if err := ctx.Err(); err != nil {
			return receipt, err
		}
		if err := s.eng.CreateTransfers(ctx, chunk); err != nil {
			obs.CountTransfers("rejected", len(chunk))
			var reject *engine.RejectError
			if errors.As(err, &reject) {
				s.logger.Error("transfer chunk rejected",
					slog.Int("chunk_size", len(chunk)),
					slog.Any("error", reject))
			}
			return receipt, fmt.Errorf("submit chunk after %d committed transfers: %w", len(receipt.Transfers), err)
		}
		obs.CountTransfers("accepted", len(chunk))
		for _, t := range chunk {
			receipt.Transfers = append(receipt.Transfers, t.ID.Hex())
		}
	}
	return receipt, nil
}
