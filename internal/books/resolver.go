package books

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beetlebooks/beetlebooks/internal/engine"
)

// ErrAccountConflict indicates the engine already holds an account under the
// same identifier but with different constraint flags. This never happens
// unless the metadata store and engine have diverged.
var ErrAccountConflict = errors.New("engine account conflicts with metadata")

const resolvePrefix = "resolve:v1:"

// Resolution is the outcome of mapping a name and unit onto engine ids.
type Resolution struct {
	Account   Account   `json:"account"`
	Commodity Commodity `json:"commodity"`
}

// Resolver finds accounts by name and commodity, creating the commodity row,
// the metadata row and the engine account on first sight. Resolution is
// idempotent: concurrent callers racing on the same name converge on one
// row and one engine account.
type Resolver struct {
	repo     Repository
	eng      engine.Engine
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewResolver wires a resolver. cache may be nil, which disables the
// read-through layer; every resolve then hits the repository.
func NewResolver(repo Repository, eng engine.Engine, cache *redis.Client, cacheTTL time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{repo: repo, eng: eng, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Resolve returns the account and commodity for a name/unit pair, creating
// whatever does not exist yet.
func (r *Resolver) Resolve(ctx context.Context, name, unit string) (Resolution, error) {
	if !ValidAccountName(name) {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidAccountName, name)
	}

	cacheKey := resolvePrefix + unit + "|" + name
	if res, ok := r.cached(ctx, cacheKey); ok {
		return res, nil
	}

	commodity, err := r.ensureCommodity(ctx, unit)
	if err != nil {
		return Resolution{}, err
	}

	account, err := r.ensureAccount(ctx, name, commodity)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{Account: account, Commodity: commodity}
	r.store(ctx, cacheKey, res)
	return res, nil
}

// ResolveCommodity returns the commodity for a unit, creating it on first
// sight with no decimal places.
func (r *Resolver) ResolveCommodity(ctx context.Context, unit string) (Commodity, error) {
	return r.ensureCommodity(ctx, unit)
}

func (r *Resolver) ensureCommodity(ctx context.Context, unit string) (Commodity, error) {
	commodity, err := r.repo.CommodityByUnit(ctx, unit)
	if err == nil {
		return commodity, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Commodity{}, err
	}

	commodity, err = r.repo.CreateCommodity(ctx, unit, 0)
	if errors.Is(err, ErrDuplicate) {
		// lost the insert race, the winner's row is authoritative
		return r.repo.CommodityByUnit(ctx, unit)
	}
	if err != nil {
		return Commodity{}, err
	}
	r.logger.Info("created commodity", slog.String("unit", unit), slog.Int("ledger_id", int(commodity.LedgerID)))
	return commodity, nil
}

// ensureAccount inserts the metadata row before touching the engine. Racers
// converge on the winning row, and the engine create is keyed to the winning
// row's id, so however many callers race only one engine account exists.
func (r *Resolver) ensureAccount(ctx context.Context, name string, commodity Commodity) (Account, error) {
	account, err := r.repo.AccountByName(ctx, name, commodity.ID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}

	typ, err := ParseAccountType(name)
	if err != nil {
		return Account{}, err
	}
	flags := typ.Flags()
	flags.History = true

	won := true
	account, err = r.repo.CreateAccount(ctx, Account{
		Name:        name,
		EngineID:    engine.NewID(),
		CommodityID: commodity.ID,
	})
	if errors.Is(err, ErrDuplicate) {
		// lost the insert race; the winner's row carries the engine id
		won = false
		account, err = r.repo.AccountByName(ctx, name, commodity.ID)
	}
	if err != nil {
		return Account{}, err
	}

	// Idempotent on the winning id: the loser's create reports exists.
	err = r.eng.CreateAccounts(ctx, []engine.Account{{
		ID:     account.EngineID,
		Ledger: uint32(commodity.LedgerID),
		Code:   1,
		Flags:  flags,
	}})
	if err != nil {
		var reject *engine.RejectError
		if !errors.As(err, &reject) {
			return Account{}, fmt.Errorf("create engine account: %w", err)
		}
		if !reject.ExistsOnly() {
			return Account{}, fmt.Errorf("%w: %v", ErrAccountConflict, reject)
		}
	}

	if won {
		r.logger.Info("created account",
			slog.String("name", name),
			slog.String("unit", commodity.Unit),
			slog.String("engine_id", account.EngineID.Hex()))
	}
	return account, nil
}

func (r *Resolver) cached(ctx context.Context, key string) (Resolution, bool) {
	if r.cache == nil {
		return Resolution{}, false
	}
	raw, err := r.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("resolver cache read failed", slog.Any("error", err))
		}
		return Resolution{}, false
	}
	var res Resolution
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		r.logger.Warn("resolver cache entry corrupt", slog.String("key", key), slog.Any("error", err))
		return Resolution{}, false
	}
	return res, true
}

func (r *Resolver) store(ctx context.Context, key string, res Resolution) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, raw, r.cacheTTL).Err(); err != nil {
		r.logger.Warn("resolver cache write failed", slog.Any("error", err))
	}
}
