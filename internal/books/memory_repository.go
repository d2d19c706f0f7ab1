package books

import (
	"context"
	"sort"
	"sync"

	"github.com/beetlebooks/beetlebooks/internal/engine"
)

type memoryRepository struct {
	mu            sync.RWMutex
	commodities   map[string]Commodity
	accounts      map[accountKey]Account
	nextCommodity int32
	nextAccount   int64
}

type accountKey struct {
	name        string
	commodityID int32
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		commodities: make(map[string]Commodity),
		accounts:    make(map[accountKey]Account),
	}
}

func (r *memoryRepository) CommodityByUnit(_ context.Context, unit string) (Commodity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commodities[unit]
	if !ok {
		return Commodity{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) CreateCommodity(_ context.Context, unit string, decimalPlace int32) (Commodity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commodities[unit]; exists {
		return Commodity{}, ErrDuplicate
	}
	r.nextCommodity++
	c := Commodity{
		ID:           r.nextCommodity,
		LedgerID:     r.nextCommodity,
		Unit:         unit,
		DecimalPlace: decimalPlace,
	}
	r.commodities[unit] = c
	return c, nil
}

func (r *memoryRepository) ImportCommodity(_ context.Context, c Commodity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commodities[c.Unit]; exists {
		return nil
	}
	r.commodities[c.Unit] = c
	if c.ID > r.nextCommodity {
		r.nextCommodity = c.ID
	}
	return nil
}

func (r *memoryRepository) ListCommodities(_ context.Context) ([]Commodity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Commodity, 0, len(r.commodities))
	for _, c := range r.commodities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepository) ListCommodityUnits(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commodities))
	for unit := range r.commodities {
		out = append(out, unit)
	}
	sort.Strings(out)
	return out, nil
}

func (r *memoryRepository) AccountByName(_ context.Context, name string, commodityID int32) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[accountKey{name, commodityID}]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepository) CreateAccount(_ context.Context, a Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := accountKey{a.Name, a.CommodityID}
	if _, exists := r.accounts[key]; exists {
		return Account{}, ErrDuplicate
	}
	r.nextAccount++
	a.ID = r.nextAccount
	r.accounts[key] = a
	return a, nil
}

func (r *memoryRepository) ImportAccounts(_ context.Context, accounts []Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range accounts {
		key := accountKey{a.Name, a.CommodityID}
		if _, exists := r.accounts[key]; exists {
			continue
		}
		r.nextAccount++
		a.ID = r.nextAccount
		r.accounts[key] = a
	}
	return nil
}

func (r *memoryRepository) AccountsByGlob(_ context.Context, glob string) ([]Account, error) {
	if !ValidGlob(glob) {
		return nil, ErrInvalidGlob
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Account
	for _, a := range r.accounts {
		if MatchGlob(glob, a.Name) {
			out = append(out, a)
		}
	}
	sortAccounts(out)
	return out, nil
}

func (r *memoryRepository) AccountsByGlobAndCommodity(_ context.Context, glob string, commodityID int32) ([]Account, error) {
	if !ValidGlob(glob) {
		return nil, ErrInvalidGlob
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Account
	for _, a := range r.accounts {
		if a.CommodityID == commodityID && MatchGlob(glob, a.Name) {
			out = append(out, a)
		}
	}
	sortAccounts(out)
	return out, nil
}

func (r *memoryRepository) AccountsByEngineIDs(_ context.Context, ids []engine.ID) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wanted := make(map[engine.ID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []Account
	for _, a := range r.accounts {
		if _, ok := wanted[a.EngineID]; ok {
			out = append(out, a)
		}
	}
	sortAccounts(out)
	return out, nil
}

func (r *memoryRepository) ListAccountNames(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.accounts))
	var out []string
	for key := range r.accounts {
		if _, dup := seen[key.name]; dup {
			continue
		}
		seen[key.name] = struct{}{}
		out = append(out, key.name)
	}
	sort.Strings(out)
	return out, nil
}

func sortAccounts(accounts []Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Name != accounts[j].Name {
			return accounts[i].Name < accounts[j].Name
		}
		return accounts[i].CommodityID < accounts[j].CommodityID
	})
}
