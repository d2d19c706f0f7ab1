package books

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beetlebooks/beetlebooks/internal/engine"
)

var (
	// ErrNotFound indicates a missing commodity or account row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates an insert that lost a unique-constraint race;
	// callers fall back to a re-read.
	ErrDuplicate = errors.New("already exists")
)

// Repository persists commodity and account metadata.
type Repository interface {
	CommodityByUnit(ctx context.Context, unit string) (Commodity, error)
	CreateCommodity(ctx context.Context, unit string, decimalPlace int32) (Commodity, error)
	ImportCommodity(ctx context.Context, c Commodity) error
	ListCommodities(ctx context.Context) ([]Commodity, error)
	ListCommodityUnits(ctx context.Context) ([]string, error)

	AccountByName(ctx context.Context, name string, commodityID int32) (Account, error)
	CreateAccount(ctx context.Context, a Account) (Account, error)
	ImportAccounts(ctx context.Context, accounts []Account) error
	AccountsByGlob(ctx context.Context, glob string) ([]Account, error)
	AccountsByGlobAndCommodity(ctx context.Context, glob string, commodityID int32) ([]Account, error)
	AccountsByEngineIDs(ctx context.Context, ids []engine.ID) ([]Account, error)
	ListAccountNames(ctx context.Context) ([]string, error)
}

// PostgresRepository stores metadata in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// CommodityByUnit fetches the commodity row for a unit.
func (r *PostgresRepository) CommodityByUnit(ctx context.Context, unit string) (Commodity, error) {
	var c Commodity
	err := r.db.QueryRow(ctx, `SELECT id, ledger_id, unit, decimal_place
        FROM commodities WHERE unit = $1`, unit).
		Scan(&c.ID, &c.LedgerID, &c.Unit, &c.DecimalPlace)
	if errors.Is(err, pgx.ErrNoRows) {
		return Commodity{}, ErrNotFound
	}
	if err != nil {
		return Commodity{}, fmt.Errorf("commodity by unit: %w", err)
	}
	return c, nil
}

// CreateCommodity inserts a commodity, drawing its engine ledger number from
// a dedicated sequence.
func (r *PostgresRepository) CreateCommodity(ctx context.Context, unit string, decimalPlace int32) (Commodity, error) {
	c := Commodity{Unit: unit, DecimalPlace: decimalPlace}
	err := r.db.QueryRow(ctx, `INSERT INTO commodities (unit, decimal_place, ledger_id)
        VALUES ($1, $2, nextval('commodity_ledger_seq'))
        RETURNING id, ledger_id`, unit, decimalPlace).
		Scan(&c.ID, &c.LedgerID)
	if isUniqueViolation(err) {
		return Commodity{}, ErrDuplicate
	}
	if err != nil {
		return Commodity{}, fmt.Errorf("create commodity: %w", err)
	}
	return c, nil
}

// ImportCommodity inserts a commodity with an externally assigned ledger
// number, used by migrations from an existing ledger.
func (r *PostgresRepository) ImportCommodity(ctx context.Context, c Commodity) error {
	_, err := r.db.Exec(ctx, `INSERT INTO commodities (id, ledger_id, unit, decimal_place)
        VALUES ($1, $2, $3, $4) ON CONFLICT (unit) DO NOTHING`,
		c.ID, c.LedgerID, c.Unit, c.DecimalPlace)
	if err != nil {
		return fmt.Errorf("import commodity %s: %w", c.Unit, err)
	}
	return nil
}

// ListCommodities returns every commodity row.
func (r *PostgresRepository) ListCommodities(ctx context.Context) ([]Commodity, error) {
	rows, err := r.db.Query(ctx, `SELECT id, ledger_id, unit, decimal_place
        FROM commodities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list commodities: %w", err)
	}
	defer rows.Close()

	var out []Commodity
	for rows.Next() {
		var c Commodity
		if err := rows.Scan(&c.ID, &c.LedgerID, &c.Unit, &c.DecimalPlace); err != nil {
			return nil, fmt.Errorf("scan commodity: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCommodityUnits returns every distinct unit.
func (r *PostgresRepository) ListCommodityUnits(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT unit FROM commodities ORDER BY unit`)
	if err != nil {
		return nil, fmt.Errorf("list commodity units: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var unit string
		if err := rows.Scan(&unit); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, unit)
	}
	return out, rows.Err()
}

// AccountByName fetches an account by its per-commodity unique key.
func (r *PostgresRepository) AccountByName(ctx context.Context, name string, commodityID int32) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, ledger_id, commodity_id
        FROM accounts WHERE name = $1 AND commodity_id = $2`, name, commodityID)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

// CreateAccount inserts an account row. A unique violation on
// (name, commodity_id) surfaces as ErrDuplicate so the resolver can fall back
// to a re-read.
func (r *PostgresRepository) CreateAccount(ctx context.Context, a Account) (Account, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO accounts (name, ledger_id, commodity_id)
        VALUES ($1, $2, $3) RETURNING id`, a.Name, a.EngineID.Hex(), a.CommodityID).
		Scan(&a.ID)
	if isUniqueViolation(err) {
		return Account{}, ErrDuplicate
	}
	if err != nil {
		return Account{}, fmt.Errorf("create account %s: %w", a.Name, err)
	}
	return a, nil
}

// ImportAccounts bulk-inserts accounts with externally assigned engine ids.
func (r *PostgresRepository) ImportAccounts(ctx context.Context, accounts []Account) error {
	for _, a := range accounts {
		_, err := r.db.Exec(ctx, `INSERT INTO accounts (name, ledger_id, commodity_id)
            VALUES ($1, $2, $3) ON CONFLICT (name, commodity_id) DO NOTHING`,
			a.Name, a.EngineID.Hex(), a.CommodityID)
		if err != nil {
			return fmt.Errorf("import account %s: %w", a.Name, err)
		}
	}
	return nil
}

// AccountsByGlob searches accounts across all commodities.
func (r *PostgresRepository) AccountsByGlob(ctx context.Context, glob string) ([]Account, error) {
	if !ValidGlob(glob) {
		return nil, ErrInvalidGlob
	}
	where, args := globWhere(glob, nil)
	return r.queryAccounts(ctx, `SELECT id, name, ledger_id, commodity_id
        FROM accounts WHERE `+where+` ORDER BY name, commodity_id`, args...)
}

// AccountsByGlobAndCommodity searches accounts within one commodity.
func (r *PostgresRepository) AccountsByGlobAndCommodity(ctx context.Context, glob string, commodityID int32) ([]Account, error) {
	if !ValidGlob(glob) {
		return nil, ErrInvalidGlob
	}
	where, args := globWhere(glob, []any{commodityID})
	return r.queryAccounts(ctx, `SELECT id, name, ledger_id, commodity_id
        FROM accounts WHERE commodity_id = $1 AND (`+where+`) ORDER BY name`, args...)
}

// AccountsByEngineIDs bulk-resolves accounts from engine identifiers.
func (r *PostgresRepository) AccountsByEngineIDs(ctx context.Context, ids []engine.ID) ([]Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	hex := make([]string, 0, len(ids))
	for _, id := range ids {
		hex = append(hex, id.Hex())
	}
	return r.queryAccounts(ctx, `SELECT id, name, ledger_id, commodity_id
        FROM accounts WHERE ledger_id = ANY($1) ORDER BY name`, hex)
}

// ListAccountNames returns every account name, sorted.
func (r *PostgresRepository) ListAccountNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT name FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list account names: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan account name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) queryAccounts(ctx context.Context, sql string, args ...any) ([]Account, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var a Account
	var hexID string
	if err := row.Scan(&a.ID, &a.Name, &hexID, &a.CommodityID); err != nil {
		return Account{}, err
	}
	parsed, err := engine.ParseHex(hexID)
	if err != nil {
		return Account{}, fmt.Errorf("account %s has corrupt ledger id: %w", a.Name, err)
	}
	a.EngineID = parsed
	return a, nil
}

// globWhere expands a glob into "name LIKE $n OR ..." with positional args
// appended after any leading args already claimed by the caller.
func globWhere(glob string, leading []any) (string, []any) {
	patterns := globPatterns(glob)
	clauses := make([]string, 0, len(patterns))
	args := leading
	for _, p := range patterns {
		args = append(args, p)
		clauses = append(clauses, fmt.Sprintf("name LIKE $%d", len(args)))
	}
	return strings.Join(clauses, " OR "), args
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
