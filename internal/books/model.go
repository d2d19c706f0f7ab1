// Package books maintains the metadata that maps human-readable commodity
// and account names onto the ledger engine's opaque identifiers.
package books

import (
	"errors"
	"regexp"
	"strings"

	"github.com/beetlebooks/beetlebooks/internal/engine"
)

var (
	// ErrInvalidAccountName rejects names outside the
	// type:segment:...:segment shape.
	ErrInvalidAccountName = errors.New("invalid account name")
	// ErrInvalidGlob rejects malformed account search patterns.
	ErrInvalidGlob = errors.New("invalid account glob")
)

// Compiled once at process start and read-only thereafter.
var (
	reAccountName = regexp.MustCompile(`^(assets|liabilities|equity|revenues|expenses):([a-z0-9]+:)*[a-z0-9]+$`)
	reAccountGlob = regexp.MustCompile(`^[a-z0-9*.|:]+$`)
)

// Commodity is a unit of value tracked on its own engine ledger number.
// Unit is globally unique.
type Commodity struct {
	ID           int32  `json:"id"`
	LedgerID     int32  `json:"ledger_id"`
	Unit         string `json:"unit"`
	DecimalPlace int32  `json:"decimal_place"`
}

// Account is the metadata row pairing a name with its engine-side account.
// Names are unique per commodity, not globally.
type Account struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	EngineID    engine.ID `json:"engine_id"`
	CommodityID int32     `json:"commodity_id"`
}

// AccountType is derived from an account name's leading segment and is never
// stored; it only determines the engine-side balance constraint flags at
// creation time.
type AccountType int

const (
	Assets AccountType = iota
	Liabilities
	Equity
	Revenues
	Expenses
)

// ParseAccountType reads the taxonomy tag off an account name.
func ParseAccountType(name string) (AccountType, error) {
	m := reAccountName.FindStringSubmatch(name)
	if m == nil {
		return 0, ErrInvalidAccountName
	}
	switch m[1] {
	case "assets":
		return Assets, nil
	case "liabilities":
		return Liabilities, nil
	case "equity":
		return Equity, nil
	case "revenues":
		return Revenues, nil
	case "expenses":
		return Expenses, nil
	}
	return 0, ErrInvalidAccountName
}

// Flags maps the taxonomy onto the engine's balance constraint flags. Once
// an account is created these are immutable for its lifetime. Expense
// accounts only ever accumulate debits and revenue accounts only credits;
// the other types must be free to swing both ways (assets may run negative,
// equity and liabilities are credited at funding time).
func (t AccountType) Flags() engine.AccountFlags {
	switch t {
	case Expenses:
		return engine.AccountFlags{CreditsMustNotExceedDebits: true}
	case Revenues:
		return engine.AccountFlags{DebitsMustNotExceedCredits: true}
	default:
		return engine.AccountFlags{}
	}
}

func (t AccountType) String() string {
	switch t {
	case Assets:
		return "assets"
	case Liabilities:
		return "liabilities"
	case Equity:
		return "equity"
	case Revenues:
		return "revenues"
	case Expenses:
		return "expenses"
	}
	return "unknown"
}

// ValidAccountName reports whether a name matches the account shape.
func ValidAccountName(name string) bool {
	return reAccountName.MatchString(name)
}

// ValidGlob reports whether a search pattern is well formed. Globs support
// `*` (one character), `**` (any run of characters) and `|` alternation.
func ValidGlob(glob string) bool {
	return reAccountGlob.MatchString(glob)
}

// globPatterns translates a glob into SQL LIKE patterns, one per `|`
// alternative: `**` becomes `%` and `*` becomes `_`.
func globPatterns(glob string) []string {
	translated := strings.ReplaceAll(glob, "**", "%")
	translated = strings.ReplaceAll(translated, "*", "_")
	return strings.Split(translated, "|")
}

// MatchGlob evaluates a glob against a name with the same semantics the SQL
// translation has. Used by the in-memory repository so both stores agree.
func MatchGlob(glob, name string) bool {
	for _, alt := range strings.Split(glob, "|") {
		if globAltRegexp(alt).MatchString(name) {
			return true
		}
	}
	return false
}

func globAltRegexp(alt string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(alt); i++ {
		if alt[i] == '*' {
			if i+1 < len(alt) && alt[i+1] == '*' {
				sb.WriteString(".*")
				i++
			} else {
				sb.WriteString(".")
			}
			continue
		}
		sb.WriteString(regexp.QuoteMeta(string(alt[i])))
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}
