package books

import (
	"errors"
	"testing"
)

func TestParseAccountType(t *testing.T) {
	cases := []struct {
		name string
		want AccountType
	}{
		{"assets:cash", Assets},
		{"liabilities:loans:house", Liabilities},
		{"equity:opening", Equity},
		{"revenues:salary", Revenues},
		{"expenses:rent", Expenses},
	}
	for _, c := range cases {
		got, err := ParseAccountType(c.name)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s: expected %s, got %s", c.name, c.want, got)
		}
	}
}

func TestParseAccountTypeRejectsMalformedNames(t *testing.T) {
	bad := []string{
		"",
		"cash",
		"assets",
		"assets:",
		"assets::cash",
		"assets:Cash",
		"asset:cash",
		"assets:cash:",
		"assets:ca sh",
		"revenues:sal-ary",
	}
	for _, name := range bad {
		if _, err := ParseAccountType(name); !errors.Is(err, ErrInvalidAccountName) {
			t.Fatalf("%q: expected ErrInvalidAccountName, got %v", name, err)
		}
	}
}

func TestAccountTypeFlags(t *testing.T) {
	if f := Expenses.Flags(); !f.CreditsMustNotExceedDebits || f.DebitsMustNotExceedCredits {
		t.Fatalf("expenses: expected credits-capped flags, got %+v", f)
	}
	if f := Revenues.Flags(); !f.DebitsMustNotExceedCredits || f.CreditsMustNotExceedDebits {
		t.Fatalf("revenues: expected debits-capped flags, got %+v", f)
	}
	for _, typ := range []AccountType{Assets, Liabilities, Equity} {
		f := typ.Flags()
		if f.DebitsMustNotExceedCredits || f.CreditsMustNotExceedDebits {
			t.Fatalf("%s: expected unconstrained flags, got %+v", typ, f)
		}
	}
}

func TestValidGlob(t *testing.T) {
	good := []string{"assets:**", "assets:cash|assets:bank:*", "**", "expenses:*.x"}
	for _, g := range good {
		if !ValidGlob(g) {
			t.Fatalf("%q: expected valid glob", g)
		}
	}
	bad := []string{"", "assets:%", "assets:_", "Assets:**", "assets:ca sh"}
	for _, g := range bad {
		if ValidGlob(g) {
			t.Fatalf("%q: expected invalid glob", g)
		}
	}
}

func TestGlobPatterns(t *testing.T) {
	got := globPatterns("assets:**|expenses:rent*")
	want := []string{"assets:%", "expenses:rent_"}
	if len(got) != len(want) {
		t.Fatalf("expected %d patterns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pattern %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		glob, name string
		want       bool
	}{
		{"assets:**", "assets:cash", true},
		{"assets:**", "assets:bank:checking", true},
		{"assets:**", "expenses:rent", false},
		{"assets:cash|expenses:**", "expenses:rent", true},
		{"assets:cas*", "assets:cash", true},
		{"assets:cas*", "assets:cashbox", false},
		{"assets:cash", "assets:cash", true},
		{"assets:cash", "assets:cashbox", false},
	}
	for _, c := range cases {
		if got := MatchGlob(c.glob, c.name); got != c.want {
			t.Fatalf("MatchGlob(%q, %q): expected %v, got %v", c.glob, c.name, got, c.want)
		}
	}
}
