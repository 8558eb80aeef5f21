package domain

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Symbol is a token ticker such as "UNILAG". Symbols are always upper case.
type Symbol string

// NewSymbol normalises raw input into a Symbol.
func NewSymbol(s string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(s)))
}

func (s Symbol) String() string { return string(s) }

// Token is a tradeable university token.
type Token struct {
	ID                int64
	Symbol            Symbol
	Name              string
	Institution       string
	TotalSupply       decimal.Decimal
	CirculatingSupply decimal.Decimal
	InitialPrice      decimal.Decimal
	Decimals          int
	CreatedAt         time.Time
}

// CirculatingRatio returns circulatingSupply / totalSupply.
func (t Token) CirculatingRatio() decimal.Decimal {
	if t.TotalSupply.IsZero() {
		return decimal.Zero
	}
	return t.CirculatingSupply.Div(t.TotalSupply)
}

// RemainingSupply is the part of total supply not yet in circulation.
func (t Token) RemainingSupply() decimal.Decimal {
	return t.TotalSupply.Sub(t.CirculatingSupply)
}

// SymbolSet is an unordered set of symbols. It marshals as a sorted JSON
// array.
type SymbolSet map[Symbol]struct{}

// NewSymbolSet builds a set from the given symbols.
func NewSymbolSet(symbols ...Symbol) SymbolSet {
	s := make(SymbolSet, len(symbols))
	for _, sym := range symbols {
		s[sym] = struct{}{}
	}
	return s
}

// Contains reports whether sym is in the set.
func (s SymbolSet) Contains(sym Symbol) bool {
	_, ok := s[sym]
	return ok
}

// Symbols returns the members in ascending order.
func (s SymbolSet) Symbols() []Symbol {
	out := make([]Symbol, 0, len(s))
	for sym := range s {
		out = append(out, sym)
	}
	slices.Sort(out)
	return out
}

// Strings returns the members as plain strings in ascending order.
func (s SymbolSet) Strings() []string {
	syms := s.Symbols()
	out := make([]string, len(syms))
	for i, sym := range syms {
		out[i] = string(sym)
	}
	return out
}

func (s SymbolSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *SymbolSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	set := make(SymbolSet, len(raw))
	for _, r := range raw {
		set[NewSymbol(r)] = struct{}{}
	}
	*s = set
	return nil
}
