package types

import (
	"fmt"
	"strings"
)

const symbolSep = "#"

// Symbol is a trading pair in ledger notation, eg. "eth#btc":
// eth is the target coin, btc the settlement coin.
type Symbol struct {
	Target     string
	Settlement string
}

func ParseSymbol(s string) (Symbol, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), symbolSep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Symbol{}, fmt.Errorf("bad symbol %q, want target#settlement", s)
	}
	return Symbol{Target: parts[0], Settlement: parts[1]}, nil
}

func (s Symbol) String() string {
	return s.Target + symbolSep + s.Settlement
}
