package retry

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xyths/otrace/oracle"
	"github.com/xyths/otrace/types"
)

// Policy values the retry decision depends on.
//
//	ReferenceCoin: every coin is valued in it on the order's own site, eg. btc
//	ReferenceSite, ReferenceSymbol: where the reference coin is valued in the settlement currency
//	MinNotional: orders worth no more than this are canceled instead of repriced
type Policy struct {
	ReferenceCoin   string
	ReferenceSite   string
	ReferenceSymbol string
	MinNotional     decimal.Decimal
	MaxLossPercent  decimal.Decimal
	StrictMode      bool
}

func DefaultPolicy() Policy {
	return Policy{
		ReferenceCoin:   "btc",
		ReferenceSite:   "huobi",
		ReferenceSymbol: "btc#usdt",
		MinNotional:     decimal.NewFromInt(10),
		MaxLossPercent:  decimal.NewFromInt(5),
	}
}

// Outcome of an eligibility check. When Ok is false the lookups failed,
// Message tells why and Eligible means nothing.
type Outcome struct {
	Ok       bool
	Message  string
	Value    decimal.Decimal
	Eligible bool
}

type Evaluator struct {
	oracle oracle.Oracle
	policy Policy
}

func NewEvaluator(o oracle.Oracle, policy Policy) *Evaluator {
	return &Evaluator{oracle: o, policy: policy}
}

// Evaluate values |amount| in the settlement currency:
//
//	price(target#reference on own site) * price(reference symbol on reference site) * |amount|
func (e *Evaluator) Evaluate(ctx context.Context, o *types.Order) Outcome {
	s, err := types.ParseSymbol(o.Symbol)
	if err != nil {
		return Outcome{Message: err.Error()}
	}
	coinPrice := decimal.NewFromInt(1)
	if s.Target != e.policy.ReferenceCoin {
		symbol := types.Symbol{Target: s.Target, Settlement: e.policy.ReferenceCoin}.String()
		coinPrice, err = e.oracle.Price(ctx, o.Site, symbol)
		if err != nil {
			return Outcome{Message: fmt.Sprintf("get %s price on %s: %s", symbol, o.Site, err)}
		}
	}
	refPrice, err := e.oracle.Price(ctx, e.policy.ReferenceSite, e.policy.ReferenceSymbol)
	if err != nil {
		return Outcome{Message: fmt.Sprintf("get %s price on %s: %s", e.policy.ReferenceSymbol, e.policy.ReferenceSite, err)}
	}
	value := coinPrice.Mul(refPrice).Mul(o.Amount.Abs())
	return Outcome{
		Ok:       true,
		Value:    value,
		Eligible: value.GreaterThan(e.policy.MinNotional),
	}
}
