package condition

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticOracle map[string]float64

func (o staticOracle) Price(ctx context.Context, site, symbol string) (decimal.Decimal, error) {
	p, ok := o[site+"/"+symbol]
	if !ok {
		return decimal.Zero, errors.Errorf("no price for %s on %s", symbol, site)
	}
	return decimal.NewFromFloat(p), nil
}

func TestJoin(t *testing.T) {
	assert.Equal(t, Default, Join(nil))
	assert.Equal(t, Default, Join([]string{" ", ""}))
	assert.Equal(t, "a > 1 && b < 2", Join([]string{"a > 1", " b < 2 "}))
}

func TestExprChecker_Evaluate(t *testing.T) {
	c := NewExprChecker(staticOracle{"huobi/eth#btc": 0.05}, zap.NewNop().Sugar())
	ctx := context.Background()
	env := Env{UserName: "alice"}

	tests := []struct {
		condition string
		selected  int
	}{
		{Default, 0},
		{`price("huobi", "eth#btc") > 0.04`, 1},
		{`price("huobi", "eth#btc") > 0.06`, 0},
		{`userName == "alice" && env.userName == "alice"`, 1},
		{`userName == "bob"`, 0},
	}
	for _, tt := range tests {
		r, err := c.Evaluate(ctx, tt.condition, env)
		require.NoError(t, err, tt.condition)
		assert.Len(t, r.Orders, tt.selected, tt.condition)
	}
}

func TestExprChecker_Errors(t *testing.T) {
	c := NewExprChecker(staticOracle{}, zap.NewNop().Sugar())
	ctx := context.Background()

	_, err := c.Evaluate(ctx, `price("huobi", "eth#btc") > 1`, Env{})
	assert.Error(t, err)
	_, err = c.Evaluate(ctx, `1 +`, Env{})
	assert.Error(t, err)
	_, err = c.Evaluate(ctx, `1 + 1`, Env{})
	assert.Error(t, err)
}
