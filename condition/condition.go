package condition

import (
	"context"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pkg/errors"
	"github.com/xyths/otrace/oracle"
	"go.uber.org/zap"
)

// Default is the condition of a strategy without any, it never holds.
const Default = "1==0"

// Join combines the conditions of a strategy, all of them must hold.
func Join(conditions []string) string {
	var parts []string
	for _, c := range conditions {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return Default
	}
	return strings.Join(parts, " && ")
}

// Env is the context a condition is evaluated in.
type Env struct {
	UserName string
}

// Intent is an order the condition wants in place.
type Intent struct {
	UserName  string
	Condition string
}

type Result struct {
	Orders []Intent
}

type Checker interface {
	Evaluate(ctx context.Context, condition string, env Env) (Result, error)
}

// ExprChecker evaluates conditions as boolean expressions, eg.
//
//	price("huobi", "eth#btc") > 0.05 && userName == "alice"
// A true condition selects one order, a false one selects nothing.
type ExprChecker struct {
	Sugar  *zap.SugaredLogger
	oracle oracle.Oracle
}

func NewExprChecker(o oracle.Oracle, sugar *zap.SugaredLogger) *ExprChecker {
	return &ExprChecker{Sugar: sugar, oracle: o}
}

func (c *ExprChecker) Evaluate(ctx context.Context, condition string, env Env) (Result, error) {
	vars := map[string]interface{}{
		"userName": env.UserName,
		"env":      map[string]interface{}{"userName": env.UserName},
	}
	price := expr.Function("price", func(params ...interface{}) (interface{}, error) {
		site, _ := params[0].(string)
		symbol, _ := params[1].(string)
		p, err := c.oracle.Price(ctx, site, symbol)
		if err != nil {
			return nil, err
		}
		f, _ := p.Float64()
		return f, nil
	}, new(func(string, string) float64))

	program, err := expr.Compile(condition, expr.Env(vars), expr.AsBool(), price)
	if err != nil {
		return Result{}, errors.Wrapf(err, "compile condition %q", condition)
	}
	out, err := expr.Run(program, vars)
	if err != nil {
		return Result{}, errors.Wrapf(err, "run condition %q", condition)
	}
	ok, _ := out.(bool)
	c.Sugar.Debugf("condition %q for %s: %v", condition, env.UserName, ok)
	if !ok {
		return Result{}, nil
	}
	return Result{Orders: []Intent{{UserName: env.UserName, Condition: condition}}}, nil
}
