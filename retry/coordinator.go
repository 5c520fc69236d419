package retry

import (
	"context"

	"github.com/pkg/errors"
	"github.com/xyths/otrace/actuator"
	"github.com/xyths/otrace/condition"
	"github.com/xyths/otrace/ledger"
	"github.com/xyths/otrace/metrics"
	"github.com/xyths/otrace/notify"
	"github.com/xyths/otrace/types"
	"go.uber.org/zap"
)

// ErrServer is all the caller learns about a failed reprice, details are in the order exceptions.
var ErrServer = errors.New("server error")

const (
	DescCanceled = "canceled because its triggering condition no longer held"

	aliasEvaluate      = "error when checking whether the order can retry"
	aliasCancel        = "error when canceling the order"
	aliasConditionGone = "condition no longer satisfied, error when canceling the order"
	aliasCondition     = "error when evaluating the strategy condition"
	aliasReprice       = "error when updating the order price"
)

type Decision string

const (
	DecisionReprice Decision = "reprice"
	DecisionCancel  Decision = "cancel"
	DecisionManual  Decision = "manual" // left for manual review, no venue action
	DecisionFailed  Decision = "failed" // venue action failed
)

// Coordinator decides what to do with a claimed stale order: reprice it, cancel it,
// or leave it for manual review.
type Coordinator struct {
	Sugar *zap.SugaredLogger

	ledger    ledger.Ledger
	evaluator *Evaluator
	store     condition.Store
	checker   condition.Checker
	actuator  actuator.Actuator
	notifier  notify.Notifier
	policy    Policy

	// re-applies on version conflict
	saveRetries int
}

func NewCoordinator(
	l ledger.Ledger,
	evaluator *Evaluator,
	store condition.Store,
	checker condition.Checker,
	a actuator.Actuator,
	n notify.Notifier,
	policy Policy,
	sugar *zap.SugaredLogger,
) *Coordinator {
	if n == nil {
		n = notify.Nop{}
	}
	return &Coordinator{
		Sugar:       sugar,
		ledger:      l,
		evaluator:   evaluator,
		store:       store,
		checker:     checker,
		actuator:    a,
		notifier:    n,
		policy:      policy,
		saveRetries: 2,
	}
}

func (c *Coordinator) Handle(ctx context.Context, o *types.Order) (Decision, error) {
	d, err := c.handle(ctx, o)
	metrics.Decisions.WithLabelValues(string(d)).Inc()
	return d, err
}

func (c *Coordinator) handle(ctx context.Context, o *types.Order) (Decision, error) {
	out := c.evaluator.Evaluate(ctx, o)
	if !out.Ok {
		if stop, err := c.degraded(ctx, o, aliasEvaluate, out.Message); stop {
			return DecisionManual, err
		}
	} else if !out.Eligible {
		c.Sugar.Infof("order %s worth %s, not above %s, cancel it", o.Id, out.Value, c.policy.MinNotional)
		return c.cancel(ctx, o, aliasCancel)
	}
	return c.reprice(ctx, o)
}

// degraded handles a systemic failure: in strict mode the order is left for manual
// review and stop is true, otherwise a warning is logged and the caller goes on.
func (c *Coordinator) degraded(ctx context.Context, o *types.Order, alias, message string) (stop bool, err error) {
	if !c.policy.StrictMode {
		c.Sugar.Warnf("order %s: %s: %s, retry anyway", o.Id, alias, message)
		return false, nil
	}
	c.Sugar.Errorf("order %s: %s: %s", o.Id, alias, message)
	e := types.Exception{
		Name:    types.ExceptionRetry,
		Alias:   alias,
		Message: message,
		Manual:  true,
		Status:  o.Status,
	}
	err = c.save(ctx, o, func(p *types.Order) {
		p.AddException(e)
	})
	c.notifier.Notify(o, e)
	return true, err
}

func (c *Coordinator) cancel(ctx context.Context, o *types.Order, alias string) (Decision, error) {
	d := DecisionCancel
	var e *types.Exception
	if err := c.actuator.Cancel(ctx, o); err != nil {
		c.Sugar.Errorf("cancel order %s error: %s", o.Id, err)
		d = DecisionFailed
		e = &types.Exception{
			Name:    types.ExceptionCancel,
			Alias:   alias,
			Message: err.Error(),
			Manual:  true,
			Status:  o.Status,
		}
		e.Timestamp = timestamp()
	}
	err := c.save(ctx, o, func(p *types.Order) {
		if e != nil {
			p.AutoRetryFailed++
			p.AddException(*e)
		}
		p.Desc = DescCanceled
	})
	if e != nil {
		c.notifier.Notify(o, *e)
	}
	return d, err
}

func (c *Coordinator) reprice(ctx context.Context, o *types.Order) (Decision, error) {
	if o.ActionId != "" && c.store != nil {
		holds, err := c.conditionHolds(ctx, o)
		if err != nil {
			if stop, err1 := c.degraded(ctx, o, aliasCondition, err.Error()); stop {
				return DecisionManual, err1
			}
		} else if !holds {
			c.Sugar.Infof("order %s: strategy condition no longer holds, cancel it", o.Id)
			return c.cancel(ctx, o, aliasConditionGone)
		}
	}

	child, err := c.actuator.Reprice(ctx, o, actuator.RepriceOptions{
		IgnoreAmount:   o.Unfilled(),
		MaxLossPercent: c.policy.MaxLossPercent,
	})
	if err != nil {
		c.Sugar.Errorf("reprice order %s error: %s", o.Id, err)
		alias := aliasReprice
		if errors.Is(err, actuator.ErrMaxLoss) {
			alias = types.ExceptionMaxLoss
		}
		e := types.Exception{
			Name:      types.ExceptionRetry,
			Alias:     alias,
			Message:   err.Error(),
			Manual:    true,
			Status:    o.Status,
			Timestamp: timestamp(),
		}
		if err := c.save(ctx, o, func(p *types.Order) {
			p.AutoRetryFailed++
			p.AddException(e)
		}); err != nil {
			c.Sugar.Errorf("save order %s error: %s", o.Id, err)
		}
		c.notifier.Notify(o, e)
		return DecisionFailed, ErrServer
	}
	c.Sugar.Infof("order %s repriced, child order %s at %s", o.Id, child.Id, child.Price)
	return DecisionReprice, nil
}

// conditionHolds re-evaluates the strategy that produced the order.
// A strategy execution record that is gone means there is nothing to check.
func (c *Coordinator) conditionHolds(ctx context.Context, o *types.Order) (bool, error) {
	cond, found, err := c.store.Condition(ctx, o.ActionId)
	if err != nil {
		return false, err
	}
	if !found {
		c.Sugar.Debugf("order %s: strategy log %s not found, skip condition", o.Id, o.ActionId)
		return true, nil
	}
	r, err := c.checker.Evaluate(ctx, cond, condition.Env{UserName: o.UserName})
	if err != nil {
		return false, err
	}
	return len(r.Orders) > 0, nil
}

func (c *Coordinator) save(ctx context.Context, o *types.Order, fn func(p *types.Order)) error {
	saved, err := ledger.SaveWith(ctx, c.ledger, o, c.saveRetries, fn)
	if err != nil {
		return errors.Wrapf(err, "save order %s", o.Id)
	}
	*o = *saved
	return nil
}
