package actuator

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/otrace/ledger"
	"github.com/xyths/otrace/types"
	"github.com/xyths/otrace/venue"
	"go.uber.org/zap"
)

// ErrMaxLoss means the market moved further from the original price than allowed.
var ErrMaxLoss = errors.New("price beyond max loss percent")

const clientIdPrefix = "otr"

var hundred = decimal.NewFromInt(100)

type RepriceOptions struct {
	IgnoreAmount   decimal.Decimal // unfilled remainder to consign again, signed
	MaxLossPercent decimal.Decimal
}

type Actuator interface {
	Cancel(ctx context.Context, o *types.Order) error
	// Reprice replaces the venue order of o with a new one at the current price
	// and returns the child order.
	Reprice(ctx context.Context, o *types.Order, opt RepriceOptions) (*types.Order, error)
}

// Venue executes commands on the exchange REST api and records retry chains in the ledger.
type Venue struct {
	Sugar *zap.SugaredLogger

	venues *venue.Venues
	ledger ledger.Ledger
}

func New(venues *venue.Venues, l ledger.Ledger, sugar *zap.SugaredLogger) *Venue {
	return &Venue{Sugar: sugar, venues: venues, ledger: l}
}

func (a *Venue) target(o *types.Order) (venue.Client, string, uint64, error) {
	s, err := types.ParseSymbol(o.Symbol)
	if err != nil {
		return nil, "", 0, err
	}
	c, err := a.venues.Client(o.Site)
	if err != nil {
		return nil, "", 0, err
	}
	id, err := venue.OrderId(o.OuterId)
	if err != nil {
		return nil, "", 0, err
	}
	return c, venue.FormatSymbol(o.Site, s), id, nil
}

func (a *Venue) Cancel(ctx context.Context, o *types.Order) error {
	c, symbol, id, err := a.target(o)
	if err != nil {
		return err
	}
	if err := c.CancelOrder(symbol, id); err != nil {
		return errors.Wrapf(err, "cancel order %d on %s", id, o.Site)
	}
	a.Sugar.Infof("order %s (%s %d) canceled", o.Id, o.Site, id)
	return nil
}

// Bound returns the worst acceptable price: orgPrice moved maxLossPercent against the order.
func Bound(o *types.Order, maxLossPercent decimal.Decimal) decimal.Decimal {
	ref := o.OrgPrice
	if ref.IsZero() {
		ref = o.Price
	}
	delta := ref.Mul(maxLossPercent).Div(hundred)
	if o.IsBuy() {
		return ref.Add(delta)
	}
	return ref.Sub(delta)
}

func (a *Venue) Reprice(ctx context.Context, o *types.Order, opt RepriceOptions) (*types.Order, error) {
	if opt.IgnoreAmount.IsZero() {
		return nil, errors.Errorf("order %s has nothing to reprice", o.Id)
	}
	c, symbol, id, err := a.target(o)
	if err != nil {
		return nil, err
	}
	price, err := c.LastPrice(symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s price", symbol)
	}
	bound := Bound(o, opt.MaxLossPercent)
	buy := o.IsBuy()
	if (buy && price.GreaterThan(bound)) || (!buy && price.LessThan(bound)) {
		return nil, errors.Wrapf(ErrMaxLoss, "last price %s, bound %s", price, bound)
	}

	if err := c.CancelOrder(symbol, id); err != nil {
		return nil, errors.Wrapf(err, "cancel order %d", id)
	}
	amount := opt.IgnoreAmount.Abs()
	clientId := clientIdPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	var newId uint64
	if buy {
		newId, err = c.BuyLimit(symbol, clientId, price, amount)
	} else {
		newId, err = c.SellLimit(symbol, clientId, price, amount)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "order %d canceled, place new order", id)
	}
	a.Sugar.Infof("order %s repriced: %s %s %s@%s, new order %d", o.Id, o.Site, symbol, amount, price, newId)

	now := time.Now()
	child := &types.Order{
		OuterId:         strconv.FormatUint(newId, 10),
		Site:            o.Site,
		UserName:        o.UserName,
		Symbol:          o.Symbol,
		Side:            o.Side,
		Type:            o.Type,
		Reason:          o.Reason,
		ActionId:        o.ActionId,
		IsSysAuto:       o.IsSysAuto,
		AutoRetry:       o.AutoRetry,
		AutoRetryFailed: o.AutoRetryFailed,
		ParentOrder:     o.Id,
		Amount:          o.Amount,
		ConsignAmount:   opt.IgnoreAmount,
		BargainAmount:   decimal.Zero,
		Price:           price,
		OrgPrice:        o.OrgPrice,
		Status:          types.StatusConsign,
		ConsignDate:     now,
		Created:         now,
		Modified:        now,
	}
	if child.OrgPrice.IsZero() {
		child.OrgPrice = o.Price
	}
	if err := a.ledger.Insert(ctx, child); err != nil {
		return nil, errors.Wrapf(err, "new order %d placed, insert child of %s", newId, o.Id)
	}
	if _, err := ledger.SaveWith(ctx, a.ledger, o, 2, func(p *types.Order) {
		p.Status = types.StatusAutoRetry
		p.ChildOrder = child.Id
	}); err != nil {
		return child, errors.Wrapf(err, "link child %s to %s", child.Id, o.Id)
	}
	return child, nil
}
