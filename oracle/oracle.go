package oracle

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/otrace/types"
	"github.com/xyths/otrace/venue"
	"go.uber.org/zap"
)

// Oracle answers the current price of a symbol (ledger notation, eth#btc) on a site.
type Oracle interface {
	Price(ctx context.Context, site, symbol string) (decimal.Decimal, error)
}

// Exchange asks the venue REST api for the last trade price.
type Exchange struct {
	Sugar *zap.SugaredLogger

	venues  *venue.Venues
	retries uint64
}

func NewExchange(venues *venue.Venues, retries uint64, sugar *zap.SugaredLogger) *Exchange {
	return &Exchange{Sugar: sugar, venues: venues, retries: retries}
}

func (e *Exchange) Price(ctx context.Context, site, symbol string) (decimal.Decimal, error) {
	s, err := types.ParseSymbol(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	c, err := e.venues.Client(site)
	if err != nil {
		return decimal.Zero, err
	}
	native := venue.FormatSymbol(site, s)

	var price decimal.Decimal
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	err = backoff.Retry(func() error {
		p, err1 := c.LastPrice(native)
		if err1 != nil {
			e.Sugar.Debugf("get %s price on %s error: %s", native, site, err1)
			return err1
		}
		price = p
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, e.retries), ctx))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "get %s price on %s", symbol, site)
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Errorf("bad %s price on %s: %s", symbol, site, price)
	}
	return price, nil
}
