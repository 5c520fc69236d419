// Package venuetest provides an in-memory venue.Client for tests.
package venuetest

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Placed struct {
	Id            uint64
	Symbol        string
	ClientOrderId string
	Buy           bool
	Price         decimal.Decimal
	Amount        decimal.Decimal
}

type Fake struct {
	PriceErr  error
	CancelErr error
	PlaceErr  error

	lock     sync.Mutex
	prices   map[string]decimal.Decimal
	canceled []uint64
	placed   []Placed
	nextId   uint64
	calls    int
}

func New() *Fake {
	return &Fake{prices: make(map[string]decimal.Decimal), nextId: 1000}
}

func (f *Fake) SetPrice(symbol string, price float64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.prices[symbol] = decimal.NewFromFloat(price)
}

func (f *Fake) LastPrice(symbol string) (decimal.Decimal, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls++
	if f.PriceErr != nil {
		return decimal.Zero, f.PriceErr
	}
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, errors.Errorf("no price for %s", symbol)
	}
	return p, nil
}

func (f *Fake) CancelOrder(symbol string, orderId uint64) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls++
	if f.CancelErr != nil {
		return f.CancelErr
	}
	f.canceled = append(f.canceled, orderId)
	return nil
}

func (f *Fake) BuyLimit(symbol, clientOrderId string, price, amount decimal.Decimal) (uint64, error) {
	return f.place(symbol, clientOrderId, true, price, amount)
}

func (f *Fake) SellLimit(symbol, clientOrderId string, price, amount decimal.Decimal) (uint64, error) {
	return f.place(symbol, clientOrderId, false, price, amount)
}

func (f *Fake) place(symbol, clientOrderId string, buy bool, price, amount decimal.Decimal) (uint64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls++
	if f.PlaceErr != nil {
		return 0, f.PlaceErr
	}
	f.nextId++
	f.placed = append(f.placed, Placed{
		Id:            f.nextId,
		Symbol:        symbol,
		ClientOrderId: clientOrderId,
		Buy:           buy,
		Price:         price,
		Amount:        amount,
	})
	return f.nextId, nil
}

func (f *Fake) Canceled() []uint64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]uint64(nil), f.canceled...)
}

func (f *Fake) Placed() []Placed {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]Placed(nil), f.placed...)
}

// Calls counts every api call, price queries included.
func (f *Fake) Calls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}
