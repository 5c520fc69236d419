package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

// status of order
//
//	wait: ready to consign
//	consign: consigned but not filled
//	part_success: partially filled
//	success: fully filled
//	will_cancel: marked to cancel, not finished yet
//	canceled: canceled
//	wait_retry: claimed by the reconciler, a new consign is pending
//	auto_retry: replaced by a child order at a new price
//	failed: failed
const (
	StatusWait        Status = "wait"
	StatusConsign     Status = "consign"
	StatusPartSuccess Status = "part_success"
	StatusSuccess     Status = "success"
	StatusWillCancel  Status = "will_cancel"
	StatusCanceled    Status = "canceled"
	StatusWaitRetry   Status = "wait_retry"
	StatusAutoRetry   Status = "auto_retry"
	StatusFailed      Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWait, StatusConsign, StatusPartSuccess, StatusSuccess, StatusWillCancel,
		StatusCanceled, StatusWaitRetry, StatusAutoRetry, StatusFailed:
		return true
	}
	return false
}

// Terminal states end active management, the record stays for audit.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusCanceled || s == StatusFailed
}

// reason of order
const (
	ReasonTransfer = "transfer" // cross-site spread strategy
	ReasonNormal   = "normal"   // market strategy
	ReasonStopLoss = "stoploss"
	ReasonOuter    = "outer" // placed outside this system
)

const (
	SideBuy  = "buy"  // open position (long or short)
	SideSell = "sell" // close position
)

// exception names
const (
	ExceptionRetry   = "retry"
	ExceptionCancel  = "cancel"
	ExceptionConsign = "consign"
	ExceptionMaxLoss = "maxLossPercent"
)

// Exception is one entry of the append-only audit log of an order.
type Exception struct {
	Name      string `json:"name"`
	Alias     string `json:"alias"`
	Message   string `json:"message"`
	Manual    bool   `json:"manual"` // needs manual handling
	Status    Status `json:"status"`
	Timestamp int64  `json:"timestamp"` // milliseconds
}

// Order is a consign on an outer site, tracked in the ledger.
//
//	Amount: total amount, > 0 long, < 0 short. It may span a retry chain, so it equals
//	ConsignAmount only when ParentOrder is empty.
type Order struct {
	Id      string `json:"id"`
	OuterId string `json:"outerId"`
	Site    string `json:"site"`

	UserName string `json:"userName"`
	Symbol   string `json:"symbol"` // eg. eth#btc
	Side     string `json:"side"`
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	ActionId string `json:"actionId,omitempty"`

	IsSysAuto       bool   `json:"isSysAuto"`
	AutoRetry       bool   `json:"autoRetry"`
	AutoRetryFailed int    `json:"autoRetryFailed"`
	ParentOrder     string `json:"parentOrder,omitempty"`
	ChildOrder      string `json:"childOrder,omitempty"`

	Amount        decimal.Decimal `json:"amount"`
	ConsignAmount decimal.Decimal `json:"consignAmount"`
	BargainAmount decimal.Decimal `json:"bargainAmount"`
	Price         decimal.Decimal `json:"price"`
	OrgPrice      decimal.Decimal `json:"orgPrice"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`

	Status     Status        `json:"status"`
	Exceptions []Exception   `json:"exceptions,omitempty"`
	Desc       string        `json:"desc,omitempty"`
	ChangeLogs []interface{} `json:"changeLogs,omitempty"`

	ConsignDate time.Time `json:"consignDate"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`

	// Version is bumped by every ledger write and checked on save.
	Version int64 `json:"version"`
}

// Unfilled returns consignAmount - bargainAmount, signed.
func (o *Order) Unfilled() decimal.Decimal {
	return o.ConsignAmount.Sub(o.BargainAmount)
}

// HasRemainder reports |bargainAmount| < |consignAmount|.
func (o *Order) HasRemainder() bool {
	return o.BargainAmount.Abs().LessThan(o.ConsignAmount.Abs())
}

// IsBuy reports the venue direction of the order:
// opening a long or closing a short buys, the other two sell.
func (o *Order) IsBuy() bool {
	long := o.Amount.IsPositive()
	if o.Amount.IsZero() {
		long = o.ConsignAmount.IsPositive()
	}
	return (o.Side != SideSell) == long
}

// AddException appends to the audit log, the log is never rewritten.
func (o *Order) AddException(e Exception) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixNano() / int64(time.Millisecond)
	}
	o.Exceptions = append(o.Exceptions, e)
}

// Clone returns a deep copy, so callers can mutate without touching shared state.
func (o *Order) Clone() *Order {
	c := *o
	if o.Exceptions != nil {
		c.Exceptions = make([]Exception, len(o.Exceptions))
		copy(c.Exceptions, o.Exceptions)
	}
	if o.ChangeLogs != nil {
		c.ChangeLogs = make([]interface{}, len(o.ChangeLogs))
		copy(c.ChangeLogs, o.ChangeLogs)
	}
	return &c
}
