package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// channels of venue messages
const (
	ChannelOrder = "order"
	ChannelTrade = "trade"
)

// VenueMessage is one frame of the venue event stream.
type VenueMessage struct {
	Channel   string          `json:"channel"`
	IsSuccess bool            `json:"isSuccess"`
	Site      string          `json:"site"`
	OrgData   json.RawMessage `json:"orgData,omitempty"`
	Data      []VenueOrder    `json:"data"`
}

// VenueOrder is the venue snapshot of one order.
//
//	DealAmount: filled amount
//	Amount: consigned amount
//	Created: milliseconds
type VenueOrder struct {
	OuterId    string          `json:"outerId"`
	Symbol     string          `json:"symbol"`
	Type       string          `json:"type"`
	Status     Status          `json:"status"`
	DealAmount decimal.Decimal `json:"dealAmount"`
	Amount     decimal.Decimal `json:"amount"`
	Created    int64           `json:"created"`
	Price      decimal.Decimal `json:"price"`
	AvgPrice   decimal.Decimal `json:"avgPrice"`
	Hidden     bool            `json:"hidden"`
	Maker      bool            `json:"maker"`
}
