package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want Symbol
		ok   bool
	}{
		{"eth#btc", Symbol{"eth", "btc"}, true},
		{" BTC#USD ", Symbol{"btc", "usd"}, true},
		{"btcusd", Symbol{}, false},
		{"#usd", Symbol{}, false},
		{"a#b#c", Symbol{}, false},
	}
	for _, tt := range tests {
		got, err := ParseSymbol(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.want.Target+"#"+tt.want.Settlement, got.String())
	}
}

func TestOrder_IsBuy(t *testing.T) {
	tests := []struct {
		side   string
		amount float64
		buy    bool
	}{
		{SideBuy, 1, true},
		{SideSell, 1, false},
		{SideBuy, -1, false},
		{SideSell, -1, true},
	}
	for _, tt := range tests {
		o := Order{Side: tt.side, Amount: decimal.NewFromFloat(tt.amount)}
		if got := o.IsBuy(); got != tt.buy {
			t.Errorf("side %s amount %v: want buy=%v, got %v", tt.side, tt.amount, tt.buy, got)
		}
	}
}

func TestOrder_HasRemainder(t *testing.T) {
	o := Order{ConsignAmount: decimal.NewFromFloat(-1), BargainAmount: decimal.NewFromFloat(-0.5)}
	assert.True(t, o.HasRemainder())
	assert.Equal(t, "-0.5", o.Unfilled().String())

	o.BargainAmount = decimal.NewFromFloat(-1)
	assert.False(t, o.HasRemainder())
}

func TestOrder_CloneKeepsExceptionsApart(t *testing.T) {
	o := &Order{}
	o.AddException(Exception{Name: ExceptionRetry})
	c := o.Clone()
	c.AddException(Exception{Name: ExceptionCancel})

	assert.Len(t, o.Exceptions, 1)
	assert.Len(t, c.Exceptions, 2)
	assert.NotZero(t, o.Exceptions[0].Timestamp)
}

func TestVenueMessage_Unmarshal(t *testing.T) {
	raw := `{"channel":"order","isSuccess":true,"site":"huobi","orgData":{"id":1},
		"data":[{"outerId":"42","symbol":"eth#btc","status":"part_success","dealAmount":"0.4","amount":1,"avgPrice":"0.051"}]}`
	var m VenueMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.Len(t, m.Data, 1)
	assert.Equal(t, ChannelOrder, m.Channel)
	assert.Equal(t, StatusPartSuccess, m.Data[0].Status)
	assert.Equal(t, "0.4", m.Data[0].DealAmount.String())
	assert.Equal(t, "1", m.Data[0].Amount.String())
	assert.JSONEq(t, `{"id":1}`, string(m.OrgData))
}
