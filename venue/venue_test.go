package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xyths/hs"
	"github.com/xyths/otrace/types"
)

func TestFormatSymbol(t *testing.T) {
	s := types.Symbol{Target: "eth", Settlement: "btc"}
	assert.Equal(t, "ethbtc", FormatSymbol("huobi", s))
	assert.Equal(t, "ETH_BTC", FormatSymbol("gate", s))
	assert.Equal(t, "ETH-BTC", FormatSymbol("okex", s))
}

func TestOrderId(t *testing.T) {
	id, err := OrderId("123456789012")
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789012), id)

	_, err = OrderId("abc")
	assert.Error(t, err)
}

func TestVenues(t *testing.T) {
	v := NewVenues()
	_, err := v.Client("huobi")
	assert.ErrorIs(t, err, ErrUnknownSite)

	_, err = New([]hs.ExchangeConf{{Name: "nowhere"}})
	assert.Error(t, err)
}
