package actuator

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xyths/otrace/ledger"
	"github.com/xyths/otrace/types"
	"github.com/xyths/otrace/venue"
	"github.com/xyths/otrace/venue/venuetest"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*Venue, *venuetest.Fake, *ledger.Memory, *types.Order) {
	fake := venuetest.New()
	vs := venue.NewVenues()
	vs.Add("huobi", fake)
	l := ledger.NewMemory()
	o := &types.Order{
		OuterId:       "42",
		Site:          "huobi",
		UserName:      "alice",
		Symbol:        "eth#btc",
		Side:          types.SideBuy,
		Type:          "limit",
		Reason:        types.ReasonTransfer,
		ActionId:      "action",
		IsSysAuto:     true,
		AutoRetry:     true,
		Amount:        decimal.NewFromInt(1),
		ConsignAmount: decimal.NewFromInt(1),
		BargainAmount: decimal.NewFromFloat(0.5),
		Price:         decimal.NewFromFloat(0.05),
		OrgPrice:      decimal.NewFromFloat(0.05),
		Status:        types.StatusWaitRetry,
		Modified:      time.Now().Add(-time.Minute),
	}
	require.NoError(t, l.Insert(context.Background(), o))
	return New(vs, l, zap.NewNop().Sugar()), fake, l, o
}

func TestBound(t *testing.T) {
	five := decimal.NewFromInt(5)
	buy := &types.Order{Side: types.SideBuy, Amount: decimal.NewFromInt(1), OrgPrice: decimal.NewFromInt(100)}
	assert.Equal(t, "105", Bound(buy, five).String())
	sell := &types.Order{Side: types.SideSell, Amount: decimal.NewFromInt(1), OrgPrice: decimal.NewFromInt(100)}
	assert.Equal(t, "95", Bound(sell, five).String())
	noOrg := &types.Order{Side: types.SideBuy, Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(200)}
	assert.Equal(t, "210", Bound(noOrg, five).String())
}

func TestVenue_Cancel(t *testing.T) {
	a, fake, _, o := setup(t)
	require.NoError(t, a.Cancel(context.Background(), o))
	assert.Equal(t, []uint64{42}, fake.Canceled())

	fake.CancelErr = errors.New("order not found")
	assert.Error(t, a.Cancel(context.Background(), o))

	o.OuterId = "not-a-number"
	assert.Error(t, a.Cancel(context.Background(), o))
}

func TestVenue_Reprice(t *testing.T) {
	a, fake, l, o := setup(t)
	fake.SetPrice("ethbtc", 0.051)
	ctx := context.Background()

	child, err := a.Reprice(ctx, o, RepriceOptions{
		IgnoreAmount:   o.Unfilled(),
		MaxLossPercent: decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	assert.Equal(t, []uint64{42}, fake.Canceled())
	placed := fake.Placed()
	require.Len(t, placed, 1)
	assert.True(t, placed[0].Buy)
	assert.Equal(t, "ethbtc", placed[0].Symbol)
	assert.Equal(t, "0.5", placed[0].Amount.String())
	assert.Equal(t, "0.051", placed[0].Price.String())

	assert.Equal(t, o.Id, child.ParentOrder)
	assert.Equal(t, types.StatusConsign, child.Status)
	assert.Equal(t, "0.5", child.ConsignAmount.String())
	assert.Equal(t, "0.05", child.OrgPrice.String())

	parent, err := l.Get(ctx, o.Id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAutoRetry, parent.Status)
	assert.Equal(t, child.Id, parent.ChildOrder)
	stored, err := l.FindByOuterIdAndSite(ctx, child.OuterId, "huobi")
	require.NoError(t, err)
	assert.Equal(t, child.Id, stored.Id)
}

func TestVenue_RepriceMaxLoss(t *testing.T) {
	a, fake, l, o := setup(t)
	fake.SetPrice("ethbtc", 0.06)
	ctx := context.Background()

	_, err := a.Reprice(ctx, o, RepriceOptions{IgnoreAmount: o.Unfilled(), MaxLossPercent: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, ErrMaxLoss)
	assert.Empty(t, fake.Canceled())
	assert.Empty(t, fake.Placed())
	assert.Len(t, l.Snapshot(), 1)
}

func TestVenue_RepriceSell(t *testing.T) {
	a, fake, _, o := setup(t)
	o.Side = types.SideSell
	fake.SetPrice("ethbtc", 0.049)

	_, err := a.Reprice(context.Background(), o, RepriceOptions{IgnoreAmount: o.Unfilled(), MaxLossPercent: decimal.NewFromInt(5)})
	require.NoError(t, err)
	placed := fake.Placed()
	require.Len(t, placed, 1)
	assert.False(t, placed[0].Buy)
}
