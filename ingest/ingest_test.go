package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xyths/otrace/ledger"
	"github.com/xyths/otrace/transfer"
	"github.com/xyths/otrace/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// controller checks every event against the ledger at notify time.
type controller struct {
	t      *testing.T
	ledger ledger.Ledger

	lock   sync.Mutex
	events []transfer.Event
	failOn string
}

func (c *controller) OnOrderStatusChanged(ctx context.Context, e transfer.Event) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	stored, err := c.ledger.Get(ctx, e.Order.Id)
	require.NoError(c.t, err)
	assert.True(c.t, stored.BargainAmount.Equal(e.Order.BargainAmount), "notified before persisted")
	assert.Equal(c.t, stored.Version, e.Order.Version)
	c.events = append(c.events, e)
	if e.Order.OuterId == c.failOn {
		return errors.New("controller down")
	}
	return nil
}

func setup(t *testing.T, env string) (*Ingestor, *ledger.Memory, *controller) {
	l := ledger.NewMemory()
	for _, id := range []string{"1", "2"} {
		require.NoError(t, l.Insert(context.Background(), &types.Order{
			Id:            "order-" + id,
			OuterId:       id,
			Site:          "huobi",
			Symbol:        "eth#btc",
			Side:          types.SideBuy,
			Reason:        types.ReasonTransfer,
			Amount:        decimal.NewFromInt(1),
			ConsignAmount: decimal.NewFromInt(1),
			Status:        types.StatusConsign,
		}))
	}
	c := &controller{t: t, ledger: l}
	return New(l, c, env, zap.NewNop().Sugar()), l, c
}

func orderMessage(items ...types.VenueOrder) *types.VenueMessage {
	return &types.VenueMessage{
		Channel:   types.ChannelOrder,
		IsSuccess: true,
		Site:      "huobi",
		OrgData:   json.RawMessage(`{"raw":true}`),
		Data:      items,
	}
}

func fill(outerId string, deal float64, status types.Status) types.VenueOrder {
	return types.VenueOrder{
		OuterId:    outerId,
		Symbol:     "eth#btc",
		Status:     status,
		DealAmount: decimal.NewFromFloat(deal),
		Amount:     decimal.NewFromInt(1),
		AvgPrice:   decimal.NewFromFloat(0.051),
		Created:    1625097600000,
	}
}

func TestIngestor_UnknownOrderLeavesLedgerUnchanged(t *testing.T) {
	i, l, c := setup(t, EnvProduction)
	before := l.Snapshot()

	r := i.Dispatch(context.Background(), orderMessage(fill("999", 0.5, types.StatusPartSuccess)))
	require.NoError(t, r.Err())
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 0, r.Updated)
	assert.Equal(t, before, l.Snapshot())
	assert.Empty(t, c.events)
}

func TestIngestor_StepAmountsInOrder(t *testing.T) {
	i, l, c := setup(t, EnvProduction)

	r := i.Dispatch(context.Background(), orderMessage(
		fill("1", 0.3, types.StatusPartSuccess),
		fill("1", 0.8, types.StatusPartSuccess),
		fill("1", 1, types.StatusSuccess),
	))
	require.NoError(t, r.Err())
	assert.Equal(t, 3, r.Updated)

	require.Len(t, c.events, 3)
	assert.Equal(t, "0.3", c.events[0].StepAmount.String())
	assert.Equal(t, "0.5", c.events[1].StepAmount.String())
	assert.Equal(t, "0.2", c.events[2].StepAmount.String())

	o, err := l.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, o.Status)
	assert.Equal(t, "1", o.BargainAmount.String())
	assert.Equal(t, "0.051", o.AvgPrice.String())
	assert.Equal(t, int64(1625097600000), o.ConsignDate.UnixNano()/int64(time.Millisecond))
	assert.Empty(t, o.ChangeLogs)
}

func TestIngestor_ItemFailureIsIsolated(t *testing.T) {
	i, l, c := setup(t, EnvProduction)
	c.failOn = "1"

	r := i.Dispatch(context.Background(), orderMessage(
		fill("1", 0.5, types.StatusPartSuccess),
		fill("999", 0.5, types.StatusPartSuccess),
		fill("2", 0.7, types.StatusPartSuccess),
	))
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "1", r.Errors[0].OuterId)
	require.Error(t, r.Err())
	assert.Len(t, multierr.Errors(r.Err()), 1)
	assert.Contains(t, r.Err().Error(), "order 1")
	assert.Equal(t, 1, r.Updated)
	assert.Equal(t, 1, r.Skipped)

	// the failed item was persisted before the controller failed
	o1, err := l.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "0.5", o1.BargainAmount.String())
	o2, err := l.Get(context.Background(), "order-2")
	require.NoError(t, err)
	assert.Equal(t, "0.7", o2.BargainAmount.String())
}

func TestIngestor_ChangeLogsOutsideProduction(t *testing.T) {
	i, l, _ := setup(t, "development")

	r := i.Dispatch(context.Background(), orderMessage(fill("1", 0.5, types.StatusPartSuccess)))
	require.NoError(t, r.Err())
	o, err := l.Get(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, o.ChangeLogs, 1)
	assert.Equal(t, map[string]interface{}{"raw": true}, o.ChangeLogs[0])
}

func TestIngestor_IgnoredMessages(t *testing.T) {
	i, l, c := setup(t, EnvProduction)
	before := l.Snapshot()
	ctx := context.Background()

	failed := orderMessage(fill("1", 0.5, types.StatusPartSuccess))
	failed.IsSuccess = false
	trade := orderMessage(fill("1", 0.5, types.StatusPartSuccess))
	trade.Channel = types.ChannelTrade
	unknown := orderMessage(fill("1", 0.5, types.StatusPartSuccess))
	unknown.Channel = "depth"

	for _, m := range []*types.VenueMessage{failed, trade, unknown, nil} {
		r := i.Dispatch(ctx, m)
		assert.NoError(t, r.Err())
	}
	assert.Equal(t, before, l.Snapshot())
	assert.Empty(t, c.events)
}

func TestRefresh(t *testing.T) {
	short := &types.Order{
		ConsignAmount: decimal.NewFromInt(-2),
		BargainAmount: decimal.NewFromFloat(-0.5),
		Status:        types.StatusPartSuccess,
	}
	step := Refresh(short, fill("1", 1.5, types.StatusPartSuccess))
	assert.Equal(t, "-1", step.String())
	assert.Equal(t, "-1.5", short.BargainAmount.String())

	over := &types.Order{ConsignAmount: decimal.NewFromInt(1), Status: types.StatusConsign}
	Refresh(over, fill("1", 1.2, types.StatusSuccess))
	assert.Equal(t, "1", over.BargainAmount.String())

	for _, s := range []types.Status{types.StatusCanceled, types.StatusPartSuccess, types.StatusConsign} {
		replaced := &types.Order{ConsignAmount: decimal.NewFromInt(1), Status: types.StatusAutoRetry, ChildOrder: "child"}
		Refresh(replaced, fill("1", 0.5, s))
		assert.Equal(t, types.StatusAutoRetry, replaced.Status, string(s))
		assert.Equal(t, "0.5", replaced.BargainAmount.String(), string(s))
	}
	filled := &types.Order{ConsignAmount: decimal.NewFromInt(1), Status: types.StatusAutoRetry, ChildOrder: "child"}
	Refresh(filled, fill("1", 1, types.StatusSuccess))
	assert.Equal(t, types.StatusSuccess, filled.Status)

	done := &types.Order{ConsignAmount: decimal.NewFromInt(1), BargainAmount: decimal.NewFromInt(1), Status: types.StatusSuccess}
	Refresh(done, fill("1", 1, types.StatusPartSuccess))
	assert.Equal(t, types.StatusSuccess, done.Status)

	bad := &types.Order{ConsignAmount: decimal.NewFromInt(1), Status: types.StatusConsign}
	Refresh(bad, fill("1", 0, "unknown"))
	assert.Equal(t, types.StatusConsign, bad.Status)
}

func TestBatchResult_Err(t *testing.T) {
	assert.NoError(t, BatchResult{Updated: 2}.Err())

	r := BatchResult{Errors: []ItemError{
		{OuterId: "1", Err: errors.New("timeout")},
		{OuterId: "2", Err: ledger.ErrConflict},
	}}
	errs := multierr.Errors(r.Err())
	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "order 1: timeout")
	assert.ErrorIs(t, errs[1], ledger.ErrConflict)
}
