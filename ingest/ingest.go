package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/otrace/ledger"
	"github.com/xyths/otrace/metrics"
	"github.com/xyths/otrace/transfer"
	"github.com/xyths/otrace/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const EnvProduction = "production"

type ItemError struct {
	OuterId string
	Err     error
}

// BatchResult aggregates the items of one venue message.
type BatchResult struct {
	Updated int
	Skipped int
	Errors  []ItemError
}

// Err combines the item errors, multierr.Errors splits them again.
func (r BatchResult) Err() error {
	var err error
	for _, e := range r.Errors {
		err = multierr.Append(err, errors.WithMessagef(e.Err, "order %s", e.OuterId))
	}
	return err
}

type handler func(ctx context.Context, m *types.VenueMessage) BatchResult

// Ingestor applies venue order snapshots to the ledger and tells the transfer controller.
type Ingestor struct {
	Sugar *zap.SugaredLogger

	ledger     ledger.Ledger
	controller transfer.Controller
	env        string
	retries    int
	handlers   map[string]handler
}

func New(l ledger.Ledger, c transfer.Controller, env string, sugar *zap.SugaredLogger) *Ingestor {
	i := &Ingestor{
		Sugar:      sugar,
		ledger:     l,
		controller: c,
		env:        env,
		retries:    2,
	}
	i.handlers = map[string]handler{
		types.ChannelOrder: i.onOrder,
		types.ChannelTrade: i.onTrade,
	}
	return i
}

// Dispatch handles one venue message. It never panics.
func (i *Ingestor) Dispatch(ctx context.Context, m *types.VenueMessage) (r BatchResult) {
	if m == nil {
		return
	}
	defer func() {
		if e := recover(); e != nil {
			i.Sugar.Errorf("dispatch %s message from %s panic: %v", m.Channel, m.Site, e)
			r.Errors = append(r.Errors, ItemError{Err: errors.Errorf("panic: %v", e)})
		}
	}()
	if !m.IsSuccess {
		i.Sugar.Debugf("ignore failed %s message from %s", m.Channel, m.Site)
		return
	}
	h, ok := i.handlers[m.Channel]
	if !ok {
		i.Sugar.Warnf("unknown channel %q from %s", m.Channel, m.Site)
		return
	}
	return h(ctx, m)
}

func (i *Ingestor) onTrade(ctx context.Context, m *types.VenueMessage) BatchResult {
	i.Sugar.Debugf("ignore %d trades from %s", len(m.Data), m.Site)
	return BatchResult{}
}

func (i *Ingestor) onOrder(ctx context.Context, m *types.VenueMessage) BatchResult {
	var r BatchResult
	for _, item := range m.Data {
		updated, err := i.ingest(ctx, m.Site, m.OrgData, item)
		switch {
		case err != nil:
			i.Sugar.Errorf("ingest order %s on %s error: %s", item.OuterId, m.Site, err)
			r.Errors = append(r.Errors, ItemError{OuterId: item.OuterId, Err: err})
			metrics.IngestItems.WithLabelValues("failed").Inc()
		case updated:
			r.Updated++
			metrics.IngestItems.WithLabelValues("updated").Inc()
		default:
			r.Skipped++
			metrics.IngestItems.WithLabelValues("skipped").Inc()
		}
	}
	return r
}

func (i *Ingestor) ingest(ctx context.Context, site string, orgData json.RawMessage, item types.VenueOrder) (updated bool, err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.Errorf("panic: %v", e)
		}
	}()
	o, err := i.ledger.FindByOuterIdAndSite(ctx, item.OuterId, site)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	var changeLog interface{}
	if i.env != EnvProduction && len(orgData) > 0 {
		if err := json.Unmarshal(orgData, &changeLog); err != nil {
			i.Sugar.Warnf("bad orgData of %s: %s", item.OuterId, err)
			changeLog = string(orgData)
		}
	}

	var step decimal.Decimal
	saved, err := ledger.SaveWith(ctx, i.ledger, o, i.retries, func(p *types.Order) {
		step = Refresh(p, item)
		if changeLog != nil {
			p.ChangeLogs = append(p.ChangeLogs, changeLog)
		}
	})
	if err != nil {
		return false, errors.Wrapf(err, "save order %s", o.Id)
	}
	if err := i.controller.OnOrderStatusChanged(ctx, transfer.Event{Order: saved, StepAmount: step}); err != nil {
		return true, errors.Wrapf(err, "notify order %s", o.Id)
	}
	return true, nil
}

// Refresh merges the venue snapshot into o and returns the fill since the last update.
// The venue is the truth for fill, average price and status. Venue amounts are unsigned,
// bargainAmount takes the sign of consignAmount.
func Refresh(o *types.Order, item types.VenueOrder) decimal.Decimal {
	deal := item.DealAmount.Abs()
	if limit := o.ConsignAmount.Abs(); !limit.IsZero() && deal.GreaterThan(limit) {
		deal = limit
	}
	if o.ConsignAmount.IsNegative() {
		deal = deal.Neg()
	}
	step := deal.Sub(o.BargainAmount)
	o.BargainAmount = deal

	switch {
	case !item.Status.Valid():
	case o.Status == types.StatusAutoRetry && item.Status != types.StatusSuccess:
		// replaced by a child order, only a full fill moves it out of the retry chain
	case o.Status.Terminal() && !item.Status.Terminal():
		// late snapshot of a finished order
	default:
		o.Status = item.Status
	}
	if item.AvgPrice.IsPositive() {
		o.AvgPrice = item.AvgPrice
	}
	if item.Price.IsPositive() {
		o.Price = item.Price
	}
	if item.Type != "" {
		o.Type = item.Type
	}
	if o.ConsignDate.IsZero() && item.Created > 0 {
		o.ConsignDate = time.Unix(0, item.Created*int64(time.Millisecond))
	}
	return step
}
