package transfer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/otrace/types"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const CollJournal = "transferJournal"

// Event tells what changed on an order after a venue update.
// StepAmount is the fill since the previous update, signed like the order.
type Event struct {
	Order      *types.Order
	StepAmount decimal.Decimal
}

type Controller interface {
	OnOrderStatusChanged(ctx context.Context, e Event) error
}

// Journal records every change, position bookkeeping reads it.
type Journal struct {
	Sugar *zap.SugaredLogger
	coll  *mongo.Collection
}

func NewJournal(db *mongo.Database, sugar *zap.SugaredLogger) *Journal {
	return &Journal{Sugar: sugar, coll: db.Collection(CollJournal)}
}

type entry struct {
	OrderId       string    `bson:"orderId"`
	OuterId       string    `bson:"outerId"`
	Site          string    `bson:"site"`
	UserName      string    `bson:"userName"`
	Symbol        string    `bson:"symbol"`
	Side          string    `bson:"side"`
	ActionId      string    `bson:"actionId,omitempty"`
	Status        string    `bson:"status"`
	StepAmount    float64   `bson:"stepAmount"`
	BargainAmount float64   `bson:"bargainAmount"`
	AvgPrice      float64   `bson:"avgPrice"`
	Time          time.Time `bson:"time"`
}

func (j *Journal) OnOrderStatusChanged(ctx context.Context, e Event) error {
	o := e.Order
	step, _ := e.StepAmount.Float64()
	bargain, _ := o.BargainAmount.Float64()
	avg, _ := o.AvgPrice.Float64()
	_, err := j.coll.InsertOne(ctx, entry{
		OrderId:       o.Id,
		OuterId:       o.OuterId,
		Site:          o.Site,
		UserName:      o.UserName,
		Symbol:        o.Symbol,
		Side:          o.Side,
		ActionId:      o.ActionId,
		Status:        string(o.Status),
		StepAmount:    step,
		BargainAmount: bargain,
		AvgPrice:      avg,
		Time:          time.Now(),
	})
	if err != nil {
		return errors.Wrapf(err, "journal order %s", o.Id)
	}
	if !e.StepAmount.IsZero() {
		j.Sugar.Infof("order %s %s %s filled %s, status %s", o.Id, o.Site, o.Symbol, e.StepAmount, o.Status)
	}
	return nil
}
