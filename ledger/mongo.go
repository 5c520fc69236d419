package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/otrace/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollOrders = "orders"

// Mongo keeps orders in one collection. Amounts are stored as Decimal128,
// the claim query compares them with $abs inside $expr.
type Mongo struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{coll: db.Collection(CollOrders)}
}

type exceptionDoc struct {
	Name      string `bson:"name"`
	Alias     string `bson:"alias"`
	Message   string `bson:"message"`
	Manual    bool   `bson:"manual"`
	Status    string `bson:"status"`
	Timestamp int64  `bson:"timestamp"`
}

type orderDoc struct {
	Id      primitive.ObjectID `bson:"_id,omitempty"`
	OuterId string             `bson:"outerId"`
	Site    string             `bson:"site"`

	UserName string `bson:"userName"`
	Symbol   string `bson:"symbol"`
	Side     string `bson:"side"`
	Type     string `bson:"type"`
	Reason   string `bson:"reason"`
	ActionId string `bson:"actionId,omitempty"`

	IsSysAuto       bool   `bson:"isSysAuto"`
	AutoRetry       bool   `bson:"autoRetry"`
	AutoRetryFailed int    `bson:"autoRetryFailed"`
	ParentOrder     string `bson:"parentOrder,omitempty"`
	ChildOrder      string `bson:"childOrder,omitempty"`

	Amount        primitive.Decimal128 `bson:"amount"`
	ConsignAmount primitive.Decimal128 `bson:"consignAmount"`
	BargainAmount primitive.Decimal128 `bson:"bargainAmount"`
	Price         primitive.Decimal128 `bson:"price"`
	OrgPrice      primitive.Decimal128 `bson:"orgPrice"`
	AvgPrice      primitive.Decimal128 `bson:"avgPrice"`

	Status     string         `bson:"status"`
	Exceptions []exceptionDoc `bson:"exceptions"`
	Desc       string         `bson:"desc,omitempty"`
	ChangeLogs []interface{}  `bson:"changeLogs,omitempty"`

	ConsignDate time.Time `bson:"consignDate"`
	Created     time.Time `bson:"created"`
	Modified    time.Time `bson:"modified"`
	Version     int64     `bson:"version"`
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil || d.IsZero() {
		return decimal.Zero
	}
	return d
}

func toDoc(o *types.Order) (orderDoc, error) {
	var err error
	dec := func(d decimal.Decimal) primitive.Decimal128 {
		v, e := primitive.ParseDecimal128(d.String())
		if e != nil && err == nil {
			err = errors.Wrapf(e, "order %s amount %s", o.Id, d)
		}
		return v
	}
	d := orderDoc{
		OuterId:         o.OuterId,
		Site:            o.Site,
		UserName:        o.UserName,
		Symbol:          o.Symbol,
		Side:            o.Side,
		Type:            o.Type,
		Reason:          o.Reason,
		ActionId:        o.ActionId,
		IsSysAuto:       o.IsSysAuto,
		AutoRetry:       o.AutoRetry,
		AutoRetryFailed: o.AutoRetryFailed,
		ParentOrder:     o.ParentOrder,
		ChildOrder:      o.ChildOrder,
		Amount:          dec(o.Amount),
		ConsignAmount:   dec(o.ConsignAmount),
		BargainAmount:   dec(o.BargainAmount),
		Price:           dec(o.Price),
		OrgPrice:        dec(o.OrgPrice),
		AvgPrice:        dec(o.AvgPrice),
		Status:          string(o.Status),
		Desc:            o.Desc,
		ChangeLogs:      o.ChangeLogs,
		ConsignDate:     o.ConsignDate,
		Created:         o.Created,
		Modified:        o.Modified,
		Version:         o.Version,
	}
	if err != nil {
		return d, err
	}
	if o.Id != "" {
		id, err := primitive.ObjectIDFromHex(o.Id)
		if err != nil {
			return d, errors.Wrapf(err, "bad order id %s", o.Id)
		}
		d.Id = id
	}
	d.Exceptions = make([]exceptionDoc, 0, len(o.Exceptions))
	for _, e := range o.Exceptions {
		d.Exceptions = append(d.Exceptions, exceptionDoc{
			Name:      e.Name,
			Alias:     e.Alias,
			Message:   e.Message,
			Manual:    e.Manual,
			Status:    string(e.Status),
			Timestamp: e.Timestamp,
		})
	}
	return d, nil
}

func (d *orderDoc) order() *types.Order {
	o := &types.Order{
		Id:              d.Id.Hex(),
		OuterId:         d.OuterId,
		Site:            d.Site,
		UserName:        d.UserName,
		Symbol:          d.Symbol,
		Side:            d.Side,
		Type:            d.Type,
		Reason:          d.Reason,
		ActionId:        d.ActionId,
		IsSysAuto:       d.IsSysAuto,
		AutoRetry:       d.AutoRetry,
		AutoRetryFailed: d.AutoRetryFailed,
		ParentOrder:     d.ParentOrder,
		ChildOrder:      d.ChildOrder,
		Amount:          fromDecimal128(d.Amount),
		ConsignAmount:   fromDecimal128(d.ConsignAmount),
		BargainAmount:   fromDecimal128(d.BargainAmount),
		Price:           fromDecimal128(d.Price),
		OrgPrice:        fromDecimal128(d.OrgPrice),
		AvgPrice:        fromDecimal128(d.AvgPrice),
		Status:          types.Status(d.Status),
		Desc:            d.Desc,
		ChangeLogs:      d.ChangeLogs,
		ConsignDate:     d.ConsignDate,
		Created:         d.Created,
		Modified:        d.Modified,
		Version:         d.Version,
	}
	for _, e := range d.Exceptions {
		o.Exceptions = append(o.Exceptions, types.Exception{
			Name:      e.Name,
			Alias:     e.Alias,
			Message:   e.Message,
			Manual:    e.Manual,
			Status:    types.Status(e.Status),
			Timestamp: e.Timestamp,
		})
	}
	return o
}

// BSON renders the filter as a Mongo query.
func (f StaleFilter) BSON() bson.D {
	statuses := bson.A{}
	for _, s := range f.Statuses {
		statuses = append(statuses, string(s))
	}
	return bson.D{
		{"reason", f.Reason},
		{"isSysAuto", true},
		{"autoRetry", true},
		{"childOrder", bson.D{{"$in", bson.A{nil, ""}}}},
		{"modified", bson.D{{"$gt", f.ModifiedAfter}, {"$lt", f.ModifiedBefore}}},
		{"autoRetryFailed", bson.D{{"$lt", f.MaxRetryFailed}}},
		{"status", bson.D{{"$in", statuses}}},
		{"$expr", bson.D{{"$lt", bson.A{
			bson.D{{"$abs", "$bargainAmount"}},
			bson.D{{"$abs", "$consignAmount"}},
		}}}},
	}
}

func (m *Mongo) findOne(ctx context.Context, filter bson.D) (*types.Order, error) {
	var d orderDoc
	if err := m.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find order")
	}
	return d.order(), nil
}

func (m *Mongo) Get(ctx context.Context, id string) (*types.Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "bad order id %s", id)
	}
	return m.findOne(ctx, bson.D{{"_id", oid}})
}

func (m *Mongo) FindByOuterIdAndSite(ctx context.Context, outerId, site string) (*types.Order, error) {
	return m.findOne(ctx, bson.D{{"outerId", outerId}, {"site", site}})
}

func (m *Mongo) Claim(ctx context.Context, f StaleFilter, to types.Status) (*types.Order, error) {
	option := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{"modified", 1}})
	r := m.coll.FindOneAndUpdate(
		ctx,
		f.BSON(),
		bson.D{
			{"$set", bson.D{
				{"status", string(to)},
				{"modified", time.Now()},
			}},
			{"$inc", bson.D{{"version", 1}}},
		},
		option,
	)
	var d orderDoc
	if err := r.Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "claim order")
	}
	return d.order(), nil
}

func (m *Mongo) Save(ctx context.Context, o *types.Order) error {
	if o.Id == "" {
		return errors.New("save order without id")
	}
	prev := o.Version
	next := o.Clone()
	next.Version = prev + 1
	next.Modified = time.Now()
	d, err := toDoc(next)
	if err != nil {
		return err
	}
	r, err := m.coll.ReplaceOne(ctx, bson.D{{"_id", d.Id}, {"version", prev}}, d)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("save order %s", o.Id))
	}
	if r.MatchedCount == 0 {
		return errors.Wrapf(ErrConflict, "order %s version %d", o.Id, prev)
	}
	o.Version = next.Version
	o.Modified = next.Modified
	return nil
}

func (m *Mongo) Insert(ctx context.Context, o *types.Order) error {
	now := time.Now()
	if o.Created.IsZero() {
		o.Created = now
	}
	if o.Modified.IsZero() {
		o.Modified = now
	}
	if o.Version == 0 {
		o.Version = 1
	}
	d, err := toDoc(o)
	if err != nil {
		return err
	}
	if d.Id.IsZero() {
		d.Id = primitive.NewObjectID()
	}
	if _, err := m.coll.InsertOne(ctx, d); err != nil {
		return errors.Wrap(err, "insert order")
	}
	o.Id = d.Id.Hex()
	return nil
}
