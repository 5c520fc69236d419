package condition

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	CollStrategyLog = "transferStrategyLog"
	CollStrategy    = "transferStrategy"
)

// Store finds the condition of the strategy that produced an order.
// found is false when the execution record is gone.
type Store interface {
	Condition(ctx context.Context, actionId string) (condition string, found bool, err error)
}

type MongoStore struct {
	logs       *mongo.Collection
	strategies *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		logs:       db.Collection(CollStrategyLog),
		strategies: db.Collection(CollStrategy),
	}
}

type strategyLog struct {
	Id         primitive.ObjectID `bson:"_id"`
	StrategyId primitive.ObjectID `bson:"strategyId"`
}

type strategy struct {
	Id         primitive.ObjectID `bson:"_id"`
	Conditions []string           `bson:"conditions"`
}

func (s *MongoStore) Condition(ctx context.Context, actionId string) (string, bool, error) {
	id, err := primitive.ObjectIDFromHex(actionId)
	if err != nil {
		return "", false, errors.Wrapf(err, "bad action id %q", actionId)
	}
	var l strategyLog
	if err := s.logs.FindOne(ctx, bson.D{{"_id", id}}).Decode(&l); err != nil {
		if err == mongo.ErrNoDocuments {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "find strategy log")
	}
	var st strategy
	if err := s.strategies.FindOne(ctx, bson.D{{"_id", l.StrategyId}}).Decode(&st); err != nil {
		if err == mongo.ErrNoDocuments {
			return "", false, errors.Errorf("strategy %s of log %s not found", l.StrategyId.Hex(), actionId)
		}
		return "", false, errors.Wrap(err, "find strategy")
	}
	return Join(st.Conditions), true, nil
}
