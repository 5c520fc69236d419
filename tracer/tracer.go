package tracer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/xyths/hs"
	"github.com/xyths/otrace/actuator"
	"github.com/xyths/otrace/condition"
	"github.com/xyths/otrace/ingest"
	"github.com/xyths/otrace/ledger"
	"github.com/xyths/otrace/metrics"
	"github.com/xyths/otrace/notify"
	"github.com/xyths/otrace/oracle"
	"github.com/xyths/otrace/reconcile"
	"github.com/xyths/otrace/retry"
	"github.com/xyths/otrace/stream"
	"github.com/xyths/otrace/transfer"
	"github.com/xyths/otrace/types"
	"github.com/xyths/otrace/venue"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Tracer wires the order reconciler: the stale order loop and the venue stream ingestion.
type Tracer struct {
	cfg Config

	Sugar    *zap.SugaredLogger
	db       *mongo.Database
	rdb      *redis.Client
	ledger   ledger.Ledger
	loop     *reconcile.Loop
	ingestor *ingest.Ingestor
	stream   *stream.Client
	metrics  *metrics.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config) *Tracer {
	return &Tracer{cfg: cfg}
}

func (t *Tracer) Init(ctx context.Context) error {
	if err := t.cfg.Validate(); err != nil {
		return err
	}
	l, err := hs.NewZapLogger(t.cfg.Log)
	if err != nil {
		return err
	}
	t.Sugar = l.Sugar()
	t.Sugar.Info("Logger initialized")

	if err := t.initMongo(ctx); err != nil {
		return err
	}
	t.ledger = ledger.NewMongo(t.db)

	venues, err := venue.New(t.cfg.Exchanges)
	if err != nil {
		return err
	}
	t.Sugar.Infof("Exchanges initialized: %v", venues.Sites())

	var prices oracle.Oracle = oracle.NewExchange(venues, t.cfg.Policy.PriceRetries, t.Sugar)
	if t.cfg.Redis.Url != "" {
		if prices, err = t.initRedis(ctx, prices); err != nil {
			return err
		}
	}

	rc, _ := t.cfg.Policy.Reconcile()
	policy := t.cfg.Policy.Retry()
	labels := []string{"otrace"}
	if t.cfg.Env != "" {
		labels = append(labels, t.cfg.Env)
	}
	coordinator := retry.NewCoordinator(
		t.ledger,
		retry.NewEvaluator(prices, policy),
		condition.NewMongoStore(t.db),
		condition.NewExprChecker(prices, t.Sugar),
		actuator.New(venues, t.ledger, t.Sugar),
		notify.New(t.cfg.Robots, labels, t.Sugar),
		policy,
		t.Sugar,
	)
	t.loop = reconcile.New(rc, t.ledger, coordinator, t.Sugar)
	t.ingestor = ingest.New(t.ledger, transfer.NewJournal(t.db, t.Sugar), t.cfg.Env, t.Sugar)

	if t.cfg.Stream.Url != "" {
		sc, _ := t.cfg.Stream.Stream()
		t.stream = stream.New(sc, t.ingestor, t.Sugar)
	}
	if t.cfg.Metrics.Addr != "" {
		t.metrics = metrics.NewServer(t.cfg.Metrics.Addr, t.Sugar)
	}
	t.Sugar.Infof("tracer initialized, strict mode %v, interval %s", policy.StrictMode, rc.Interval)
	return nil
}

func (t *Tracer) initMongo(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	return backoff.Retry(func() error {
		db, err := hs.ConnectMongo(ctx, t.cfg.Mongo)
		if err != nil {
			t.Sugar.Warnf("connect mongo error: %s", err)
			return err
		}
		t.db = db
		t.Sugar.Info("Mongo connected")
		return nil
	}, backoff.WithContext(b, ctx))
}

func (t *Tracer) initRedis(ctx context.Context, next oracle.Oracle) (oracle.Oracle, error) {
	opts, err := redis.ParseURL(t.cfg.Redis.Url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	t.rdb = redis.NewClient(opts)
	if err := t.rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	ttl, _ := parseDuration(t.cfg.Redis.PriceTTL, 5*time.Second)
	t.Sugar.Infof("Redis connected, price ttl %s", ttl)
	return oracle.NewCached(next, oracle.NewRedisCache(t.rdb), ttl, t.Sugar), nil
}

func (t *Tracer) Start(ctx context.Context) error {
	if t.metrics != nil {
		t.metrics.Start()
	}
	t.loop.Start(ctx)
	if t.stream != nil {
		sctx, cancel := context.WithCancel(ctx)
		t.cancel = cancel
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.stream.Run(sctx)
		}()
	}
	t.Sugar.Info("tracer started")
	return nil
}

func (t *Tracer) Stop(ctx context.Context) {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	t.loop.Stop()
	if t.metrics != nil {
		if err := t.metrics.Shutdown(ctx); err != nil {
			t.Sugar.Errorf("shutdown metrics error: %s", err)
		}
	}
	t.Sugar.Info("tracer stopped")
}

func (t *Tracer) Close(ctx context.Context) {
	if t.rdb != nil {
		_ = t.rdb.Close()
	}
	if t.db != nil {
		if err := t.db.Client().Disconnect(ctx); err != nil {
			t.Sugar.Errorf("disconnect mongo error: %s", err)
		}
	}
	t.Sugar.Info("tracer closed")
	_ = t.Sugar.Sync()
}

// Shutdown stops and closes the tracer on its own deadline, the caller's
// context is usually canceled by then.
func (t *Tracer) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	t.Stop(ctx)
	t.Close(ctx)
}

// Once runs one reconciliation tick.
func (t *Tracer) Once(ctx context.Context) error {
	o, err := t.loop.RunOnce(ctx)
	if err != nil {
		return err
	}
	if o == nil {
		t.Sugar.Info("no stale order")
	}
	return nil
}

func (t *Tracer) Print(ctx context.Context, outerId, site string) error {
	o, err := t.ledger.FindByOuterIdAndSite(ctx, outerId, site)
	if err != nil {
		return errors.Wrapf(err, "order %s on %s", outerId, site)
	}
	b, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// Ingest feeds the venue messages in file to the ingestor.
func (t *Tracer) Ingest(ctx context.Context, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	msgs, err := ReadMessages(data)
	if err != nil {
		return err
	}
	for i := range msgs {
		r := t.ingestor.Dispatch(ctx, &msgs[i])
		t.Sugar.Infof("message %d from %s: %d updated, %d skipped, %d failed",
			i, msgs[i].Site, r.Updated, r.Skipped, len(r.Errors))
		if err := r.Err(); err != nil {
			t.Sugar.Error(err)
		}
	}
	return nil
}

// ReadMessages accepts one venue message or an array of them.
func ReadMessages(data []byte) ([]types.VenueMessage, error) {
	var msgs []types.VenueMessage
	if err := json.Unmarshal(data, &msgs); err == nil {
		return msgs, nil
	}
	var m types.VenueMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "bad venue message")
	}
	return []types.VenueMessage{m}, nil
}
