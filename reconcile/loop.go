package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xyths/otrace/ledger"
	"github.com/xyths/otrace/metrics"
	"github.com/xyths/otrace/retry"
	"github.com/xyths/otrace/types"
	"go.uber.org/zap"
)

type Config struct {
	Interval       time.Duration
	MinAge         time.Duration // orders younger than it are not stale yet
	MaxAge         time.Duration // orders older than it are abandoned
	MaxRetryFailed int
}

func DefaultConfig() Config {
	return Config{
		Interval:       15 * time.Second,
		MinAge:         30 * time.Second,
		MaxAge:         48 * time.Hour,
		MaxRetryFailed: 2,
	}
}

type Handler interface {
	Handle(ctx context.Context, o *types.Order) (retry.Decision, error)
}

// Loop claims one stale transfer order every interval and hands it to the coordinator.
type Loop struct {
	Sugar *zap.SugaredLogger
	Now   func() time.Time

	config  Config
	ledger  ledger.Ledger
	handler Handler

	lock     sync.Mutex
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(config Config, l ledger.Ledger, h Handler, sugar *zap.SugaredLogger) *Loop {
	return &Loop{
		Sugar:   sugar,
		Now:     time.Now,
		config:  config,
		ledger:  l,
		handler: h,
	}
}

func (l *Loop) Start(ctx context.Context) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.stopChan != nil {
		return
	}
	l.stopChan = make(chan struct{})
	l.doneChan = make(chan struct{})
	go l.loop(ctx, l.stopChan, l.doneChan)
	l.Sugar.Infof("reconcile loop started, interval %s", l.config.Interval)
}

// Stop waits for the running tick to finish.
func (l *Loop) Stop() {
	l.lock.Lock()
	stop, done := l.stopChan, l.doneChan
	l.stopChan, l.doneChan = nil, nil
	l.lock.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	l.Sugar.Info("reconcile loop stopped")
}

func (l *Loop) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := l.RunOnce(ctx); err != nil {
				l.Sugar.Errorf("reconcile error: %s", err)
			}
		}
	}
}

// RunOnce claims at most one stale order and processes it.
// It returns the claimed order, nil when there was none.
func (l *Loop) RunOnce(ctx context.Context) (o *types.Order, err error) {
	tick := uuid.NewString()[:8]
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("tick %s panic: %v", tick, r)
			metrics.Ticks.WithLabelValues("error").Inc()
		}
	}()

	f := ledger.NewStaleFilter(l.Now(), l.config.MinAge, l.config.MaxAge, l.config.MaxRetryFailed)
	o, err = l.ledger.Claim(ctx, f, types.StatusWaitRetry)
	if errors.Is(err, ledger.ErrNotFound) {
		metrics.Ticks.WithLabelValues("idle").Inc()
		return nil, nil
	} else if err != nil {
		metrics.Ticks.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "claim stale order")
	}
	metrics.Ticks.WithLabelValues("claimed").Inc()
	l.Sugar.Infow("stale order claimed",
		"tick", tick,
		"id", o.Id,
		"site", o.Site,
		"outerId", o.OuterId,
		"symbol", o.Symbol,
		"consign", o.ConsignAmount.String(),
		"bargain", o.BargainAmount.String(),
	)
	d, err := l.handler.Handle(ctx, o)
	l.Sugar.Infow("stale order handled", "tick", tick, "id", o.Id, "decision", string(d))
	return o, err
}
