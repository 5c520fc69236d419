package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/xyths/otrace/ingest"
	"github.com/xyths/otrace/metrics"
	"github.com/xyths/otrace/types"
	"go.uber.org/zap"
)

type Config struct {
	Url          string
	Sites        []string // sites to subscribe, none means the server pushes everything
	PingInterval time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

type Dispatcher interface {
	Dispatch(ctx context.Context, m *types.VenueMessage) ingest.BatchResult
}

type subscribe struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Site    string `json:"site"`
}

// Client reads venue messages from the cache server websocket and reconnects
// with exponential backoff until the context is done.
type Client struct {
	Sugar *zap.SugaredLogger

	config     Config
	dispatcher Dispatcher
}

func New(config Config, d Dispatcher, sugar *zap.SugaredLogger) *Client {
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.MinBackoff <= 0 {
		config.MinBackoff = time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = time.Minute
	}
	return &Client{Sugar: sugar, config: config, dispatcher: d}
}

func (c *Client) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.MinBackoff
	b.MaxInterval = c.config.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			c.Sugar.Info("venue stream stopped")
			return
		}
		if connected {
			b.Reset()
		}
		wait := b.NextBackOff()
		c.Sugar.Warnf("venue stream %s disconnected: %s, reconnect in %s", c.config.Url, err, wait)
		metrics.Reconnects.Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (c *Client) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.config.Url, nil)
	if err != nil {
		return false, errors.Wrap(err, "dial")
	}
	c.Sugar.Infof("venue stream %s connected", c.config.Url)
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		_ = conn.Close()
		wg.Wait()
	}()

	for _, site := range c.config.Sites {
		if err := conn.WriteJSON(subscribe{Event: "subscribe", Channel: types.ChannelOrder, Site: site}); err != nil {
			return true, errors.Wrapf(err, "subscribe %s", site)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.config.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// unblocks ReadMessage
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					c.Sugar.Debugf("ping error: %s", err)
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, errors.Wrap(err, "read")
		}
		c.handle(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	var m types.VenueMessage
	if err := json.Unmarshal(data, &m); err != nil {
		c.Sugar.Warnf("bad venue message: %s, %s", err, data)
		return
	}
	r := c.dispatcher.Dispatch(ctx, &m)
	if err := r.Err(); err != nil {
		c.Sugar.Errorf("venue message from %s: %s", m.Site, err)
	} else if r.Updated > 0 {
		c.Sugar.Debugf("venue message from %s: %d updated, %d skipped", m.Site, r.Updated, r.Skipped)
	}
}
