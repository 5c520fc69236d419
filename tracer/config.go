package tracer

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/hs"
	"github.com/xyths/otrace/reconcile"
	"github.com/xyths/otrace/retry"
	"github.com/xyths/otrace/stream"
)

type PolicyConf struct {
	StrictMode      bool             `json:"strictMode"`
	Interval        string           `json:"interval"` // eg. 15s
	MinAge          string           `json:"minAge"`
	MaxAge          string           `json:"maxAge"`
	MaxRetryFailed  *int             `json:"maxRetryFailed"` // 0 turns retries off
	MinNotional     *decimal.Decimal `json:"minNotional"`    // 0 reprices any size
	MaxLossPercent  decimal.Decimal  `json:"maxLossPercent"`
	ReferenceCoin   string           `json:"referenceCoin"`
	ReferenceSite   string           `json:"referenceSite"`
	ReferenceSymbol string           `json:"referenceSymbol"`
	PriceRetries    uint64           `json:"priceRetries"`
}

type RedisConf struct {
	Url      string `json:"url"` // redis://host:6379/0, empty disables the price cache
	PriceTTL string `json:"priceTTL"`
}

type StreamConf struct {
	Url   string   `json:"url"` // empty disables ingestion
	Sites []string `json:"sites"`
	Ping  string   `json:"ping"`
}

type MetricsConf struct {
	Addr string `json:"addr"` // empty disables /metrics
}

type Config struct {
	Env       string // production turns off change logs
	Exchanges []hs.ExchangeConf
	Mongo     hs.MongoConf
	Log       hs.LogConf
	Robots    []hs.BroadcastConf
	Policy    PolicyConf
	Redis     RedisConf
	Stream    StreamConf
	Metrics   MetricsConf
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "bad duration %q", s)
	}
	return d, nil
}

// Reconcile returns the loop config. Empty strings and absent fields take the defaults.
func (p PolicyConf) Reconcile() (reconcile.Config, error) {
	c := reconcile.DefaultConfig()
	var err error
	if c.Interval, err = parseDuration(p.Interval, c.Interval); err != nil {
		return c, err
	}
	if c.MinAge, err = parseDuration(p.MinAge, c.MinAge); err != nil {
		return c, err
	}
	if c.MaxAge, err = parseDuration(p.MaxAge, c.MaxAge); err != nil {
		return c, err
	}
	if p.MaxRetryFailed != nil {
		c.MaxRetryFailed = *p.MaxRetryFailed
	}
	return c, nil
}

func (p PolicyConf) Retry() retry.Policy {
	r := retry.DefaultPolicy()
	r.StrictMode = p.StrictMode
	if p.MinNotional != nil {
		r.MinNotional = *p.MinNotional
	}
	if !p.MaxLossPercent.IsZero() {
		r.MaxLossPercent = p.MaxLossPercent
	}
	if p.ReferenceCoin != "" {
		r.ReferenceCoin = p.ReferenceCoin
	}
	if p.ReferenceSite != "" {
		r.ReferenceSite = p.ReferenceSite
	}
	if p.ReferenceSymbol != "" {
		r.ReferenceSymbol = p.ReferenceSymbol
	}
	return r
}

func (c StreamConf) Stream() (stream.Config, error) {
	ping, err := parseDuration(c.Ping, 30*time.Second)
	if err != nil {
		return stream.Config{}, err
	}
	return stream.Config{Url: c.Url, Sites: c.Sites, PingInterval: ping}, nil
}

func (c *Config) Validate() error {
	if len(c.Exchanges) == 0 {
		return errors.New("no exchange configured")
	}
	rc, err := c.Policy.Reconcile()
	if err != nil {
		return err
	}
	if rc.Interval <= 0 {
		return errors.Errorf("interval must be positive, got %s", rc.Interval)
	}
	if rc.MinAge < 0 || rc.MaxAge <= rc.MinAge {
		return errors.Errorf("need 0 <= minAge < maxAge, got %s and %s", rc.MinAge, rc.MaxAge)
	}
	if rc.MaxRetryFailed < 0 {
		return errors.Errorf("maxRetryFailed must not be negative, got %d", rc.MaxRetryFailed)
	}
	p := c.Policy.Retry()
	if p.MinNotional.IsNegative() {
		return errors.Errorf("minNotional must not be negative, got %s", p.MinNotional)
	}
	if !p.MaxLossPercent.IsPositive() || p.MaxLossPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return errors.Errorf("maxLossPercent must be in (0, 100), got %s", p.MaxLossPercent)
	}
	if _, err := parseDuration(c.Redis.PriceTTL, 0); err != nil {
		return err
	}
	if _, err := c.Stream.Stream(); err != nil {
		return err
	}
	return nil
}
