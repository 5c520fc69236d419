package venue

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xyths/hs"
	"github.com/xyths/hs/exchange/huobi"
	"github.com/xyths/otrace/types"
)

// Client is the part of an exchange REST api the reconciler needs.
// Symbols are in the venue's own notation, see FormatSymbol.
type Client interface {
	LastPrice(symbol string) (decimal.Decimal, error)
	CancelOrder(symbol string, orderId uint64) error
	BuyLimit(symbol, clientOrderId string, price, amount decimal.Decimal) (uint64, error)
	SellLimit(symbol, clientOrderId string, price, amount decimal.Decimal) (uint64, error)
}

var ErrUnknownSite = errors.New("unknown site")

// Venues holds one client per site.
type Venues struct {
	lock    sync.RWMutex
	clients map[string]Client
}

func NewVenues() *Venues {
	return &Venues{clients: make(map[string]Client)}
}

// New connects every configured exchange, keyed by its name.
func New(confs []hs.ExchangeConf) (*Venues, error) {
	v := NewVenues()
	for _, conf := range confs {
		c, err := dial(conf)
		if err != nil {
			return nil, err
		}
		v.Add(conf.Name, c)
	}
	return v, nil
}

func dial(conf hs.ExchangeConf) (Client, error) {
	switch conf.Name {
	case "huobi":
		c, err := huobi.New(conf.Label, conf.Key, conf.Secret, conf.Host)
		if err != nil {
			return nil, errors.Wrapf(err, "connect %s", conf.Label)
		}
		return c, nil
	default:
		return nil, errors.Errorf("unsupported exchange: %s", conf.Name)
	}
}

func (v *Venues) Add(site string, c Client) {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.clients[site] = c
}

func (v *Venues) Client(site string) (Client, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()
	c, ok := v.clients[site]
	if !ok {
		return nil, errors.Wrap(ErrUnknownSite, site)
	}
	return c, nil
}

func (v *Venues) Sites() []string {
	v.lock.RLock()
	defer v.lock.RUnlock()
	sites := make([]string, 0, len(v.clients))
	for s := range v.clients {
		sites = append(sites, s)
	}
	return sites
}

// FormatSymbol converts eth#btc to the notation of the site.
func FormatSymbol(site string, s types.Symbol) string {
	switch site {
	case "gate":
		return strings.ToUpper(s.Target + "_" + s.Settlement)
	case "okex":
		return strings.ToUpper(s.Target + "-" + s.Settlement)
	default:
		// huobi and most others: ethbtc
		return s.Target + s.Settlement
	}
}

// OrderId parses the outer id of a ledger order.
func OrderId(outerId string) (uint64, error) {
	id, err := strconv.ParseUint(outerId, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad outer id %q", outerId)
	}
	return id, nil
}
