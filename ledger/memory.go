package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xyths/otrace/types"
)

// Memory is an in-process Ledger. It keeps copies, callers never share
// state with the store.
type Memory struct {
	Now func() time.Time

	lock   sync.Mutex
	orders map[string]*types.Order
}

func NewMemory() *Memory {
	return &Memory{Now: time.Now, orders: make(map[string]*types.Order)}
}

func (m *Memory) Get(ctx context.Context, id string) (*types.Order, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *Memory) FindByOuterIdAndSite(ctx context.Context, outerId, site string) (*types.Order, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, o := range m.orders {
		if o.OuterId == outerId && o.Site == site {
			return o.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Claim picks the oldest matching order, same as the Mongo sort.
func (m *Memory) Claim(ctx context.Context, f StaleFilter, to types.Status) (*types.Order, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	var found *types.Order
	for _, o := range m.orders {
		if !f.Match(o) {
			continue
		}
		if found == nil || o.Modified.Before(found.Modified) {
			found = o
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	found.Status = to
	found.Modified = m.Now()
	found.Version++
	return found.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, o *types.Order) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	cur, ok := m.orders[o.Id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "save order %s", o.Id)
	}
	if cur.Version != o.Version {
		return errors.Wrapf(ErrConflict, "order %s version %d, stored %d", o.Id, o.Version, cur.Version)
	}
	o.Version++
	o.Modified = m.Now()
	m.orders[o.Id] = o.Clone()
	return nil
}

func (m *Memory) Insert(ctx context.Context, o *types.Order) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if o.Id == "" {
		o.Id = uuid.NewString()
	}
	if _, ok := m.orders[o.Id]; ok {
		return errors.Errorf("order %s exists", o.Id)
	}
	now := m.Now()
	if o.Created.IsZero() {
		o.Created = now
	}
	if o.Modified.IsZero() {
		o.Modified = now
	}
	if o.Version == 0 {
		o.Version = 1
	}
	m.orders[o.Id] = o.Clone()
	return nil
}

// Snapshot returns copies of all orders, sorted by id.
func (m *Memory) Snapshot() []*types.Order {
	m.lock.Lock()
	defer m.lock.Unlock()
	all := make([]*types.Order, 0, len(m.orders))
	for _, o := range m.orders {
		all = append(all, o.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Id < all[j].Id })
	return all
}
