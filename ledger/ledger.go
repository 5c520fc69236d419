package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/xyths/otrace/types"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrConflict means the order was written by someone else since it was read.
	ErrConflict = errors.New("order version conflict")
)

// Ledger is the order store. Every write is version checked: Save succeeds only if
// the stored version equals o.Version, and bumps both.
type Ledger interface {
	Get(ctx context.Context, id string) (*types.Order, error)
	FindByOuterIdAndSite(ctx context.Context, outerId, site string) (*types.Order, error)
	// Claim atomically picks one order matching f and sets its status to `to`.
	// It returns ErrNotFound when nothing matches.
	Claim(ctx context.Context, f StaleFilter, to types.Status) (*types.Order, error)
	Save(ctx context.Context, o *types.Order) error
	Insert(ctx context.Context, o *types.Order) error
}

// StaleFilter selects transfer orders that stay unfilled for too long.
// Orders already replaced by a child never match.
type StaleFilter struct {
	Reason         string
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
	MaxRetryFailed int // autoRetryFailed must be less than it
	Statuses       []types.Status
}

// NewStaleFilter builds the filter of the reconciler: modified within
// (now - maxAge, now - minAge), status consign or part_success.
func NewStaleFilter(now time.Time, minAge, maxAge time.Duration, maxRetryFailed int) StaleFilter {
	return StaleFilter{
		Reason:         types.ReasonTransfer,
		ModifiedAfter:  now.Add(-maxAge),
		ModifiedBefore: now.Add(-minAge),
		MaxRetryFailed: maxRetryFailed,
		Statuses:       []types.Status{types.StatusConsign, types.StatusPartSuccess},
	}
}

// Match evaluates the filter in process, with the same semantics as the Mongo query.
func (f StaleFilter) Match(o *types.Order) bool {
	if o.Reason != f.Reason || !o.IsSysAuto || !o.AutoRetry || o.ChildOrder != "" {
		return false
	}
	if !o.Modified.After(f.ModifiedAfter) || !o.Modified.Before(f.ModifiedBefore) {
		return false
	}
	if o.AutoRetryFailed >= f.MaxRetryFailed {
		return false
	}
	found := false
	for _, s := range f.Statuses {
		if o.Status == s {
			found = true
			break
		}
	}
	return found && o.HasRemainder()
}

// SaveWith applies fn to o and saves it. When the save hits a version conflict,
// the order is reloaded and fn applied again, at most retries more times.
func SaveWith(ctx context.Context, l Ledger, o *types.Order, retries int, fn func(o *types.Order)) (*types.Order, error) {
	fn(o)
	err := l.Save(ctx, o)
	for i := 0; i < retries && errors.Is(err, ErrConflict); i++ {
		fresh, err1 := l.Get(ctx, o.Id)
		if err1 != nil {
			return o, err1
		}
		o = fresh
		fn(o)
		err = l.Save(ctx, o)
	}
	return o, err
}
