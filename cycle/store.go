package cycle

import (
	"context"
	"time"

	"github.com/xraph/cyclebill/id"
)

// Store persists cycles and their detail rows. Get and GetActive return the
// cycle with its details; ListBySubscription returns cycles only, ordered by
// Start ascending.
type Store interface {
	Create(ctx context.Context, c *Cycle) error
	Get(ctx context.Context, cycleID id.CycleID) (*Cycle, error)
	GetActive(ctx context.Context, subID id.SubscriptionID, day time.Time) (*Cycle, error)
	ListBySubscription(ctx context.Context, subID id.SubscriptionID) ([]*Cycle, error)
	Update(ctx context.Context, c *Cycle) error
	UpdateDetail(ctx context.Context, d *Detail) error
}
