package subscription

import (
	"context"

	"github.com/xraph/cyclebill/id"
)

type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	List(ctx context.Context, opts ListOpts) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
}

type ListOpts struct {
	CustomerID id.CustomerID
	Status     Status
	Limit      int
	Offset     int
}
