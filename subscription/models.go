package subscription

import (
	"time"

	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/types"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Subscription binds a customer to a plan. Only active subscriptions may
// have billing cycles provisioned.
type Subscription struct {
	types.Entity
	ID         id.SubscriptionID `json:"id"`
	CustomerID id.CustomerID     `json:"customer_id"`
	PlanID     id.PlanID         `json:"plan_id"`
	Status     Status            `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IsActive reports whether cycles may be provisioned for the subscription.
func (s *Subscription) IsActive() bool { return s.Status == StatusActive }
