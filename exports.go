package cyclebill

import (
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/quota"
	"github.com/xraph/cyclebill/types"
)

// Re-export common types for convenience so users don't have to import
// every sub-package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Cycle is re-exported from cycle package.
type Cycle = cycle.Cycle

// Payment is re-exported from payment package.
type Payment = payment.Payment

// QuotaItem is re-exported from quota package.
type QuotaItem = quota.Item

// QuotaBreakdown is re-exported from quota package.
type QuotaBreakdown = quota.Breakdown

// Re-export Money constructors
var (
	NewMoney   = types.New
	ParseMoney = types.Parse
	Zero       = types.Zero
	Sum        = types.Sum
)
