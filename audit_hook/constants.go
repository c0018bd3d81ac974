package audithook

// Action constants for audit events.
const (
	// Payment actions
	ActionPaymentRegistered = "payment.registered"
	ActionSurchargeApplied  = "surcharge.applied"

	// Credit actions
	ActionCreditTransferred = "credit.transferred"
	ActionCreditApplied     = "credit.applied"

	// Cycle actions
	ActionCycleProvisioned = "cycle.provisioned"

	// Quota actions
	ActionQuotaExceeded = "quota.exceeded"
	ActionQuotaReserved = "quota.reserved"
	ActionQuotaReleased = "quota.released"

	// Delivery actions
	ActionDeliveryApplied    = "delivery.applied"
	ActionDeliveryRolledBack = "delivery.rolled_back"
)

// Resource constants for audit events.
const (
	ResourceCycle        = "cycle"
	ResourcePayment      = "payment"
	ResourceSubscription = "subscription"
)

// Category constants for audit events.
const (
	CategoryBilling  = "billing"
	CategoryPayment  = "payment"
	CategoryCredit   = "credit"
	CategoryQuota    = "quota"
	CategoryDelivery = "delivery"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
