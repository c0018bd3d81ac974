package mongo

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/grove"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/subscription"
	"github.com/xraph/cyclebill/types"
)

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:cyclebill_plans"`

	ID          string            `grove:"id,pk"       bson:"_id"`
	Name        string            `grove:"name"        bson:"name"`
	Slug        string            `grove:"slug"        bson:"slug"`
	Description string            `grove:"description" bson:"description"`
	Currency    string            `grove:"currency"    bson:"currency"`
	Status      string            `grove:"status"      bson:"status"`
	Price       bson.Decimal128   `grove:"price"       bson:"price"`
	CycleDays   int               `grove:"cycle_days"  bson:"cycle_days"`
	TermDays    int               `grove:"term_days"   bson:"term_days"`
	Products    []productModel    `grove:"products"    bson:"products"`
	Metadata    map[string]string `grove:"metadata"    bson:"metadata,omitempty"`
	CreatedAt   time.Time         `grove:"created_at"  bson:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"  bson:"updated_at"`
}

type productModel struct {
	ProductID string `bson:"product_id"`
	Name      string `bson:"name"`
	Quantity  int    `bson:"quantity"`
}

func toPlanModel(p *plan.Plan) *planModel {
	products := make([]productModel, len(p.Products))
	for i, prod := range p.Products {
		products[i] = productModel{
			ProductID: prod.ProductID.String(),
			Name:      prod.Name,
			Quantity:  prod.Quantity,
		}
	}
	return &planModel{
		ID:          p.ID.String(),
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Currency:    p.Currency,
		Status:      string(p.Status),
		Price:       toDecimal128(p.Price),
		CycleDays:   p.CycleDays,
		TermDays:    p.TermDays,
		Products:    products,
		Metadata:    p.Metadata,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	var d decoder
	p := &plan.Plan{
		Entity:      types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:          d.id(m.ID),
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		Currency:    m.Currency,
		Status:      plan.Status(m.Status),
		Price:       d.money(m.Price, m.Currency),
		CycleDays:   m.CycleDays,
		TermDays:    m.TermDays,
		Products:    make([]plan.Product, len(m.Products)),
		Metadata:    m.Metadata,
	}
	for i, prod := range m.Products {
		p.Products[i] = plan.Product{
			ProductID: d.id(prod.ProductID),
			Name:      prod.Name,
			Quantity:  prod.Quantity,
		}
	}
	return p, d.err
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:cyclebill_subscriptions"`

	ID         string            `grove:"id,pk"       bson:"_id"`
	CustomerID string            `grove:"customer_id" bson:"customer_id"`
	PlanID     string            `grove:"plan_id"     bson:"plan_id"`
	Status     string            `grove:"status"      bson:"status"`
	StartedAt  time.Time         `grove:"started_at"  bson:"started_at"`
	Metadata   map[string]string `grove:"metadata"    bson:"metadata,omitempty"`
	CreatedAt  time.Time         `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time         `grove:"updated_at"  bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:         s.ID.String(),
		CustomerID: s.CustomerID.String(),
		PlanID:     s.PlanID.String(),
		Status:     string(s.Status),
		StartedAt:  s.StartedAt,
		Metadata:   s.Metadata,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	var d decoder
	s := &subscription.Subscription{
		Entity:     types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:         d.id(m.ID),
		CustomerID: d.id(m.CustomerID),
		PlanID:     d.id(m.PlanID),
		Status:     subscription.Status(m.Status),
		StartedAt:  m.StartedAt.UTC(),
		Metadata:   m.Metadata,
	}
	return s, d.err
}

// ==================== Cycle models ====================

// cycleModel stores a cycle with its detail rows embedded, so a cycle and
// its quota are always written atomically.
type cycleModel struct {
	grove.BaseModel `grove:"table:cyclebill_cycles"`

	ID             string          `grove:"id,pk"            bson:"_id"`
	SubscriptionID string          `grove:"subscription_id"  bson:"subscription_id"`
	Currency       string          `grove:"currency"         bson:"currency"`
	Start          time.Time       `grove:"cycle_start"      bson:"cycle_start"`
	End            time.Time       `grove:"cycle_end"        bson:"cycle_end"`
	DueDate        time.Time       `grove:"payment_due_date" bson:"payment_due_date"`
	TotalAmount    bson.Decimal128 `grove:"total_amount"     bson:"total_amount"`
	PaidAmount     bson.Decimal128 `grove:"paid_amount"      bson:"paid_amount"`
	PendingBalance bson.Decimal128 `grove:"pending_balance"  bson:"pending_balance"`
	CreditBalance  bson.Decimal128 `grove:"credit_balance"   bson:"credit_balance"`
	Status         string          `grove:"payment_status"   bson:"payment_status"`
	Details        []detailModel   `grove:"details"          bson:"details"`
	CreatedAt      time.Time       `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"       bson:"updated_at"`
}

type detailModel struct {
	ID                string    `bson:"id"`
	ProductID         string    `bson:"product_id"`
	PlannedQuantity   int       `bson:"planned_quantity"`
	DeliveredQuantity int       `bson:"delivered_quantity"`
	RemainingBalance  int       `bson:"remaining_balance"`
	ReservedQuantity  int       `bson:"reserved_quantity"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func toCycleModel(c *cycle.Cycle) *cycleModel {
	details := make([]detailModel, len(c.Details))
	for i, d := range c.Details {
		details[i] = detailModel{
			ID:                d.ID.String(),
			ProductID:         d.ProductID.String(),
			PlannedQuantity:   d.PlannedQuantity,
			DeliveredQuantity: d.DeliveredQuantity,
			RemainingBalance:  d.RemainingBalance,
			ReservedQuantity:  d.ReservedQuantity,
			CreatedAt:         d.CreatedAt,
			UpdatedAt:         d.UpdatedAt,
		}
	}
	return &cycleModel{
		ID:             c.ID.String(),
		SubscriptionID: c.SubscriptionID.String(),
		Currency:       c.Currency,
		Start:          c.Start,
		End:            c.End,
		DueDate:        c.DueDate,
		TotalAmount:    toDecimal128(c.TotalAmount),
		PaidAmount:     toDecimal128(c.PaidAmount),
		PendingBalance: toDecimal128(c.PendingBalance),
		CreditBalance:  toDecimal128(c.CreditBalance),
		Status:         string(c.Status),
		Details:        details,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func fromCycleModel(m *cycleModel) (*cycle.Cycle, error) {
	var d decoder
	c := &cycle.Cycle{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:             d.id(m.ID),
		SubscriptionID: d.id(m.SubscriptionID),
		Currency:       m.Currency,
		Start:          cycle.Day(m.Start),
		End:            cycle.Day(m.End),
		DueDate:        cycle.Day(m.DueDate),
		TotalAmount:    d.money(m.TotalAmount, m.Currency),
		PaidAmount:     d.money(m.PaidAmount, m.Currency),
		PendingBalance: d.money(m.PendingBalance, m.Currency),
		CreditBalance:  d.money(m.CreditBalance, m.Currency),
		Status:         cycle.PaymentStatus(m.Status),
		Details:        make([]cycle.Detail, len(m.Details)),
	}
	for i, dm := range m.Details {
		c.Details[i] = cycle.Detail{
			Entity:            types.Entity{CreatedAt: dm.CreatedAt.UTC(), UpdatedAt: dm.UpdatedAt.UTC()},
			ID:                d.id(dm.ID),
			CycleID:           c.ID,
			ProductID:         d.id(dm.ProductID),
			PlannedQuantity:   dm.PlannedQuantity,
			DeliveredQuantity: dm.DeliveredQuantity,
			RemainingBalance:  dm.RemainingBalance,
			ReservedQuantity:  dm.ReservedQuantity,
		}
	}
	return c, d.err
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:cyclebill_payments"`

	ID             string          `grove:"id,pk"            bson:"_id"`
	CycleID        string          `grove:"cycle_id"         bson:"cycle_id"`
	Kind           string          `grove:"kind"             bson:"kind"`
	Amount         bson.Decimal128 `grove:"amount"           bson:"amount"`
	Currency       string          `grove:"currency"         bson:"currency"`
	Method         string          `grove:"method"           bson:"method"`
	PaidAt         time.Time       `grove:"payment_date"     bson:"payment_date"`
	Reference      string          `grove:"reference"        bson:"reference"`
	Notes          string          `grove:"notes"            bson:"notes,omitempty"`
	ActorID        string          `grove:"actor_id"         bson:"actor_id,omitempty"`
	RelatedCycleID string          `grove:"related_cycle_id" bson:"related_cycle_id,omitempty"`
	CreatedAt      time.Time       `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"       bson:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	m := &paymentModel{
		ID:        p.ID.String(),
		CycleID:   p.CycleID.String(),
		Kind:      string(p.Kind),
		Amount:    toDecimal128(p.Amount),
		Currency:  p.Amount.Currency,
		Method:    string(p.Method),
		PaidAt:    p.PaidAt,
		Reference: p.Reference,
		Notes:     p.Notes,
		ActorID:   p.ActorID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if !p.RelatedCycleID.IsNil() {
		m.RelatedCycleID = p.RelatedCycleID.String()
	}
	return m
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	var d decoder
	p := &payment.Payment{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:             d.id(m.ID),
		CycleID:        d.id(m.CycleID),
		Kind:           payment.Kind(m.Kind),
		Amount:         d.money(m.Amount, m.Currency),
		Method:         payment.Method(m.Method),
		PaidAt:         m.PaidAt.UTC(),
		Reference:      m.Reference,
		Notes:          m.Notes,
		ActorID:        m.ActorID,
		RelatedCycleID: d.id(m.RelatedCycleID),
	}
	return p, d.err
}

// ==================== Conversion helpers ====================

// toDecimal128 stores money as an exact two-digit decimal.
func toDecimal128(m types.Money) bson.Decimal128 {
	d, err := bson.ParseDecimal128(m.FormatMajor())
	if err != nil {
		return bson.NewDecimal128(0, 0)
	}
	return d
}

// decoder converts stored fields back to domain values and keeps the first
// conversion error.
type decoder struct {
	err error
}

func (d *decoder) id(s string) id.ID {
	if s == "" || d.err != nil {
		return id.Nil
	}
	v, err := id.Parse(s)
	if err != nil {
		d.err = err
	}
	return v
}

func (d *decoder) money(v bson.Decimal128, currency string) types.Money {
	if d.err != nil {
		return types.Zero(currency)
	}
	dec, err := decimal.NewFromString(v.String())
	if err != nil {
		d.err = err
		return types.Zero(currency)
	}
	return types.FromDecimal(dec, currency)
}
