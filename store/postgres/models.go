package postgres

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/grove"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/subscription"
	"github.com/xraph/cyclebill/types"
)

// Money columns are NUMERIC(14,2); the models carry them as decimal text so
// no float conversion happens on either side of the wire.

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:cyclebill_plans"`

	ID          string            `grove:"id,pk"`
	Name        string            `grove:"name"`
	Slug        string            `grove:"slug"`
	Description string            `grove:"description"`
	Currency    string            `grove:"currency"`
	Status      string            `grove:"status"`
	Price       string            `grove:"price"`
	CycleDays   int               `grove:"cycle_days"`
	TermDays    int               `grove:"term_days"`
	Products    json.RawMessage   `grove:"products,type:jsonb"`
	Metadata    map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt   time.Time         `grove:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"`
}

type productModel struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

func toPlanModel(p *plan.Plan) (*planModel, error) {
	products := make([]productModel, len(p.Products))
	for i, prod := range p.Products {
		products[i] = productModel{
			ProductID: prod.ProductID.String(),
			Name:      prod.Name,
			Quantity:  prod.Quantity,
		}
	}
	raw, err := json.Marshal(products)
	if err != nil {
		return nil, err
	}
	return &planModel{
		ID:          p.ID.String(),
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Currency:    p.Currency,
		Status:      string(p.Status),
		Price:       p.Price.FormatMajor(),
		CycleDays:   p.CycleDays,
		TermDays:    p.TermDays,
		Products:    raw,
		Metadata:    metadata(p.Metadata),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	var products []productModel
	if len(m.Products) > 0 {
		if err := json.Unmarshal(m.Products, &products); err != nil {
			return nil, err
		}
	}

	var d decoder
	p := &plan.Plan{
		Entity:      entity(m.CreatedAt, m.UpdatedAt),
		ID:          d.id(m.ID),
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		Currency:    m.Currency,
		Status:      plan.Status(m.Status),
		Price:       d.money(m.Price, m.Currency),
		CycleDays:   m.CycleDays,
		TermDays:    m.TermDays,
		Products:    make([]plan.Product, len(products)),
		Metadata:    emptyToNil(m.Metadata),
	}
	for i, prod := range products {
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

	ID         string            `grove:"id,pk"`
	CustomerID string            `grove:"customer_id"`
	PlanID     string            `grove:"plan_id"`
	Status     string            `grove:"status"`
	StartedAt  time.Time         `grove:"started_at"`
	Metadata   map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt  time.Time         `grove:"created_at"`
	UpdatedAt  time.Time         `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:         s.ID.String(),
		CustomerID: s.CustomerID.String(),
		PlanID:     s.PlanID.String(),
		Status:     string(s.Status),
		StartedAt:  s.StartedAt,
		Metadata:   metadata(s.Metadata),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	var d decoder
	s := &subscription.Subscription{
		Entity:     entity(m.CreatedAt, m.UpdatedAt),
		ID:         d.id(m.ID),
		CustomerID: d.id(m.CustomerID),
		PlanID:     d.id(m.PlanID),
		Status:     subscription.Status(m.Status),
		StartedAt:  m.StartedAt.UTC(),
		Metadata:   emptyToNil(m.Metadata),
	}
	return s, d.err
}

// ==================== Cycle models ====================

type cycleModel struct {
	grove.BaseModel `grove:"table:cyclebill_cycles"`

	ID             string    `grove:"id,pk"`
	SubscriptionID string    `grove:"subscription_id"`
	Currency       string    `grove:"currency"`
	Start          time.Time `grove:"cycle_start"`
	End            time.Time `grove:"cycle_end"`
	DueDate        time.Time `grove:"payment_due_date"`
	TotalAmount    string    `grove:"total_amount"`
	PaidAmount     string    `grove:"paid_amount"`
	PendingBalance string    `grove:"pending_balance"`
	CreditBalance  string    `grove:"credit_balance"`
	Status         string    `grove:"payment_status"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

type detailModel struct {
	grove.BaseModel `grove:"table:cyclebill_cycle_details"`

	ID                string    `grove:"id,pk"`
	CycleID           string    `grove:"cycle_id"`
	ProductID         string    `grove:"product_id"`
	PlannedQuantity   int       `grove:"planned_quantity"`
	DeliveredQuantity int       `grove:"delivered_quantity"`
	RemainingBalance  int       `grove:"remaining_balance"`
	ReservedQuantity  int       `grove:"reserved_quantity"`
	CreatedAt         time.Time `grove:"created_at"`
	UpdatedAt         time.Time `grove:"updated_at"`
}

func toCycleModel(c *cycle.Cycle) *cycleModel {
	return &cycleModel{
		ID:             c.ID.String(),
		SubscriptionID: c.SubscriptionID.String(),
		Currency:       c.Currency,
		Start:          cycle.Day(c.Start),
		End:            cycle.Day(c.End),
		DueDate:        cycle.Day(c.DueDate),
		TotalAmount:    c.TotalAmount.FormatMajor(),
		PaidAmount:     c.PaidAmount.FormatMajor(),
		PendingBalance: c.PendingBalance.FormatMajor(),
		CreditBalance:  c.CreditBalance.FormatMajor(),
		Status:         string(c.Status),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func fromCycleModel(m *cycleModel) (*cycle.Cycle, error) {
	var d decoder
	c := &cycle.Cycle{
		Entity:         entity(m.CreatedAt, m.UpdatedAt),
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
	}
	return c, d.err
}

func toDetailModel(d *cycle.Detail) *detailModel {
	return &detailModel{
		ID:                d.ID.String(),
		CycleID:           d.CycleID.String(),
		ProductID:         d.ProductID.String(),
		PlannedQuantity:   d.PlannedQuantity,
		DeliveredQuantity: d.DeliveredQuantity,
		RemainingBalance:  d.RemainingBalance,
		ReservedQuantity:  d.ReservedQuantity,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func fromDetailModel(m *detailModel) (cycle.Detail, error) {
	var d decoder
	det := cycle.Detail{
		Entity:            entity(m.CreatedAt, m.UpdatedAt),
		ID:                d.id(m.ID),
		CycleID:           d.id(m.CycleID),
		ProductID:         d.id(m.ProductID),
		PlannedQuantity:   m.PlannedQuantity,
		DeliveredQuantity: m.DeliveredQuantity,
		RemainingBalance:  m.RemainingBalance,
		ReservedQuantity:  m.ReservedQuantity,
	}
	return det, d.err
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:cyclebill_payments"`

	ID             string    `grove:"id,pk"`
	CycleID        string    `grove:"cycle_id"`
	Kind           string    `grove:"kind"`
	Amount         string    `grove:"amount"`
	Currency       string    `grove:"currency"`
	Method         string    `grove:"method"`
	PaidAt         time.Time `grove:"payment_date"`
	Reference      string    `grove:"reference"`
	Notes          string    `grove:"notes"`
	ActorID        string    `grove:"actor_id"`
	RelatedCycleID *string   `grove:"related_cycle_id"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	m := &paymentModel{
		ID:        p.ID.String(),
		CycleID:   p.CycleID.String(),
		Kind:      string(p.Kind),
		Amount:    p.Amount.FormatMajor(),
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
		related := p.RelatedCycleID.String()
		m.RelatedCycleID = &related
	}
	return m
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	var d decoder
	p := &payment.Payment{
		Entity:    entity(m.CreatedAt, m.UpdatedAt),
		ID:        d.id(m.ID),
		CycleID:   d.id(m.CycleID),
		Kind:      payment.Kind(m.Kind),
		Amount:    d.money(m.Amount, m.Currency),
		Method:    payment.Method(m.Method),
		PaidAt:    m.PaidAt.UTC(),
		Reference: m.Reference,
		Notes:     m.Notes,
		ActorID:   m.ActorID,
	}
	if m.RelatedCycleID != nil {
		p.RelatedCycleID = d.id(*m.RelatedCycleID)
	}
	return p, d.err
}

// ==================== Conversion helpers ====================

func entity(created, updated time.Time) types.Entity {
	return types.Entity{CreatedAt: created.UTC(), UpdatedAt: updated.UTC()}
}

// metadata never writes NULL into the NOT NULL jsonb columns.
func metadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func emptyToNil(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}

// decoder converts stored columns back to domain values and keeps the first
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

func (d *decoder) money(s, currency string) types.Money {
	if d.err != nil {
		return types.Zero(currency)
	}
	dec, err := decimal.NewFromString(s)
	if err != nil {
		d.err = err
		return types.Zero(currency)
	}
	return types.FromDecimal(dec, currency)
}
