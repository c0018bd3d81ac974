package plan

import (
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDraft    Status = "draft"
)

// Plan is a recurring delivery plan: a price per cycle and the product
// quantities a subscriber is entitled to within each cycle.
type Plan struct {
	types.Entity
	ID          id.PlanID         `json:"id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Description string            `json:"description"`
	Currency    string            `json:"currency"`
	Status      Status            `json:"status"`
	Price       types.Money       `json:"price"`
	CycleDays   int               `json:"default_cycle_days"`
	TermDays    int               `json:"payment_term_days"`
	Products    []Product         `json:"products"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Product is one entry of a plan's per-cycle quota.
type Product struct {
	ProductID id.ProductID `json:"product_id"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
}

// FindProduct returns the quota entry for productID, or nil.
func (p *Plan) FindProduct(productID id.ProductID) *Product {
	for i := range p.Products {
		if p.Products[i].ProductID.String() == productID.String() {
			return &p.Products[i]
		}
	}
	return nil
}

// Validate reports the first structural problem with the plan, or "".
func (p *Plan) Validate() string {
	switch {
	case p.Name == "":
		return "name is required"
	case p.Currency == "":
		return "currency is required"
	case p.Price.Currency != p.Currency:
		return "price currency must match plan currency"
	case p.Price.IsNegative():
		return "price must not be negative"
	case p.CycleDays <= 0:
		return "default cycle days must be positive"
	case p.TermDays < 0:
		return "payment term days must not be negative"
	}
	seen := make(map[string]bool, len(p.Products))
	for _, prod := range p.Products {
		if prod.ProductID.IsNil() {
			return "product id is required"
		}
		if prod.Quantity < 0 {
			return "product quantity must not be negative"
		}
		if seen[prod.ProductID.String()] {
			return "duplicate product " + prod.ProductID.String()
		}
		seen[prod.ProductID.String()] = true
	}
	return ""
}
