// Package quota splits order quantities into the part covered by a cycle's
// delivery entitlements and the part billed as additional.
package quota

import (
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
)

// Item is one requested product quantity.
type Item struct {
	ProductID id.ProductID `json:"product_id"`
	Quantity  int          `json:"quantity"`
}

// Line is the coverage decision for one Item. Covered + Additional always
// equals Requested.
type Line struct {
	ProductID  id.ProductID `json:"product_id"`
	Requested  int          `json:"requested"`
	Covered    int          `json:"covered"`
	Additional int          `json:"additional"`
}

// Breakdown is the coverage decision for a whole order.
type Breakdown struct {
	CycleID id.CycleID `json:"cycle_id"`
	Lines   []Line     `json:"lines"`
}

// TotalCovered returns the covered units across all lines.
func (b *Breakdown) TotalCovered() int {
	n := 0
	for _, l := range b.Lines {
		n += l.Covered
	}
	return n
}

// TotalAdditional returns the additional units across all lines.
func (b *Breakdown) TotalAdditional() int {
	n := 0
	for _, l := range b.Lines {
		n += l.Additional
	}
	return n
}

// Split computes coverage for items against the details of c. Units covered
// for one item are unavailable to later items of the same product, so an
// order never counts the same entitlement twice. Products without a detail
// row are fully additional. c is not modified.
func Split(c *cycle.Cycle, items []Item) *Breakdown {
	available := make(map[string]int, len(c.Details))
	for i := range c.Details {
		available[c.Details[i].ProductID.String()] += c.Details[i].Available()
	}

	b := &Breakdown{CycleID: c.ID, Lines: make([]Line, 0, len(items))}
	for _, item := range items {
		key := item.ProductID.String()
		covered := min(item.Quantity, available[key])
		available[key] -= covered
		b.Lines = append(b.Lines, Line{
			ProductID:  item.ProductID,
			Requested:  item.Quantity,
			Covered:    covered,
			Additional: item.Quantity - covered,
		})
	}
	return b
}
