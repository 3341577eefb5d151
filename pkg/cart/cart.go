// Package cart keeps the per-conversation shopping cart.
package cart

import (
	"math"
	"strings"
	"sync"

	"salesbot/pkg/store"
)

// Item is one cart line. Qty is always at least 1.
type Item struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
	Qty      int     `json:"qty"`
}

// Sum is the line amount.
func (i Item) Sum() float64 {
	return i.Price * float64(i.Qty)
}

// Totals summarizes a cart with VAT applied.
type Totals struct {
	Count    int     `json:"count"`
	Subtotal float64 `json:"subtotal"`
	VAT      float64 `json:"vat"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency,omitempty"`
}

type Service interface {
	// Add merges qty into an existing line with the same SKU or appends a new
	// line, and returns the resulting line.
	Add(convID string, item Item, qty int) Item
	Remove(convID string, sku string) bool
	Clear(convID string)
	Items(convID string) []Item
	Totals(convID string, vatRate float64, pricesIncludeVAT bool) Totals
}

// Memory is a Service over a store of line slices.
type Memory struct {
	mu    sync.Mutex
	carts store.Store[[]Item]
}

func NewMemory(carts store.Store[[]Item]) *Memory {
	if carts == nil {
		carts = store.NewMemory[[]Item](0)
	}

	return &Memory{carts: carts}
}

func (m *Memory) Add(convID string, item Item, qty int) Item {
	if qty < 1 {
		qty = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items(convID)
	for i := range items {
		if strings.EqualFold(items[i].SKU, item.SKU) {
			items[i].Qty += qty
			m.carts.Set(convID, items)
			return items[i]
		}
	}

	item.Qty = qty
	items = append(items, item)
	m.carts.Set(convID, items)

	return item
}

func (m *Memory) Remove(convID string, sku string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items(convID)
	for i := range items {
		if strings.EqualFold(items[i].SKU, sku) {
			items = append(items[:i], items[i+1:]...)
			if len(items) == 0 {
				m.carts.Delete(convID)
			} else {
				m.carts.Set(convID, items)
			}
			return true
		}
	}

	return false
}

func (m *Memory) Clear(convID string) {
	m.carts.Delete(convID)
}

func (m *Memory) Items(convID string) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items(convID)
}

// Totals sums the cart. With pricesIncludeVAT the line prices are gross and VAT
// is carved out of the total; otherwise VAT is added on top of the subtotal.
func (m *Memory) Totals(convID string, vatRate float64, pricesIncludeVAT bool) Totals {
	return Compute(m.Items(convID), vatRate, pricesIncludeVAT)
}

// Compute returns the totals of items. Amounts are rounded to 2 decimals.
func Compute(items []Item, vatRate float64, pricesIncludeVAT bool) Totals {
	var t Totals
	sum := 0.0
	for _, item := range items {
		t.Count += item.Qty
		sum += item.Sum()
		if t.Currency == "" {
			t.Currency = item.Currency
		}
	}

	if vatRate < 0 {
		vatRate = 0
	}

	if pricesIncludeVAT {
		t.Total = round2(sum)
		t.VAT = round2(sum * vatRate / (1 + vatRate))
		t.Subtotal = round2(t.Total - t.VAT)
		return t
	}

	t.Subtotal = round2(sum)
	t.VAT = round2(sum * vatRate)
	t.Total = round2(t.Subtotal + t.VAT)
	return t
}

// items returns a copy so callers never alias stored slices.
func (m *Memory) items(convID string) []Item {
	stored, ok := m.carts.Get(convID)
	if !ok {
		return nil
	}

	return append([]Item(nil), stored...)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
