// Package cart is the selection working set used when ordering lab tests and
// pharmacy items for a visit.
package cart

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Item is anything that can be selected into a cart.
type Item interface {
	ItemID() string
	ItemLabel() string
	// ItemPrice is the unit price as entered. Unparseable prices count as 0.
	ItemPrice() string
}

type Line[T Item] struct {
	Item     T   `json:"item"`
	Quantity int `json:"quantity"`
}

// Amount is the unit price times the quantity.
func (l Line[T]) Amount() decimal.Decimal {
	return ParsePrice(l.Item.ItemPrice()).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart keeps selected items in selection order. It is safe for concurrent use.
type Cart[T Item] struct {
	mu    sync.Mutex
	lines []Line[T]
}

func New[T Item]() *Cart[T] {
	return &Cart[T]{}
}

func (c *Cart[T]) indexOf(id string) int {
	for i, l := range c.lines {
		if l.Item.ItemID() == id {
			return i
		}
	}
	return -1
}

// Toggle removes item if it is selected and adds it with quantity 1
// otherwise. It reports whether item is selected afterwards.
func (c *Cart[T]) Toggle(item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(item.ItemID()); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
		return false
	}
	c.lines = append(c.lines, Line[T]{Item: item, Quantity: 1})
	return true
}

// SetQuantity sets the quantity of a selected item, clamped to at least 1.
// Unknown ids are ignored.
func (c *Cart[T]) SetQuantity(id string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(id)
	if i < 0 {
		return
	}
	if n < 1 {
		n = 1
	}
	c.lines[i].Quantity = n
}

// Remove drops id and reports whether it was selected.
func (c *Cart[T]) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return true
}

func (c *Cart[T]) Clear() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

func (c *Cart[T]) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexOf(id) >= 0
}

func (c *Cart[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Lines returns a copy of the selection.
func (c *Cart[T]) Lines() []Line[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Line[T](nil), c.lines...)
}

// Total sums price times quantity over every line.
func (c *Cart[T]) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines() {
		total = total.Add(l.Amount())
	}
	return total
}

// ParsePrice reads a user-entered price such as "1,250.50". Blank,
// malformed and negative prices are 0.
func ParsePrice(s string) decimal.Decimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}
