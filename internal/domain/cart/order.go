package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
	ErrNoVisit   = errors.New("visit_id is required")
)

type OrderLine struct {
	ItemID      string          `json:"item_id"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Order is a priced snapshot of a cart for one visit.
type Order struct {
	ID        uuid.UUID       `json:"id"`
	VisitID   uuid.UUID       `json:"visit_id"`
	Lines     []OrderLine     `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

// Checkout prices the current selection. The cart is left untouched.
func Checkout[T Item](visitID uuid.UUID, c *Cart[T]) (*Order, error) {
	if visitID == uuid.Nil {
		return nil, ErrNoVisit
	}
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	order := &Order{
		ID:        uuid.New(),
		VisitID:   visitID,
		Total:     decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	for _, l := range lines {
		ol := OrderLine{
			ItemID:      l.Item.ItemID(),
			Description: l.Item.ItemLabel(),
			Quantity:    l.Quantity,
			UnitPrice:   ParsePrice(l.Item.ItemPrice()),
			Amount:      l.Amount(),
		}
		order.Lines = append(order.Lines, ol)
		order.Total = order.Total.Add(ol.Amount)
	}
	return order, nil
}
