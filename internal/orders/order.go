// Package orders quotes carts against the catalog and records placed orders.
package orders

import (
	"errors"
	"time"

	"github.com/usashopbox/storefront/internal/pricing"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrUnknownProduct = errors.New("unknown or inactive product")
	ErrInvalidOrder   = errors.New("invalid order")
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusInWarehouse    Status = "in_warehouse"
	StatusInTransit      Status = "in_transit"
	StatusDelivered      Status = "delivered"
)

// LineRequest selects a product, optionally one of its variations.
type LineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
	Attribute string `json:"attribute,omitempty"`
	Value     string `json:"value,omitempty"`
}

// QuotedLine is a resolved cart line. Attribute and Value are empty when no
// matching variation was found.
type QuotedLine struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Attribute string `json:"attribute,omitempty"`
	Value     string `json:"value,omitempty"`
	pricing.Line
}

// Quote is a priced cart.
type Quote struct {
	pricing.CartPricing
	Lines []QuotedLine `json:"lines"`
}

// Order is a placed order with the pricing it was accepted at.
type Order struct {
	ID            string              `json:"id"`
	CreatedAt     time.Time           `json:"created_at"`
	CustomerEmail string              `json:"customer_email"`
	Status        Status              `json:"status"`
	Lines         []QuotedLine        `json:"lines"`
	Totals        pricing.CartPricing `json:"totals"`
}

// Summary is one row of the admin order list.
type Summary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	CustomerEmail string    `json:"customer_email"`
	Status        Status    `json:"status"`
	Total         float64   `json:"total"`
}
