package types

import (
	"github.com/shopspring/decimal"
)

// OrderItem is a line of an order snapshot; prices are frozen at checkout.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Notes     *string         `json:"notes,omitempty"`
}

// Subtotal returns quantity times unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderItems []OrderItem

// Subtotal sums every line.
func (items OrderItems) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Subtotal())
	}
	return sum
}

// Discount records the coupon applied when the order was placed.
type Discount struct {
	CouponCode  string          `json:"coupon_code"`
	CouponType  string          `json:"coupon_type"`
	CouponValue decimal.Decimal `json:"coupon_value"`
	Amount      decimal.Decimal `json:"amount"`
}
