package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/example/checkout-engine/internal/money"
)

// Pricing constants. Flat percentage tax, single shipping tier.
var (
	TaxRate               = decimal.NewFromFloat(0.08)
	FreeShippingThreshold = money.FromCents(5000)
	FlatShippingFee       = money.FromCents(599)
)

// OrderTotals is the full price breakdown for an order.
// Invariant: GrandTotal = Subtotal + Tax + Shipping - Discount, floored at zero.
type OrderTotals struct {
	Subtotal   money.Money `json:"subtotal"`
	Tax        money.Money `json:"tax"`
	Shipping   money.Money `json:"shipping"`
	Discount   money.Money `json:"discount"`
	GrandTotal money.Money `json:"grand_total"`
}

// ComputeTotals derives the order totals from a subtotal and an already-validated
// discount. Pure and deterministic; inputs are assumed non-negative.
func ComputeTotals(subtotal, discount money.Money) OrderTotals {
	tax := subtotal.MulRate(TaxRate)

	shipping := FlatShippingFee
	if subtotal.GreaterThanOrEqual(FreeShippingThreshold) {
		shipping = money.Zero()
	}

	grand := subtotal.Add(tax).Add(shipping).Sub(discount).ClampZero()

	return OrderTotals{
		Subtotal:   subtotal,
		Tax:        tax,
		Shipping:   shipping,
		Discount:   discount,
		GrandTotal: grand,
	}
}
