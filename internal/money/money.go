package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a two-decimal fixed-point monetary amount. The zero value is $0.00.
type Money struct {
	d decimal.Decimal
}

func Zero() Money {
	return Money{}
}

// FromCents builds a Money from an integer number of cents.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -2)}
}

// FromFloat builds a Money from a float, rounding half-up to two decimals.
func FromFloat(f float64) Money {
	return Money{d: decimal.NewFromFloat(f).Round(2)}
}

// FromString parses a decimal string like "5.99" into a Money.
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money value %q: %w", s, err)
	}
	return Money{d: d.Round(2)}, nil
}

func (m Money) Add(o Money) Money {
	return Money{d: m.d.Add(o.d)}
}

func (m Money) Sub(o Money) Money {
	return Money{d: m.d.Sub(o.d)}
}

// MulRate multiplies by a rate (e.g. a tax rate) and rounds half-up to two decimals.
func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{d: m.d.Mul(rate).Round(2)}
}

// MulInt multiplies by an integer quantity.
func (m Money) MulInt(n int) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(n)))}
}

func (m Money) Cmp(o Money) int {
	return m.d.Cmp(o.d)
}

func (m Money) Equal(o Money) bool {
	return m.d.Equal(o.d)
}

func (m Money) LessThan(o Money) bool {
	return m.d.LessThan(o.d)
}

func (m Money) GreaterThanOrEqual(o Money) bool {
	return m.d.GreaterThanOrEqual(o.d)
}

func (m Money) IsZero() bool {
	return m.d.IsZero()
}

func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// ClampZero returns the amount, floored at $0.00.
func (m Money) ClampZero() Money {
	if m.d.IsNegative() {
		return Zero()
	}
	return m
}

func (m Money) Cents() int64 {
	return m.d.Round(2).Shift(2).IntPart()
}

func (m Money) Float64() float64 {
	f, _ := m.d.Round(2).Float64()
	return f
}

// String renders with exactly two decimal places, e.g. "82.08".
func (m Money) String() string {
	return m.d.StringFixed(2)
}

// MarshalJSON renders the amount as a plain JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.StringFixed(2)), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	m.d = d.Round(2)
	return nil
}
