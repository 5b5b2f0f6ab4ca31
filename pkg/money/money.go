// Package money holds the currency helpers shared by billing and scheduling.
// Amounts are decimal with two fractional digits.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance under which two amounts compare equal.
var Epsilon = decimal.New(1, -2)

// Equal reports whether |a-b| < 0.01.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Epsilon)
}

// Less reports whether a is below b by at least one cent.
func Less(a, b decimal.Decimal) bool {
	return a.LessThan(b) && !Equal(a, b)
}

// Greater reports whether a exceeds b by at least one cent.
func Greater(a, b decimal.Decimal) bool {
	return a.GreaterThan(b) && !Equal(a, b)
}

// Round rounds to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders d with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Parse reads a decimal amount and rounds it to cents.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Round(d), nil
}

// Price is an optional amount: either a set value or Unset. The zero value
// is Unset, so a missing price is never read as 0 by accident.
type Price struct {
	amount decimal.Decimal
	set    bool
}

// Of returns a set price.
func Of(d decimal.Decimal) Price {
	return Price{amount: Round(d), set: true}
}

// Unset returns a price with no value.
func Unset() Price {
	return Price{}
}

// MustParsePrice is a test and CLI convenience; it panics on bad input.
func MustParsePrice(s string) Price {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return Of(d)
}

// Get returns the amount and whether it is set.
func (p Price) Get() (decimal.Decimal, bool) {
	return p.amount, p.set
}

func (p Price) IsSet() bool {
	return p.set
}

func (p Price) String() string {
	if !p.set {
		return "unset"
	}
	return Format(p.amount)
}

// Sum adds the set prices and counts the unset ones.
func Sum(prices ...Price) (total decimal.Decimal, unset int) {
	total = decimal.Zero
	for _, p := range prices {
		if v, ok := p.Get(); ok {
			total = total.Add(v)
			continue
		}
		unset++
	}
	return total, unset
}

func (p Price) MarshalJSON() ([]byte, error) {
	if !p.set {
		return []byte("null"), nil
	}
	return []byte(`"` + Format(p.amount) + `"`), nil
}

func (p *Price) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Unset()
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	*p = Of(d)
	return nil
}

// Scan implements sql.Scanner; NULL maps to Unset.
func (p *Price) Scan(src interface{}) error {
	if src == nil {
		*p = Unset()
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	*p = Of(d)
	return nil
}

// Value implements driver.Valuer; Unset is stored as NULL.
func (p Price) Value() (driver.Value, error) {
	if !p.set {
		return nil, nil
	}
	return Format(p.amount), nil
}
