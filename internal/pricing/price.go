// Package pricing implements the monetary value attached to listings and
// bids. All amounts use shopspring/decimal, never float64.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Reason classifies a pricing failure.
type Reason string

const (
	ReasonNegative     Reason = "NEGATIVE"
	ReasonExceedsMax   Reason = "EXCEEDS_MAX"
	ReasonBelowMinimum Reason = "BELOW_MINIMUM"
)

// ErrPricing is matched by every *PricingError via errors.Is.
var ErrPricing = errors.New("pricing: invalid price")

// PricingError is returned when an amount falls outside the allowed range.
type PricingError struct {
	Reason Reason
	Amount decimal.Decimal
	Limit  decimal.Decimal
}

func (e *PricingError) Error() string {
	switch e.Reason {
	case ReasonNegative:
		return fmt.Sprintf("pricing: amount %s is negative", e.Amount)
	case ReasonExceedsMax:
		return fmt.Sprintf("pricing: amount %s exceeds max %s", e.Amount, e.Limit)
	case ReasonBelowMinimum:
		return fmt.Sprintf("pricing: amount %s is below minimum %s", e.Amount, e.Limit)
	}
	return fmt.Sprintf("pricing: invalid amount %s", e.Amount)
}

func (e *PricingError) Is(target error) bool { return target == ErrPricing }

// Limits holds the ceiling and display symbol every Price is created under.
type Limits struct {
	Max    decimal.Decimal
	Symbol string
}

// DefaultLimits mirrors the stock server configuration.
func DefaultLimits() Limits {
	return Limits{Max: decimal.NewFromInt(100_000_000), Symbol: "$"}
}

// Of validates amount and returns a Price bound to these limits.
func (l Limits) Of(amount decimal.Decimal) (Price, error) {
	if amount.IsNegative() {
		return Price{}, &PricingError{Reason: ReasonNegative, Amount: amount}
	}
	if amount.GreaterThan(l.Max) {
		return Price{}, &PricingError{Reason: ReasonExceedsMax, Amount: amount, Limit: l.Max}
	}
	return Price{amount: amount, max: l.Max, symbol: l.Symbol}, nil
}

// MustOf is Of for constants known to be valid.
func (l Limits) MustOf(amount int64) Price {
	p, err := l.Of(decimal.NewFromInt(amount))
	if err != nil {
		panic(err)
	}
	return p
}

// Restore rebuilds a stored amount without range checks, so listings priced
// under an older, higher ceiling still load.
func (l Limits) Restore(amount decimal.Decimal) Price {
	return Price{amount: amount, max: l.Max, symbol: l.Symbol}
}

// Zero returns a zero Price under these limits.
func (l Limits) Zero() Price {
	return Price{amount: decimal.Zero, max: l.Max, symbol: l.Symbol}
}

// Sum adds prices and fails if the total leaves the allowed range.
func (l Limits) Sum(prices ...Price) (Price, error) {
	total := l.Zero()
	for _, p := range prices {
		total = total.Add(p)
		if !total.IsWithinLimit() {
			return Price{}, &PricingError{Reason: ReasonExceedsMax, Amount: total.amount, Limit: l.Max}
		}
	}
	return total, nil
}

// Price is an immutable, non-negative amount with a ceiling.
type Price struct {
	amount decimal.Decimal
	max    decimal.Decimal
	symbol string
}

// Amount returns the underlying decimal.
func (p Price) Amount() decimal.Decimal { return p.amount }

// Add returns p + o. The result may exceed the ceiling; check with IsWithinLimit.
func (p Price) Add(o Price) Price {
	return Price{amount: p.amount.Add(o.amount), max: p.max, symbol: p.symbol}
}

// Cmp returns -1, 0 or +1.
func (p Price) Cmp(o Price) int { return p.amount.Cmp(o.amount) }

// IsZero reports whether the amount is zero.
func (p Price) IsZero() bool { return p.amount.IsZero() }

// IsWithinLimit re-checks the [0, max] range after arithmetic.
func (p Price) IsWithinLimit() bool {
	return !p.amount.IsNegative() && !p.amount.GreaterThan(p.max)
}

// String renders the price for chat output, e.g. "$1,250.50".
func (p Price) String() string {
	whole := p.amount.Truncate(0)
	frac := p.amount.Sub(whole).Abs()
	s := p.symbol + humanize.Comma(whole.IntPart())
	if !frac.IsZero() {
		s += strings.TrimPrefix(frac.StringFixed(2), "0")
	}
	return s
}

// MarshalJSON encodes the amount only; limits are reattached on decode.
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.amount.String())
}
