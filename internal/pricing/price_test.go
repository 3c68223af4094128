package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func limits() Limits {
	return Limits{Max: d(1000), Symbol: "$"}
}

func TestOf_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		amount decimal.Decimal
		reason Reason
	}{
		{"zero", d(0), ""},
		{"mid", d(500.5), ""},
		{"at max", d(1000), ""},
		{"negative", d(-0.01), ReasonNegative},
		{"above max", d(1000.01), ReasonExceedsMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := limits().Of(tt.amount)
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var pe *PricingError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PricingError, got %v", err)
			}
			if pe.Reason != tt.reason {
				t.Errorf("reason = %s, want %s", pe.Reason, tt.reason)
			}
			if !errors.Is(err, ErrPricing) {
				t.Error("PricingError should match ErrPricing")
			}
		})
	}
}

func TestAdd_IsPureAndChecksLimit(t *testing.T) {
	l := limits()
	a, _ := l.Of(d(600))
	b, _ := l.Of(d(500))

	sum := a.Add(b)
	if !sum.Amount().Equal(d(1100)) {
		t.Errorf("sum = %s, want 1100", sum.Amount())
	}
	if sum.IsWithinLimit() {
		t.Error("1100 should exceed a 1000 ceiling")
	}
	if !a.Amount().Equal(d(600)) {
		t.Error("Add must not mutate the receiver")
	}
}

func TestSum_Overflow(t *testing.T) {
	l := limits()
	if _, err := l.Sum(l.MustOf(400), l.MustOf(400)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_, err := l.Sum(l.MustOf(400), l.MustOf(400), l.MustOf(400))
	var pe *PricingError
	if !errors.As(err, &pe) || pe.Reason != ReasonExceedsMax {
		t.Fatalf("expected EXCEEDS_MAX, got %v", err)
	}
}

func TestCmp(t *testing.T) {
	l := limits()
	if l.MustOf(5).Cmp(l.MustOf(10)) != -1 {
		t.Error("5 < 10")
	}
	if l.MustOf(10).Cmp(l.MustOf(10)) != 0 {
		t.Error("10 == 10")
	}
}

func TestString(t *testing.T) {
	l := Limits{Max: d(10_000_000), Symbol: "$"}
	tests := []struct {
		amount decimal.Decimal
		want   string
	}{
		{d(0), "$0"},
		{d(100), "$100"},
		{d(1250.5), "$1,250.50"},
		{d(1234567), "$1,234,567"},
	}
	for _, tt := range tests {
		p, err := l.Of(tt.amount)
		if err != nil {
			t.Fatal(err)
		}
		if got := p.String(); got != tt.want {
			t.Errorf("String(%s) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}
