package listing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/pricing"
)

type options struct {
	id        uuid.UUID
	now       func() time.Time
	increment *pricing.Price
	expiresIn time.Duration
	expiresAt *time.Time
}

// Option configures New.
type Option func(*options)

// AsAuction makes the listing an auction; the price becomes the starting bid.
func AsAuction(increment pricing.Price) Option {
	return func(o *options) { o.increment = &increment }
}

// ExpiresIn sets the expiration relative to creation time.
func ExpiresIn(d time.Duration) Option {
	return func(o *options) { o.expiresIn = d }
}

// ExpiresAt sets an absolute expiration time.
func ExpiresAt(t time.Time) Option {
	return func(o *options) { o.expiresAt = &t }
}

// WithClock overrides the creation clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithID fixes the listing id instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(o *options) { o.id = id }
}

// New builds an ACTIVE listing after validating the price against the
// entry's minimum. Nothing is persisted.
func New(owner Player, e entry.Entry, price pricing.Price, opts ...Option) (*Listing, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if owner.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalid)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: missing entry", ErrInvalid)
	}
	if !price.IsWithinLimit() {
		return nil, &pricing.PricingError{Reason: pricing.ReasonExceedsMax, Amount: price.Amount()}
	}

	floor, err := e.MinimumPrice()
	if err != nil {
		return nil, fmt.Errorf("minimum price for %s: %w", e.Name(), err)
	}
	if price.Cmp(floor) < 0 {
		return nil, &pricing.PricingError{
			Reason: pricing.ReasonBelowMinimum,
			Amount: price.Amount(),
			Limit:  floor.Amount(),
		}
	}

	created := o.now().UTC()
	l := &Listing{
		ID:        o.id,
		Owner:     owner.ID,
		OwnerName: owner.Name,
		Entry:     e,
		CreatedAt: created,
		Status:    StatusActive,
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	if o.increment != nil {
		if !o.increment.IsWithinLimit() {
			return nil, &pricing.PricingError{Reason: pricing.ReasonExceedsMax, Amount: o.increment.Amount()}
		}
		l.Auction = &AuctionData{Start: price, Increment: *o.increment}
	} else {
		l.Price = &price
	}

	switch {
	case o.expiresAt != nil:
		at := o.expiresAt.UTC()
		l.ExpiresAt = &at
	case o.expiresIn != 0:
		at := created.Add(o.expiresIn)
		l.ExpiresAt = &at
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(created) {
		return nil, fmt.Errorf("%w: expiration %s is not after creation %s",
			ErrInvalid, l.ExpiresAt.Format(time.RFC3339), created.Format(time.RFC3339))
	}
	return l, nil
}
