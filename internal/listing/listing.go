// Package listing implements the listing aggregate and the state machine
// that governs its lifecycle. Transitions are pure: each returns a new
// Listing and leaves the receiver untouched, so callers can persist the
// result before making it visible.
package listing

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/pricing"
)

// Status of a listing.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSold      Status = "SOLD"
	StatusExpired   Status = "EXPIRED"
	StatusReturned  Status = "RETURNED"
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusActive:  {StatusSold, StatusExpired, StatusCancelled},
	StatusExpired: {StatusReturned},
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// ErrInvalid is matched by every construction failure.
var ErrInvalid = errors.New("listing: invalid listing")

// ErrConflict is matched by every rejected transition.
var ErrConflict = errors.New("listing: conflict")

type conflict string

func (c conflict) Error() string        { return "listing: " + string(c) }
func (c conflict) Is(target error) bool { return target == ErrConflict }

var (
	ErrNotActive         error = conflict("listing has already been claimed")
	ErrExpired           error = conflict("listing has expired")
	ErrNotExpired        error = conflict("listing has not expired")
	ErrNotAuction        error = conflict("listing is not an auction")
	ErrIsAuction         error = conflict("listing is an auction")
	ErrSelfBid           error = conflict("you can't bid against yourself")
	ErrBidTooLow         error = conflict("bid is below the minimum")
	ErrOwnListing        error = conflict("you can't trade with your own listing")
	ErrNotOwner          error = conflict("listing belongs to another player")
	ErrHasBids           error = conflict("auction already has bids")
	ErrInvalidTransition error = conflict("invalid status transition")
)

// Player identifies a market participant.
type Player struct {
	ID   uuid.UUID
	Name string
}

// Listing is a market offer wrapping one entry. Exactly one of Price and
// Auction is set.
type Listing struct {
	ID        uuid.UUID
	Owner     uuid.UUID
	OwnerName string
	Entry     entry.Entry
	Price     *pricing.Price
	Auction   *AuctionData
	CreatedAt time.Time
	ExpiresAt *time.Time
	Status    Status
	Buyer     *uuid.UUID
	BuyerName string
	// Settled is set once the closing deliveries of a final listing are done.
	Settled bool
}

// Expires reports whether the listing has an expiration time.
func (l *Listing) Expires() bool { return l.ExpiresAt != nil }

// IsExpired reports whether now is at or past the expiration time.
func (l *Listing) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// IsAuction reports whether the listing is sold by bidding.
func (l *Listing) IsAuction() bool { return l.Auction != nil }

// CurrentPrice is the fixed price, or the auction's high bid (or start).
func (l *Listing) CurrentPrice() pricing.Price {
	if l.Auction == nil {
		return *l.Price
	}
	if l.Auction.HighBid != nil {
		return *l.Auction.HighBid
	}
	return l.Auction.Start
}

// Clone returns a copy whose auction state can change independently.
// The entry is shared.
func (l *Listing) Clone() *Listing {
	c := *l
	if l.Auction != nil {
		a := *l.Auction
		c.Auction = &a
	}
	return &c
}

func (l *Listing) transition(next Status) (*Listing, error) {
	if !l.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, next)
	}
	c := l.Clone()
	c.Status = next
	return c, nil
}

func (l *Listing) checkOpen(now time.Time) error {
	if l.Status != StatusActive {
		return fmt.Errorf("%w (status %s)", ErrNotActive, l.Status)
	}
	if l.IsExpired(now) {
		return ErrExpired
	}
	return nil
}

// Purchase sells a fixed-price listing to buyer.
func (l *Listing) Purchase(now time.Time, buyer Player) (*Listing, error) {
	if l.IsAuction() {
		return nil, ErrIsAuction
	}
	if err := l.checkOpen(now); err != nil {
		return nil, err
	}
	if buyer.ID == l.Owner {
		return nil, ErrOwnListing
	}
	c, err := l.transition(StatusSold)
	if err != nil {
		return nil, err
	}
	c.Buyer = &buyer.ID
	c.BuyerName = buyer.Name
	return c, nil
}

// Bid places amount on an auction listing.
func (l *Listing) Bid(now time.Time, bidder Player, amount pricing.Price) (*Listing, error) {
	if !l.IsAuction() {
		return nil, ErrNotAuction
	}
	if err := l.checkOpen(now); err != nil {
		return nil, err
	}
	if bidder.ID == l.Owner {
		return nil, ErrOwnListing
	}
	next, err := l.Auction.accept(bidder, amount)
	if err != nil {
		return nil, err
	}
	c := l.Clone()
	c.Auction = next
	return c, nil
}

// Expire applies the time-driven transition. An auction with a high bidder
// is sold to that bidder; anything else becomes EXPIRED.
func (l *Listing) Expire(now time.Time) (*Listing, error) {
	if l.Status != StatusActive {
		return nil, fmt.Errorf("%w (status %s)", ErrNotActive, l.Status)
	}
	if !l.IsExpired(now) {
		return nil, ErrNotExpired
	}
	if l.IsAuction() && l.Auction.HasBids() {
		c, err := l.transition(StatusSold)
		if err != nil {
			return nil, err
		}
		bidder := *l.Auction.HighBidder
		c.Buyer = &bidder
		c.BuyerName = l.Auction.HighBidderName
		return c, nil
	}
	return l.transition(StatusExpired)
}

// Return marks an expired listing's entry as handed back.
func (l *Listing) Return() (*Listing, error) {
	return l.transition(StatusReturned)
}

// Cancel withdraws an active listing on its owner's request.
func (l *Listing) Cancel(owner uuid.UUID) (*Listing, error) {
	if owner != l.Owner {
		return nil, ErrNotOwner
	}
	if l.Status != StatusActive {
		return nil, fmt.Errorf("%w (status %s)", ErrNotActive, l.Status)
	}
	if l.IsAuction() && l.Auction.HasBids() {
		return nil, ErrHasBids
	}
	return l.transition(StatusCancelled)
}

// Settle records that the closing deliveries of a final listing are done.
func (l *Listing) Settle() (*Listing, error) {
	switch l.Status {
	case StatusSold, StatusReturned, StatusCancelled:
	default:
		return nil, fmt.Errorf("%w: settle %s", ErrInvalidTransition, l.Status)
	}
	c := l.Clone()
	c.Settled = true
	return c, nil
}
