package listing

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/pricing"
)

// AuctionData is the bidding state of an auction listing.
type AuctionData struct {
	Start          pricing.Price
	Increment      pricing.Price
	HighBid        *pricing.Price
	HighBidder     *uuid.UUID
	HighBidderName string
}

// HasBids reports whether any bid has been accepted.
func (a *AuctionData) HasBids() bool { return a.HighBidder != nil }

// MinimumBid is the lowest amount the next bid may carry.
func (a *AuctionData) MinimumBid() pricing.Price {
	if a.HighBid == nil {
		return a.Start
	}
	return a.HighBid.Add(a.Increment)
}

// accept validates a bid and returns the resulting auction state.
func (a *AuctionData) accept(bidder Player, amount pricing.Price) (*AuctionData, error) {
	if a.HighBidder != nil && *a.HighBidder == bidder.ID {
		return nil, ErrSelfBid
	}
	floor := a.MinimumBid()
	if amount.Cmp(floor) < 0 || (a.HighBid != nil && amount.Cmp(*a.HighBid) <= 0) {
		return nil, fmt.Errorf("%w: need at least %s", ErrBidTooLow, floor)
	}
	id := bidder.ID
	return &AuctionData{
		Start:          a.Start,
		Increment:      a.Increment,
		HighBid:        &amount,
		HighBidder:     &id,
		HighBidderName: bidder.Name,
	}, nil
}
