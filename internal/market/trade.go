package market

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/config"
	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/model"
	"github.com/atmx/gts-market/internal/notify"
	"github.com/atmx/gts-market/internal/pricing"
	"github.com/atmx/gts-market/internal/text"
)

// Create builds a listing for e and deposits it. Listings without an
// explicit expiry get the configured default duration.
func (c *Coordinator) Create(ctx context.Context, owner listing.Player, e entry.Entry, amount decimal.Decimal, opts ...listing.Option) Result {
	price, err := c.limits.Of(amount)
	if err != nil {
		c.explain(owner.ID, err, text.Vars{})
		return c.finish("deposit", failure(err, nil))
	}
	base := []listing.Option{listing.WithClock(c.now)}
	if c.opts.DefaultDuration > 0 {
		base = append(base, listing.ExpiresIn(c.opts.DefaultDuration))
	}
	l, err := listing.New(owner, e, price, append(base, opts...)...)
	if err != nil {
		c.explain(owner.ID, err, text.Vars{Extra: map[string]string{"listing_name": e.Name()}})
		return c.finish("deposit", failure(err, nil))
	}
	return c.Deposit(ctx, l)
}

// Deposit takes the entry from its owner, charges the listing tax and
// publishes l. If storage fails the entry and tax go back to the owner.
func (c *Coordinator) Deposit(ctx context.Context, l *listing.Listing) Result {
	return c.finish("deposit", c.deposit(ctx, l))
}

func (c *Coordinator) deposit(ctx context.Context, l *listing.Listing) Result {
	if l.Status != listing.StatusActive {
		return failure(fmt.Errorf("%w (status %s)", listing.ErrNotActive, l.Status), l)
	}

	lock := c.ownerLock(l.Owner)
	lock.Lock()
	defer lock.Unlock()

	if limit := c.opts.MaxListings; limit > 0 && c.activeCount(l.Owner) >= limit {
		c.explain(l.Owner, ErrMaxListings, text.Vars{Listing: l})
		return failure(ErrMaxListings, l)
	}

	tax, err := c.tax(l)
	if err != nil {
		return failure(err, l)
	}
	if !tax.IsZero() && !c.bank.Withdraw(l.Owner, tax.Amount()) {
		c.tell(l.Owner, notify.KindRejected, config.MsgTaxInvalid, text.Vars{Listing: l, Tax: &tax})
		return failure(ErrTaxUnaffordable, l)
	}

	if !l.Entry.Take(l.Owner) {
		c.pay(ctx, l.Owner, tax, "tax refund", l)
		return failure(ErrEntryUnavailable, l)
	}

	if err := c.store.AddListing(ctx, l).Err(); err != nil {
		c.giveEntry(ctx, l, l.Owner, "deposit failed")
		c.pay(ctx, l.Owner, tax, "tax refund", l)
		return failure(fmt.Errorf("deposit listing %s: %w", l.ID, err), l)
	}

	c.log(ctx, l.Owner, l, model.ActionAdd, config.LogAdd, text.Vars{})
	c.tell(l.Owner, notify.KindDeposit, config.MsgAdded, text.Vars{Listing: l})
	if !tax.IsZero() {
		c.tell(l.Owner, notify.KindDeposit, config.MsgTaxApplied, text.Vars{Listing: l, Tax: &tax})
	}
	c.broadcast(notify.KindDeposit, config.MsgAddedBroadcast, text.Vars{Player: l.OwnerName, Listing: l})
	return success(l)
}

func (c *Coordinator) tax(l *listing.Listing) (pricing.Price, error) {
	if c.opts.TaxRate.IsZero() {
		return c.limits.Zero(), nil
	}
	return c.limits.Of(l.CurrentPrice().Amount().Mul(c.opts.TaxRate).Round(2))
}

// Purchase sells a fixed-price listing to buyer. The buyer is charged
// inside the listing's write slot and refunded if the write fails.
func (c *Coordinator) Purchase(ctx context.Context, id uuid.UUID, buyer listing.Player) Result {
	return c.finish("purchase", c.purchase(ctx, id, buyer))
}

func (c *Coordinator) purchase(ctx context.Context, id uuid.UUID, buyer listing.Player) Result {
	now := c.now()
	cur, ok := c.store.Listing(id)
	if !ok {
		c.explain(buyer.ID, ErrListingNotFound, text.Vars{})
		return failure(ErrListingNotFound, nil)
	}
	if _, err := cur.Purchase(now, buyer); err != nil {
		c.explain(buyer.ID, err, text.Vars{Listing: cur})
		return failure(err, cur)
	}
	price := cur.CurrentPrice()

	var charged, claimed bool
	sold, err := c.store.MutateListing(ctx, id, c.claim(&claimed, func(l *listing.Listing) (*listing.Listing, error) {
		next, err := l.Purchase(now, buyer)
		if err != nil {
			return nil, err
		}
		if !c.bank.Withdraw(buyer.ID, l.Price.Amount()) {
			return nil, ErrInsufficientFunds
		}
		charged = true
		return next, nil
	})).Wait()
	if err != nil {
		if claimed {
			c.settling.end(id)
		}
		if charged {
			c.pay(ctx, buyer.ID, price, "purchase refund", cur)
		}
		c.explain(buyer.ID, err, text.Vars{Listing: cur, Price: &price})
		return failure(err, cur)
	}

	c.giveEntry(ctx, sold, buyer.ID, "purchase")
	if c.pay(ctx, sold.Owner, price, "sale", sold) {
		c.tell(sold.Owner, notify.KindSold, config.MsgPriceReceived, text.Vars{Listing: sold, Price: &price})
	}
	c.tell(buyer.ID, notify.KindPurchase, config.MsgPricePaid, text.Vars{Listing: sold, Price: &price})

	c.log(ctx, buyer.ID, sold, model.ActionPurchase, config.LogPurchase, text.Vars{Price: &price})
	c.log(ctx, sold.Owner, sold, model.ActionSell, config.LogSell, text.Vars{Price: &price})
	c.close(ctx, sold)
	return success(sold)
}

// PlaceBid bids amount on an auction. The bid is reserved from the
// bidder's funds; the previous high bidder is refunded once the bid is
// committed.
func (c *Coordinator) PlaceBid(ctx context.Context, id uuid.UUID, bidder listing.Player, amount decimal.Decimal) Result {
	return c.finish("bid", c.placeBid(ctx, id, bidder, amount))
}

func (c *Coordinator) placeBid(ctx context.Context, id uuid.UUID, bidder listing.Player, amount decimal.Decimal) Result {
	price, err := c.limits.Of(amount)
	if err != nil {
		return failure(err, nil)
	}
	now := c.now()
	cur, ok := c.store.Listing(id)
	if !ok {
		c.explain(bidder.ID, ErrListingNotFound, text.Vars{})
		return failure(ErrListingNotFound, nil)
	}
	if _, err := cur.Bid(now, bidder, price); err != nil {
		c.explain(bidder.ID, err, text.Vars{Listing: cur})
		return failure(err, cur)
	}

	var (
		reserved   bool
		prevBidder *uuid.UUID
		prevBid    *pricing.Price
	)
	bid, err := c.store.MutateListing(ctx, id, func(l *listing.Listing) (*listing.Listing, error) {
		next, err := l.Bid(now, bidder, price)
		if err != nil {
			return nil, err
		}
		if !c.bank.Withdraw(bidder.ID, price.Amount()) {
			return nil, ErrInsufficientFunds
		}
		reserved = true
		prevBidder, prevBid = l.Auction.HighBidder, l.Auction.HighBid
		return next, nil
	}).Wait()
	if err != nil {
		if reserved {
			c.pay(ctx, bidder.ID, price, "bid refund", cur)
		}
		c.explain(bidder.ID, err, text.Vars{Listing: cur, Price: &price})
		return failure(err, cur)
	}

	if prevBidder != nil && prevBid != nil {
		refund := *prevBid
		c.pay(ctx, *prevBidder, refund, "outbid refund", bid)
		c.tell(*prevBidder, notify.KindOutbid, config.MsgOutbid, text.Vars{Listing: bid, Price: &refund})
	}
	c.tell(bidder.ID, notify.KindBid, config.MsgBidPlaced, text.Vars{Listing: bid, Price: &price})
	c.broadcast(notify.KindBid, config.MsgBidBroadcast, text.Vars{Player: bidder.Name, Listing: bid})
	c.log(ctx, bidder.ID, bid, model.ActionBid, config.LogBid, text.Vars{Price: &price})
	return success(bid)
}

// Cancel withdraws an active listing with no bids and hands its entry
// back to the owner.
func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID, owner uuid.UUID) Result {
	return c.finish("cancel", c.cancel(ctx, id, owner))
}

func (c *Coordinator) cancel(ctx context.Context, id uuid.UUID, owner uuid.UUID) Result {
	cur, ok := c.store.Listing(id)
	if !ok {
		c.explain(owner, ErrListingNotFound, text.Vars{})
		return failure(ErrListingNotFound, nil)
	}
	if _, err := cur.Cancel(owner); err != nil {
		c.explain(owner, err, text.Vars{Listing: cur})
		return failure(err, cur)
	}

	var claimed bool
	cancelled, err := c.store.MutateListing(ctx, id, c.claim(&claimed, func(l *listing.Listing) (*listing.Listing, error) {
		return l.Cancel(owner)
	})).Wait()
	if err != nil {
		if claimed {
			c.settling.end(id)
		}
		c.explain(owner, err, text.Vars{Listing: cur})
		return failure(err, cur)
	}

	c.giveEntry(ctx, cancelled, owner, "cancelled")
	c.tell(owner, notify.KindReturned, config.MsgReturned, text.Vars{Listing: cancelled})
	c.log(ctx, owner, cancelled, model.ActionRemove, config.LogRemove, text.Vars{})
	c.close(ctx, cancelled)
	return success(cancelled)
}
