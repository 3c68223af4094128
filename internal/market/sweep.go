package market

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/atmx/gts-market/internal/config"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/model"
	"github.com/atmx/gts-market/internal/notify"
	"github.com/atmx/gts-market/internal/text"
)

// ExpireSweep settles every listing due at now. Auctions with a high
// bidder are sold to that bidder; everything else is returned to its
// owner. Final listings are settled too: those already settled are
// dropped, and those whose deliveries never completed, such as ones
// loaded after a restart, have them redone. Callers drive the cadence.
func (c *Coordinator) ExpireSweep(ctx context.Context, now time.Time) []Result {
	var results []Result
	for _, l := range c.store.Snapshot() {
		var res Result
		switch {
		case l.Status == listing.StatusActive && l.IsExpired(now):
			res = c.finish("expire", c.expire(ctx, l, now))
		case l.Status == listing.StatusExpired:
			res = c.finish("expire", c.returnExpired(ctx, l))
		case l.Status == listing.StatusActive:
			continue
		default:
			busy, delivered := c.settling.state(l.ID)
			switch {
			case busy && delivered:
				c.close(ctx, l)
				continue
			case busy:
				continue
			case l.Settled:
				c.finalize(ctx, l)
				continue
			}
			res = c.finish("recover", c.recoverSettlement(ctx, l))
		}
		results = append(results, res)
	}
	if len(results) > 0 {
		slog.Info("expire sweep", "settled", len(results))
	}
	return results
}

func (c *Coordinator) expire(ctx context.Context, l *listing.Listing, now time.Time) Result {
	var claimed bool
	next, err := c.store.MutateListing(ctx, l.ID, c.claim(&claimed, func(cur *listing.Listing) (*listing.Listing, error) {
		return cur.Expire(now)
	})).Wait()
	if err != nil {
		if claimed {
			c.settling.end(l.ID)
		}
		return failure(err, l)
	}
	if next.Status == listing.StatusSold {
		return c.settleAuction(ctx, next)
	}
	return c.returnExpired(ctx, next)
}

// settleAuction delivers a won auction. The winner's bid was reserved
// when it was placed, so only the seller is paid here.
func (c *Coordinator) settleAuction(ctx context.Context, l *listing.Listing) Result {
	if l.Buyer == nil || l.Auction == nil || l.Auction.HighBid == nil {
		c.settling.end(l.ID)
		return failure(errors.New("market: sold auction without a winning bid"), l)
	}
	winner := *l.Buyer
	bid := *l.Auction.HighBid

	c.giveEntry(ctx, l, winner, "auction won")
	c.pay(ctx, l.Owner, bid, "auction sale", l)

	c.tell(winner, notify.KindSold, config.MsgWon, text.Vars{Listing: l, Price: &bid})
	c.tell(l.Owner, notify.KindSold, config.MsgAuctionSold, text.Vars{Listing: l, Price: &bid})
	c.broadcast(notify.KindSold, config.MsgWinBroadcast, text.Vars{Player: l.BuyerName, Listing: l})

	c.log(ctx, winner, l, model.ActionPurchase, config.LogPurchase, text.Vars{Price: &bid})
	c.log(ctx, l.Owner, l, model.ActionSell, config.LogSell, text.Vars{Price: &bid})
	c.close(ctx, l)
	return success(l)
}

// returnExpired commits RETURNED before handing the entry back, so a
// failed commit never delivers and a retried sweep never delivers twice.
func (c *Coordinator) returnExpired(ctx context.Context, l *listing.Listing) Result {
	var claimed bool
	returned, err := c.store.MutateListing(ctx, l.ID, c.claim(&claimed, func(cur *listing.Listing) (*listing.Listing, error) {
		return cur.Return()
	})).Wait()
	if err != nil {
		if claimed {
			c.settling.end(l.ID)
		}
		return failure(err, l)
	}

	c.giveEntry(ctx, returned, returned.Owner, "expired")
	c.tell(returned.Owner, notify.KindExpired, config.MsgExpired, text.Vars{Listing: returned})
	c.log(ctx, returned.Owner, returned, model.ActionExpire, config.LogExpire, text.Vars{})
	c.close(ctx, returned)
	return success(returned)
}
