package market

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/config"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/model"
	"github.com/atmx/gts-market/internal/notify"
	"github.com/atmx/gts-market/internal/storage"
	"github.com/atmx/gts-market/internal/text"
)

// settlements tracks final listings whose closing deliveries are being
// made by this process. The sweep leaves them alone until they are
// released.
type settlements struct {
	mu sync.Mutex
	m  map[uuid.UUID]bool // true once deliveries are done
}

func newSettlements() *settlements {
	return &settlements{m: make(map[uuid.UUID]bool)}
}

// begin claims id. It returns false when id is already claimed.
func (s *settlements) begin(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; ok {
		return false
	}
	s.m[id] = false
	return true
}

func (s *settlements) delivered(id uuid.UUID) {
	s.mu.Lock()
	s.m[id] = true
	s.mu.Unlock()
}

func (s *settlements) end(id uuid.UUID) {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

func (s *settlements) state(id uuid.UUID) (busy, delivered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivered, busy = s.m[id]
	return busy, delivered
}

// claim wraps a final transition so the listing is claimed in the same
// write slot that commits it. claimed reports whether the claim was taken;
// the caller releases it if the commit then fails.
func (c *Coordinator) claim(claimed *bool, fn storage.Mutation) storage.Mutation {
	return func(l *listing.Listing) (*listing.Listing, error) {
		next, err := fn(l)
		if err != nil {
			return nil, err
		}
		if next.Status.Terminal() {
			*claimed = c.settling.begin(next.ID)
		}
		return next, nil
	}
}

// close marks a final listing settled once its deliveries are done, then
// drops it. The claim is kept while neither write has landed so the
// sweep retries the close instead of delivering again.
func (c *Coordinator) close(ctx context.Context, l *listing.Listing) {
	c.settling.delivered(l.ID)
	_, err := c.store.MutateListing(ctx, l.ID, func(cur *listing.Listing) (*listing.Listing, error) {
		if cur.Settled {
			return cur, nil
		}
		return cur.Settle()
	}).Wait()
	if err != nil {
		slog.Error("could not mark listing settled", "listing", l.ID, "status", l.Status, "error", err)
	}
	if c.finalize(ctx, l) || err == nil {
		c.settling.end(l.ID)
	}
}

// recoverSettlement redoes the closing deliveries of a final listing whose
// settlement never committed, typically one left by a restart. The buyer
// paid, or reserved the winning bid, before the final status committed.
func (c *Coordinator) recoverSettlement(ctx context.Context, l *listing.Listing) Result {
	if !c.settling.begin(l.ID) {
		return failure(errSettling, l)
	}
	switch l.Status {
	case listing.StatusSold:
		if l.Buyer == nil {
			c.settling.end(l.ID)
			return failure(errors.New("market: sold listing without a buyer"), l)
		}
		buyer := *l.Buyer
		price := l.CurrentPrice()
		c.giveEntry(ctx, l, buyer, "purchase")
		c.pay(ctx, l.Owner, price, "sale", l)
		c.tell(buyer, notify.KindPurchase, config.MsgPricePaid, text.Vars{Listing: l, Price: &price})
		c.tell(l.Owner, notify.KindSold, config.MsgPriceReceived, text.Vars{Listing: l, Price: &price})
		c.log(ctx, buyer, l, model.ActionPurchase, config.LogPurchase, text.Vars{Price: &price})
		c.log(ctx, l.Owner, l, model.ActionSell, config.LogSell, text.Vars{Price: &price})
	case listing.StatusReturned:
		c.giveEntry(ctx, l, l.Owner, "expired")
		c.tell(l.Owner, notify.KindExpired, config.MsgExpired, text.Vars{Listing: l})
		c.log(ctx, l.Owner, l, model.ActionExpire, config.LogExpire, text.Vars{})
	case listing.StatusCancelled:
		c.giveEntry(ctx, l, l.Owner, "cancelled")
		c.tell(l.Owner, notify.KindReturned, config.MsgReturned, text.Vars{Listing: l})
		c.log(ctx, l.Owner, l, model.ActionRemove, config.LogRemove, text.Vars{})
	default:
		c.settling.end(l.ID)
		return failure(listing.ErrInvalidTransition, l)
	}
	slog.Warn("recovered unsettled listing", "listing", l.ID, "status", l.Status)
	c.close(ctx, l)
	return success(l)
}

var errSettling = errors.New("market: listing is being settled")
