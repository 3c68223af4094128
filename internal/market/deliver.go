package market

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/config"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/metrics"
	"github.com/atmx/gts-market/internal/model"
	"github.com/atmx/gts-market/internal/notify"
	"github.com/atmx/gts-market/internal/pricing"
	"github.com/atmx/gts-market/internal/storage"
	"github.com/atmx/gts-market/internal/text"
)

// giveEntry hands l's entry to recipient, or records it as held.
func (c *Coordinator) giveEntry(ctx context.Context, l *listing.Listing, recipient uuid.UUID, reason string) {
	if l.Entry.Give(recipient) {
		return
	}
	h := listing.HeldEntry{
		ID:        uuid.New(),
		Recipient: recipient,
		Entry:     l.Entry,
		Reason:    reason,
		CreatedAt: c.now(),
	}
	metrics.HeldDeliveries.WithLabelValues("entry").Inc()
	slog.Warn("entry delivery failed, holding",
		"listing", l.ID, "recipient", recipient, "reason", reason, "held", h.ID)
	if err := c.store.AddHeldEntry(ctx, h).Err(); err != nil {
		slog.Error("could not record held entry", "listing", l.ID, "recipient", recipient, "error", err)
	}
	c.tell(recipient, notify.KindHeld, config.MsgHeldEntry, text.Vars{Listing: l})
}

// pay credits recipient, or records a held price. Returns true when the
// money reached the recipient directly.
func (c *Coordinator) pay(ctx context.Context, recipient uuid.UUID, amount pricing.Price, reason string, l *listing.Listing) bool {
	if amount.IsZero() || c.bank.Deposit(recipient, amount.Amount()) {
		return true
	}
	h := listing.HeldPrice{
		ID:        uuid.New(),
		Recipient: recipient,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: c.now(),
	}
	metrics.HeldDeliveries.WithLabelValues("price").Inc()
	slog.Warn("payment failed, holding",
		"recipient", recipient, "amount", amount.Amount(), "reason", reason, "held", h.ID)
	if err := c.store.AddHeldPrice(ctx, h).Err(); err != nil {
		slog.Error("could not record held price", "recipient", recipient, "amount", amount.Amount(), "error", err)
	}
	c.tell(recipient, notify.KindHeld, config.MsgHeldPrice, text.Vars{Listing: l, Price: &amount})
	return false
}

// finalize drops a settled listing and reports whether it is gone. A
// failed removal leaves the listing in memory; the next sweep removes it.
func (c *Coordinator) finalize(ctx context.Context, l *listing.Listing) bool {
	if err := c.store.RemoveListing(ctx, l.ID).Err(); err != nil && !errors.Is(err, storage.ErrUnknownListing) {
		slog.Error("could not remove settled listing", "listing", l.ID, "status", l.Status, "error", err)
		return false
	}
	return true
}

func (c *Coordinator) log(ctx context.Context, owner uuid.UUID, l *listing.Listing, action, key string, v text.Vars) {
	v.Listing = l
	entry := model.Log{
		ID:        uuid.New(),
		Owner:     owner,
		ListingID: l.ID,
		Action:    action,
		Summary:   c.text.Line(key, v),
		CreatedAt: c.now(),
	}
	if err := c.store.AddLog(ctx, entry).Err(); err != nil {
		slog.Warn("could not write log", "owner", owner, "action", action, "error", err)
	}
}

func (c *Coordinator) message(kind string, v text.Vars, lines []string) notify.Message {
	m := notify.Message{Kind: kind, Lines: lines, At: c.now()}
	if v.Listing != nil {
		m.ListingID = v.Listing.ID.String()
		m.Price = v.Listing.CurrentPrice().Amount().String()
	}
	if v.Price != nil {
		m.Price = v.Price.Amount().String()
	}
	return m
}

func (c *Coordinator) tell(to uuid.UUID, kind, key string, v text.Vars) {
	lines := c.text.Lines(key, v)
	if len(lines) == 0 {
		return
	}
	c.notify.Tell(to, c.message(kind, v, lines))
}

func (c *Coordinator) broadcast(kind, key string, v text.Vars) {
	lines := c.text.Lines(key, v)
	if len(lines) == 0 {
		return
	}
	c.notify.Broadcast(c.message(kind, v, lines))
}

// explain tells a player why their request was rejected.
func (c *Coordinator) explain(to uuid.UUID, err error, v text.Vars) {
	var pe *pricing.PricingError
	key := ""
	switch {
	case errors.Is(err, listing.ErrSelfBid):
		key = config.MsgHighBidder
	case errors.Is(err, listing.ErrBidTooLow):
		key = config.MsgBidTooLow
	case errors.Is(err, ErrInsufficientFunds):
		key = config.MsgNotEnoughFunds
	case errors.Is(err, ErrMaxListings):
		key = config.MsgMaxListings
		v.MaxListings = c.opts.MaxListings
	case errors.As(err, &pe) && pe.Reason == pricing.ReasonBelowMinimum:
		key = config.MsgMinPrice
		floor := c.limits.Restore(pe.Limit)
		v.MinPrice = &floor
	case errors.Is(err, listing.ErrNotActive),
		errors.Is(err, listing.ErrExpired),
		errors.Is(err, ErrListingNotFound),
		errors.Is(err, storage.ErrUnknownListing):
		key = config.MsgAlreadyClaimed
	}
	if key == "" {
		return
	}
	c.tell(to, notify.KindRejected, key, v)
}
