package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/config"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/model"
	"github.com/atmx/gts-market/internal/notify"
	"github.com/atmx/gts-market/internal/storage"
	"github.com/atmx/gts-market/internal/text"
)

// ClaimHeld retries every held delivery for player and returns how many
// reached them. A held record is removed before delivery and restored if
// delivery still fails, so nothing is delivered twice.
func (c *Coordinator) ClaimHeld(ctx context.Context, player uuid.UUID) (int, error) {
	delivered := 0
	for _, h := range c.store.HeldEntriesFor(player) {
		if err := c.store.RemoveHeldEntry(ctx, h.ID).Err(); err != nil {
			if errors.Is(err, storage.ErrUnknownHeld) {
				continue
			}
			return delivered, fmt.Errorf("claim held entry %s: %w", h.ID, err)
		}
		if h.Entry.Give(player) {
			delivered++
			continue
		}
		if err := c.store.AddHeldEntry(ctx, h).Err(); err != nil {
			slog.Error("held entry lost after failed redelivery", "held", h.ID, "recipient", player, "error", err)
			return delivered, fmt.Errorf("restore held entry %s: %w", h.ID, err)
		}
	}

	for _, h := range c.store.HeldPricesFor(player) {
		if err := c.store.RemoveHeldPrice(ctx, h.ID).Err(); err != nil {
			if errors.Is(err, storage.ErrUnknownHeld) {
				continue
			}
			return delivered, fmt.Errorf("claim held price %s: %w", h.ID, err)
		}
		if c.bank.Deposit(player, h.Amount.Amount()) {
			delivered++
			continue
		}
		if err := c.store.AddHeldPrice(ctx, h).Err(); err != nil {
			slog.Error("held price lost after failed redelivery", "held", h.ID, "recipient", player, "error", err)
			return delivered, fmt.Errorf("restore held price %s: %w", h.ID, err)
		}
	}

	if delivered > 0 {
		c.tell(player, notify.KindClaimed, config.MsgClaimed, text.Vars{Count: delivered})
		slog.Info("held deliveries claimed", "player", player, "count", delivered)
	}
	return delivered, nil
}

// Held returns the deliveries waiting for player.
func (c *Coordinator) Held(player uuid.UUID) ([]listing.HeldEntry, []listing.HeldPrice) {
	return c.store.HeldEntriesFor(player), c.store.HeldPricesFor(player)
}

// SetIgnoring turns market broadcasts off (on=true) or back on for player.
func (c *Coordinator) SetIgnoring(ctx context.Context, player uuid.UUID, on bool) error {
	if on {
		return c.store.AddIgnorer(ctx, player).Err()
	}
	return c.store.RemoveIgnorer(ctx, player).Err()
}

// IsIgnoring reports whether player has muted market broadcasts.
func (c *Coordinator) IsIgnoring(player uuid.UUID) bool {
	return c.store.IsIgnoring(player)
}

// Logs returns player's history, oldest first.
func (c *Coordinator) Logs(ctx context.Context, player uuid.UUID) ([]model.Log, error) {
	return c.store.Logs(ctx, player).Await(ctx)
}
