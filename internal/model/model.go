// Package model defines the record shapes persisted by the storage backends.
// Amounts are decimal strings on the wire and NUMERIC in SQL stores.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListingRecord is the durable form of a listing. Exactly one of Price or
// the auction fields is meaningful, selected by Auction.
type ListingRecord struct {
	ID         uuid.UUID        `json:"id"`
	Owner      uuid.UUID        `json:"owner"`
	OwnerName  string           `json:"owner_name"`
	EntryKind  string           `json:"entry_kind"`
	EntryBlob  []byte           `json:"entry_blob"`
	Auction    bool             `json:"auction"`
	Price      decimal.Decimal  `json:"price"`               // fixed price, or auction start
	Increment  decimal.Decimal  `json:"increment,omitempty"` // auction only
	HighBid    *decimal.Decimal `json:"high_bid,omitempty"`
	HighBidder *uuid.UUID       `json:"high_bidder,omitempty"`
	BidderName string           `json:"bidder_name,omitempty"`
	Buyer      *uuid.UUID       `json:"buyer,omitempty"`
	BuyerName  string           `json:"buyer_name,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	Status     string           `json:"status"`
	Settled    bool             `json:"settled,omitempty"` // closing deliveries done
}

// Log actions.
const (
	ActionAdd      = "add"
	ActionRemove   = "remove"
	ActionExpire   = "expire"
	ActionPurchase = "purchase"
	ActionSell     = "sell"
	ActionBid      = "bid"
)

// Log is an immutable audit record of a completed lifecycle event.
type Log struct {
	ID        uuid.UUID `json:"id"`
	Owner     uuid.UUID `json:"owner"`
	ListingID uuid.UUID `json:"listing_id"`
	Action    string    `json:"action"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// HeldEntryRecord is an undelivered entry queued for its recipient.
type HeldEntryRecord struct {
	ID        uuid.UUID `json:"id"`
	Recipient uuid.UUID `json:"recipient"`
	EntryKind string    `json:"entry_kind"`
	EntryBlob []byte    `json:"entry_blob"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// HeldPriceRecord is an undelivered payment queued for its recipient.
type HeldPriceRecord struct {
	ID        uuid.UUID       `json:"id"`
	Recipient uuid.UUID       `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}
