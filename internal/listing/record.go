package listing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/model"
	"github.com/atmx/gts-market/internal/pricing"
)

// HeldEntry is an entry that could not be delivered and awaits its recipient.
type HeldEntry struct {
	ID        uuid.UUID
	Recipient uuid.UUID
	Entry     entry.Entry
	Reason    string
	CreatedAt time.Time
}

// HeldPrice is a payment that could not be delivered and awaits its recipient.
type HeldPrice struct {
	ID        uuid.UUID
	Recipient uuid.UUID
	Amount    pricing.Price
	Reason    string
	CreatedAt time.Time
}

// Codec converts between domain values and persisted records.
type Codec struct {
	Registry *entry.Registry
}

func (c Codec) limits() pricing.Limits { return c.Registry.Limits() }

// ListingToRecord encodes l for storage.
func (c Codec) ListingToRecord(l *Listing) (model.ListingRecord, error) {
	kind, blob, err := c.Registry.Encode(l.Entry)
	if err != nil {
		return model.ListingRecord{}, err
	}
	rec := model.ListingRecord{
		ID:        l.ID,
		Owner:     l.Owner,
		OwnerName: l.OwnerName,
		EntryKind: kind,
		EntryBlob: blob,
		Buyer:     l.Buyer,
		BuyerName: l.BuyerName,
		CreatedAt: l.CreatedAt,
		ExpiresAt: l.ExpiresAt,
		Status:    string(l.Status),
		Settled:   l.Settled,
	}
	if a := l.Auction; a != nil {
		rec.Auction = true
		rec.Price = a.Start.Amount()
		rec.Increment = a.Increment.Amount()
		if a.HighBid != nil {
			hb := a.HighBid.Amount()
			rec.HighBid = &hb
		}
		rec.HighBidder = a.HighBidder
		rec.BidderName = a.HighBidderName
	} else {
		rec.Price = l.Price.Amount()
	}
	return rec, nil
}

// ListingFromRecord decodes a stored listing.
func (c Codec) ListingFromRecord(rec model.ListingRecord) (*Listing, error) {
	e, err := c.Registry.Decode(rec.EntryKind, rec.EntryBlob)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", rec.ID, err)
	}
	lim := c.limits()
	l := &Listing{
		ID:        rec.ID,
		Owner:     rec.Owner,
		OwnerName: rec.OwnerName,
		Entry:     e,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
		Status:    Status(rec.Status),
		Settled:   rec.Settled,
		Buyer:     rec.Buyer,
		BuyerName: rec.BuyerName,
	}
	if rec.Auction {
		a := &AuctionData{
			Start:          lim.Restore(rec.Price),
			Increment:      lim.Restore(rec.Increment),
			HighBidder:     rec.HighBidder,
			HighBidderName: rec.BidderName,
		}
		if rec.HighBid != nil {
			hb := lim.Restore(*rec.HighBid)
			a.HighBid = &hb
		}
		l.Auction = a
	} else {
		p := lim.Restore(rec.Price)
		l.Price = &p
	}
	return l, nil
}

// HeldEntryToRecord encodes h for storage.
func (c Codec) HeldEntryToRecord(h HeldEntry) (model.HeldEntryRecord, error) {
	kind, blob, err := c.Registry.Encode(h.Entry)
	if err != nil {
		return model.HeldEntryRecord{}, err
	}
	return model.HeldEntryRecord{
		ID:        h.ID,
		Recipient: h.Recipient,
		EntryKind: kind,
		EntryBlob: blob,
		Reason:    h.Reason,
		CreatedAt: h.CreatedAt,
	}, nil
}

// HeldEntryFromRecord decodes a stored held entry.
func (c Codec) HeldEntryFromRecord(rec model.HeldEntryRecord) (HeldEntry, error) {
	e, err := c.Registry.Decode(rec.EntryKind, rec.EntryBlob)
	if err != nil {
		return HeldEntry{}, fmt.Errorf("held entry %s: %w", rec.ID, err)
	}
	return HeldEntry{
		ID:        rec.ID,
		Recipient: rec.Recipient,
		Entry:     e,
		Reason:    rec.Reason,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// HeldPriceToRecord encodes h for storage.
func (c Codec) HeldPriceToRecord(h HeldPrice) model.HeldPriceRecord {
	return model.HeldPriceRecord{
		ID:        h.ID,
		Recipient: h.Recipient,
		Amount:    h.Amount.Amount(),
		Reason:    h.Reason,
		CreatedAt: h.CreatedAt,
	}
}

// HeldPriceFromRecord decodes a stored held price.
func (c Codec) HeldPriceFromRecord(rec model.HeldPriceRecord) HeldPrice {
	return HeldPrice{
		ID:        rec.ID,
		Recipient: rec.Recipient,
		Amount:    c.limits().Restore(rec.Amount),
		Reason:    rec.Reason,
		CreatedAt: rec.CreatedAt,
	}
}
