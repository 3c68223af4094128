package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/model"
	"github.com/atmx/gts-market/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newListing(owner uuid.UUID, offset time.Duration) model.ListingRecord {
	exp := t0.Add(time.Hour + offset)
	return model.ListingRecord{
		ID:        uuid.New(),
		Owner:     owner,
		OwnerName: "alice",
		EntryKind: "item",
		EntryBlob: []byte(`{"id":"diamond","title":"Diamond","quantity":3}`),
		Price:     d("1250.50"),
		CreatedAt: t0.Add(offset),
		ExpiresAt: &exp,
		Status:    "ACTIVE",
	}
}

// backends returns every Backend that runs without external services.
func backends(t *testing.T) map[string]func() store.Backend {
	t.Helper()
	dir := t.TempDir()
	return map[string]func() store.Backend{
		"memory":   func() store.Backend { return store.NewMemoryStore() },
		"sqlite":   func() store.Backend { return store.NewSQLiteStore(filepath.Join(dir, "gts.sqlite")) },
		"flatfile": func() store.Backend { return store.NewFlatFileStore(filepath.Join(dir, "gts.json.zst")) },
	}
}

func open(t *testing.T, mk func() store.Backend) store.Backend {
	t.Helper()
	b := mk()
	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("init %s: %v", b.Name(), err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_ListingLifecycle(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := open(t, mk)
			owner := uuid.New()

			first := newListing(owner, 0)
			second := newListing(owner, time.Minute)
			second.Auction = true
			second.Increment = d("5")
			for _, rec := range []model.ListingRecord{second, first} {
				if err := b.AddListing(ctx, rec); err != nil {
					t.Fatalf("add: %v", err)
				}
			}

			bidder := uuid.New()
			hb := d("1300")
			second.HighBid = &hb
			second.HighBidder = &bidder
			second.BidderName = "bob"
			if err := b.UpdateListing(ctx, second); err != nil {
				t.Fatalf("update: %v", err)
			}

			got, err := b.Listings(ctx)
			if err != nil {
				t.Fatalf("listings: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 listings, got %d", len(got))
			}
			if got[0].ID != first.ID {
				t.Errorf("expected oldest listing first")
			}
			if !got[0].Price.Equal(d("1250.50")) {
				t.Errorf("price: got %s", got[0].Price)
			}
			if got[1].HighBid == nil || !got[1].HighBid.Equal(hb) {
				t.Errorf("high bid not persisted: %+v", got[1].HighBid)
			}
			if got[1].HighBidder == nil || *got[1].HighBidder != bidder {
				t.Errorf("high bidder not persisted")
			}
			if !got[1].Auction || !got[1].Increment.Equal(d("5")) {
				t.Errorf("auction fields not persisted: %+v", got[1])
			}
			if !got[0].ExpiresAt.Equal(*first.ExpiresAt) {
				t.Errorf("expires_at: got %v want %v", got[0].ExpiresAt, first.ExpiresAt)
			}

			if err := b.RemoveListing(ctx, first.ID); err != nil {
				t.Fatalf("remove: %v", err)
			}
			if err := b.RemoveListing(ctx, first.ID); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("second remove: expected ErrNotFound, got %v", err)
			}
			if err := b.UpdateListing(ctx, first); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("update removed: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestBackend_LogsPerOwner(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := open(t, mk)
			alice, bob := uuid.New(), uuid.New()

			logs := []model.Log{
				{ID: uuid.New(), Owner: alice, ListingID: uuid.New(), Action: model.ActionAdd, Summary: "listed", CreatedAt: t0},
				{ID: uuid.New(), Owner: bob, ListingID: uuid.New(), Action: model.ActionPurchase, Summary: "bought", CreatedAt: t0},
				{ID: uuid.New(), Owner: alice, ListingID: uuid.New(), Action: model.ActionSell, Summary: "sold", CreatedAt: t0.Add(time.Second)},
			}
			for _, l := range logs {
				if err := b.AddLog(ctx, l); err != nil {
					t.Fatalf("add log: %v", err)
				}
			}

			got, err := b.Logs(ctx, alice)
			if err != nil {
				t.Fatalf("logs: %v", err)
			}
			if len(got) != 2 || got[0].Action != model.ActionAdd || got[1].Action != model.ActionSell {
				t.Fatalf("unexpected alice logs: %+v", got)
			}

			if err := b.RemoveLog(ctx, logs[0].ID); err != nil {
				t.Fatalf("remove log: %v", err)
			}
			got, _ = b.Logs(ctx, alice)
			if len(got) != 1 {
				t.Errorf("expected 1 log after removal, got %d", len(got))
			}
		})
	}
}

func TestBackend_HeldAndIgnorers(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := open(t, mk)
			player := uuid.New()

			he := model.HeldEntryRecord{ID: uuid.New(), Recipient: player, EntryKind: "item", EntryBlob: []byte(`{}`), Reason: "offline", CreatedAt: t0}
			hp := model.HeldPriceRecord{ID: uuid.New(), Recipient: player, Amount: d("99.95"), Reason: "offline", CreatedAt: t0}
			if err := b.AddHeldEntry(ctx, he); err != nil {
				t.Fatalf("held entry: %v", err)
			}
			if err := b.AddHeldPrice(ctx, hp); err != nil {
				t.Fatalf("held price: %v", err)
			}
			if err := b.AddIgnorer(ctx, player); err != nil {
				t.Fatalf("ignorer: %v", err)
			}
			if err := b.AddIgnorer(ctx, player); err != nil {
				t.Fatalf("ignorer twice: %v", err)
			}

			prices, _ := b.HeldPrices(ctx)
			if len(prices) != 1 || !prices[0].Amount.Equal(d("99.95")) {
				t.Errorf("held prices: %+v", prices)
			}
			entries, _ := b.HeldEntries(ctx)
			if len(entries) != 1 || entries[0].Recipient != player {
				t.Errorf("held entries: %+v", entries)
			}
			ign, _ := b.Ignorers(ctx)
			if len(ign) != 1 || ign[0] != player {
				t.Errorf("ignorers: %v", ign)
			}

			if err := b.RemoveHeldEntry(ctx, he.ID); err != nil {
				t.Errorf("remove held entry: %v", err)
			}
			if err := b.RemoveHeldPrice(ctx, hp.ID); err != nil {
				t.Errorf("remove held price: %v", err)
			}
			if err := b.RemoveIgnorer(ctx, player); err != nil {
				t.Errorf("remove ignorer: %v", err)
			}
			ign, _ = b.Ignorers(ctx)
			if len(ign) != 0 {
				t.Errorf("expected no ignorers, got %v", ign)
			}
		})
	}
}

func TestBackend_Purge(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := open(t, mk)
			owner := uuid.New()

			_ = b.AddListing(ctx, newListing(owner, 0))
			_ = b.AddLog(ctx, model.Log{ID: uuid.New(), Owner: owner, Action: model.ActionAdd, CreatedAt: t0})

			if err := b.Purge(ctx, false); err != nil {
				t.Fatalf("purge: %v", err)
			}
			if ls, _ := b.Listings(ctx); len(ls) != 0 {
				t.Errorf("listings survived purge")
			}
			if logs, _ := b.Logs(ctx, owner); len(logs) != 1 {
				t.Errorf("logs should survive purge without logs flag")
			}

			if err := b.Purge(ctx, true); err != nil {
				t.Fatalf("purge logs: %v", err)
			}
			if logs, _ := b.Logs(ctx, owner); len(logs) != 0 {
				t.Errorf("logs survived purge with logs flag")
			}
		})
	}
}

func TestFlatFile_SaveAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "market", "gts.json.zst")
	owner := uuid.New()

	first := store.NewFlatFileStore(path)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init empty: %v", err)
	}
	rec := newListing(owner, 0)
	_ = first.AddListing(ctx, rec)
	_ = first.AddHeldPrice(ctx, model.HeldPriceRecord{ID: uuid.New(), Recipient: owner, Amount: d("12.34"), CreatedAt: t0})
	_ = first.AddIgnorer(ctx, owner)
	if err := first.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := store.NewFlatFileStore(path)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	ls, _ := second.Listings(ctx)
	if len(ls) != 1 || ls[0].ID != rec.ID || !ls[0].Price.Equal(rec.Price) {
		t.Fatalf("listing not reloaded: %+v", ls)
	}
	if string(ls[0].EntryBlob) != string(rec.EntryBlob) {
		t.Errorf("entry blob changed: %s", ls[0].EntryBlob)
	}
	prices, _ := second.HeldPrices(ctx)
	if len(prices) != 1 || !prices[0].Amount.Equal(d("12.34")) {
		t.Errorf("held price not reloaded: %+v", prices)
	}
	ign, _ := second.Ignorers(ctx)
	if len(ign) != 1 {
		t.Errorf("ignorers not reloaded: %v", ign)
	}
}

func TestBackend_SettledMarkerPersists(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := open(t, mk)

			rec := newListing(uuid.New(), 0)
			if err := b.AddListing(ctx, rec); err != nil {
				t.Fatalf("add: %v", err)
			}
			buyer := uuid.New()
			rec.Status = "SOLD"
			rec.Buyer = &buyer
			rec.BuyerName = "bob"
			rec.Settled = true
			if err := b.UpdateListing(ctx, rec); err != nil {
				t.Fatalf("update: %v", err)
			}

			got, err := b.Listings(ctx)
			if err != nil {
				t.Fatalf("listings: %v", err)
			}
			if len(got) != 1 || !got[0].Settled || got[0].Status != "SOLD" {
				t.Fatalf("settled SOLD listing not persisted: %+v", got)
			}
		})
	}
}
