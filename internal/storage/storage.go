// Package storage is the asynchronous persistence port used by the market.
// Async runs a store.Backend on a worker pool; Cached layers an in-memory
// view over any Storage with per-record write ordering and rollback.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/model"
)

// Storage persists market state. Every call returns immediately; the
// future reports the durable outcome. Writes submitted with a context
// run to completion even if that context is cancelled.
type Storage interface {
	AddListing(ctx context.Context, l *listing.Listing) *Future[struct{}]
	UpdateListing(ctx context.Context, l *listing.Listing) *Future[struct{}]
	RemoveListing(ctx context.Context, id uuid.UUID) *Future[struct{}]
	Listings(ctx context.Context) *Future[[]*listing.Listing]

	AddLog(ctx context.Context, l model.Log) *Future[struct{}]
	RemoveLog(ctx context.Context, id uuid.UUID) *Future[struct{}]
	Logs(ctx context.Context, owner uuid.UUID) *Future[[]model.Log]

	AddHeldEntry(ctx context.Context, h listing.HeldEntry) *Future[struct{}]
	RemoveHeldEntry(ctx context.Context, id uuid.UUID) *Future[struct{}]
	HeldEntries(ctx context.Context) *Future[[]listing.HeldEntry]

	AddHeldPrice(ctx context.Context, h listing.HeldPrice) *Future[struct{}]
	RemoveHeldPrice(ctx context.Context, id uuid.UUID) *Future[struct{}]
	HeldPrices(ctx context.Context) *Future[[]listing.HeldPrice]

	AddIgnorer(ctx context.Context, player uuid.UUID) *Future[struct{}]
	RemoveIgnorer(ctx context.Context, player uuid.UUID) *Future[struct{}]
	Ignorers(ctx context.Context) *Future[[]uuid.UUID]

	// Purge deletes all listings, and all logs when includeLogs is set.
	Purge(ctx context.Context, includeLogs bool) *Future[struct{}]
	// Save flushes pending state to durable media.
	Save(ctx context.Context) *Future[struct{}]
}
