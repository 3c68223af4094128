// Package store defines the durable persistence contract for the market.
// Implementations include PostgreSQL, SQLite, Redis, a compressed flat file,
// and in-memory (for testing). Every write either fully applies or fails.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/model"
)

// ErrNotFound is returned when updating or removing an unknown record.
var ErrNotFound = errors.New("store: record not found")

// Backend is the synchronous persistence interface. The storage package
// runs these calls off the caller's goroutine.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Init prepares schemas and loads any on-disk state.
	Init(ctx context.Context) error

	// Close releases connections. It does not flush; call Save first.
	Close() error

	// --- Listings ---

	AddListing(ctx context.Context, rec model.ListingRecord) error
	UpdateListing(ctx context.Context, rec model.ListingRecord) error
	RemoveListing(ctx context.Context, id uuid.UUID) error
	Listings(ctx context.Context) ([]model.ListingRecord, error)

	// --- Append-only logs ---

	AddLog(ctx context.Context, log model.Log) error
	RemoveLog(ctx context.Context, id uuid.UUID) error
	Logs(ctx context.Context, owner uuid.UUID) ([]model.Log, error)

	// --- Held deliveries ---

	AddHeldEntry(ctx context.Context, rec model.HeldEntryRecord) error
	RemoveHeldEntry(ctx context.Context, id uuid.UUID) error
	HeldEntries(ctx context.Context) ([]model.HeldEntryRecord, error)

	AddHeldPrice(ctx context.Context, rec model.HeldPriceRecord) error
	RemoveHeldPrice(ctx context.Context, id uuid.UUID) error
	HeldPrices(ctx context.Context) ([]model.HeldPriceRecord, error)

	// --- Broadcast opt-outs ---

	AddIgnorer(ctx context.Context, id uuid.UUID) error
	RemoveIgnorer(ctx context.Context, id uuid.UUID) error
	Ignorers(ctx context.Context) ([]uuid.UUID, error)

	// Purge deletes every listing, and every log when logs is true.
	Purge(ctx context.Context, logs bool) error

	// Save flushes buffered state to durable media.
	Save(ctx context.Context) error
}
