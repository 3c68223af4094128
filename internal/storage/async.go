package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/metrics"
	"github.com/atmx/gts-market/internal/model"
	"github.com/atmx/gts-market/internal/store"
)

// Async adapts a synchronous store.Backend to Storage. Calls are queued on
// a Pool; failures carry the backend error and are not retried.
type Async struct {
	backend store.Backend
	codec   listing.Codec
	pool    *Pool
}

// NewAsync wraps backend. The pool is owned by the returned value.
func NewAsync(backend store.Backend, codec listing.Codec, pool *Pool) *Async {
	return &Async{backend: backend, codec: codec, pool: pool}
}

// Close drains queued work and closes the backend.
func (a *Async) Close() error {
	a.pool.Close()
	return a.backend.Close()
}

// run queues fn with a context detached from the caller's cancellation.
func run[T any](a *Async, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	ctx = context.WithoutCancel(ctx)
	ok := a.pool.submit(func() {
		start := time.Now()
		v, err := fn(ctx)
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.StorageLatency.WithLabelValues(a.backend.Name(), op, result).Observe(time.Since(start).Seconds())
		f.complete(v, err)
	})
	if !ok {
		var zero T
		f.complete(zero, ErrClosed)
	}
	return f
}

func exec(a *Async, ctx context.Context, op string, fn func(ctx context.Context) error) *Future[struct{}] {
	return run(a, ctx, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

func (a *Async) AddListing(ctx context.Context, l *listing.Listing) *Future[struct{}] {
	rec, err := a.codec.ListingToRecord(l)
	if err != nil {
		return Completed(struct{}{}, err)
	}
	return exec(a, ctx, "add_listing", func(ctx context.Context) error {
		return a.backend.AddListing(ctx, rec)
	})
}

func (a *Async) UpdateListing(ctx context.Context, l *listing.Listing) *Future[struct{}] {
	rec, err := a.codec.ListingToRecord(l)
	if err != nil {
		return Completed(struct{}{}, err)
	}
	return exec(a, ctx, "update_listing", func(ctx context.Context) error {
		return a.backend.UpdateListing(ctx, rec)
	})
}

func (a *Async) RemoveListing(ctx context.Context, id uuid.UUID) *Future[struct{}] {
	return exec(a, ctx, "remove_listing", func(ctx context.Context) error {
		return a.backend.RemoveListing(ctx, id)
	})
}

// Listings decodes every stored listing. Records that no longer decode
// (for example an unregistered entry kind) are skipped with a warning.
func (a *Async) Listings(ctx context.Context) *Future[[]*listing.Listing] {
	return run(a, ctx, "listings", func(ctx context.Context) ([]*listing.Listing, error) {
		recs, err := a.backend.Listings(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*listing.Listing, 0, len(recs))
		for _, rec := range recs {
			l, err := a.codec.ListingFromRecord(rec)
			if err != nil {
				slog.Warn("skipping undecodable listing", "id", rec.ID, "error", err)
				continue
			}
			out = append(out, l)
		}
		return out, nil
	})
}

func (a *Async) AddLog(ctx context.Context, l model.Log) *Future[struct{}] {
	return exec(a, ctx, "add_log", func(ctx context.Context) error {
		return a.backend.AddLog(ctx, l)
	})
}

func (a *Async) RemoveLog(ctx context.Context, id uuid.UUID) *Future[struct{}] {
	return exec(a, ctx, "remove_log", func(ctx context.Context) error {
		return a.backend.RemoveLog(ctx, id)
	})
}

func (a *Async) Logs(ctx context.Context, owner uuid.UUID) *Future[[]model.Log] {
	return run(a, ctx, "logs", func(ctx context.Context) ([]model.Log, error) {
		return a.backend.Logs(ctx, owner)
	})
}

func (a *Async) AddHeldEntry(ctx context.Context, h listing.HeldEntry) *Future[struct{}] {
	rec, err := a.codec.HeldEntryToRecord(h)
	if err != nil {
		return Completed(struct{}{}, err)
	}
	return exec(a, ctx, "add_held_entry", func(ctx context.Context) error {
		return a.backend.AddHeldEntry(ctx, rec)
	})
}

func (a *Async) RemoveHeldEntry(ctx context.Context, id uuid.UUID) *Future[struct{}] {
	return exec(a, ctx, "remove_held_entry", func(ctx context.Context) error {
		return a.backend.RemoveHeldEntry(ctx, id)
	})
}

func (a *Async) HeldEntries(ctx context.Context) *Future[[]listing.HeldEntry] {
	return run(a, ctx, "held_entries", func(ctx context.Context) ([]listing.HeldEntry, error) {
		recs, err := a.backend.HeldEntries(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]listing.HeldEntry, 0, len(recs))
		for _, rec := range recs {
			h, err := a.codec.HeldEntryFromRecord(rec)
			if err != nil {
				slog.Warn("skipping undecodable held entry", "id", rec.ID, "error", err)
				continue
			}
			out = append(out, h)
		}
		return out, nil
	})
}

func (a *Async) AddHeldPrice(ctx context.Context, h listing.HeldPrice) *Future[struct{}] {
	rec := a.codec.HeldPriceToRecord(h)
	return exec(a, ctx, "add_held_price", func(ctx context.Context) error {
		return a.backend.AddHeldPrice(ctx, rec)
	})
}

func (a *Async) RemoveHeldPrice(ctx context.Context, id uuid.UUID) *Future[struct{}] {
	return exec(a, ctx, "remove_held_price", func(ctx context.Context) error {
		return a.backend.RemoveHeldPrice(ctx, id)
	})
}

func (a *Async) HeldPrices(ctx context.Context) *Future[[]listing.HeldPrice] {
	return run(a, ctx, "held_prices", func(ctx context.Context) ([]listing.HeldPrice, error) {
		recs, err := a.backend.HeldPrices(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]listing.HeldPrice, 0, len(recs))
		for _, rec := range recs {
			out = append(out, a.codec.HeldPriceFromRecord(rec))
		}
		return out, nil
	})
}

func (a *Async) AddIgnorer(ctx context.Context, player uuid.UUID) *Future[struct{}] {
	return exec(a, ctx, "add_ignorer", func(ctx context.Context) error {
		return a.backend.AddIgnorer(ctx, player)
	})
}

func (a *Async) RemoveIgnorer(ctx context.Context, player uuid.UUID) *Future[struct{}] {
	return exec(a, ctx, "remove_ignorer", func(ctx context.Context) error {
		return a.backend.RemoveIgnorer(ctx, player)
	})
}

func (a *Async) Ignorers(ctx context.Context) *Future[[]uuid.UUID] {
	return run(a, ctx, "ignorers", func(ctx context.Context) ([]uuid.UUID, error) {
		return a.backend.Ignorers(ctx)
	})
}

func (a *Async) Purge(ctx context.Context, includeLogs bool) *Future[struct{}] {
	return exec(a, ctx, "purge", func(ctx context.Context) error {
		return a.backend.Purge(ctx, includeLogs)
	})
}

func (a *Async) Save(ctx context.Context) *Future[struct{}] {
	return exec(a, ctx, "save", func(ctx context.Context) error {
		return a.backend.Save(ctx)
	})
}
