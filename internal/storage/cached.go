package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/metrics"
	"github.com/atmx/gts-market/internal/model"
)

var (
	// ErrUnknownListing is returned when a write targets a listing that is
	// not in memory.
	ErrUnknownListing = errors.New("storage: unknown listing")
	// ErrDuplicate is returned when adding a record whose id is in use.
	ErrDuplicate = errors.New("storage: duplicate id")
	// ErrUnknownHeld is returned when removing a held delivery that does not exist.
	ErrUnknownHeld = errors.New("storage: unknown held delivery")
)

// Mutation computes the next state of a listing from a private copy of its
// current state. Returning an error leaves the listing untouched.
type Mutation func(cur *listing.Listing) (*listing.Listing, error)

// Cached keeps the whole market in memory in front of another Storage.
//
// Writes touching the same record run one at a time in issue order. Each
// write updates memory first, then dispatches the durable write and rolls
// memory back if it fails, so a successful future means memory and the
// backing store agree. Save and Purge wait for in-flight writes and block
// new ones until they finish.
type Cached struct {
	inner Storage

	// phase is held shared by record writes and exclusively by Save/Purge.
	phase sync.RWMutex

	mu          sync.Mutex
	tails       map[string]chan struct{}
	listings    map[uuid.UUID]*listing.Listing
	heldEntries map[uuid.UUID]listing.HeldEntry
	heldPrices  map[uuid.UUID]listing.HeldPrice
	ignorers    map[uuid.UUID]struct{}
	logs        map[uuid.UUID][]model.Log // per owner, filled on first read
	logGen      uint64                    // bumped by removals of uncached logs
}

// NewCached wraps inner. Call Load before serving traffic.
func NewCached(inner Storage) *Cached {
	return &Cached{
		inner:       inner,
		tails:       make(map[string]chan struct{}),
		listings:    make(map[uuid.UUID]*listing.Listing),
		heldEntries: make(map[uuid.UUID]listing.HeldEntry),
		heldPrices:  make(map[uuid.UUID]listing.HeldPrice),
		ignorers:    make(map[uuid.UUID]struct{}),
		logs:        make(map[uuid.UUID][]model.Log),
	}
}

// Load warms memory from the backing store.
func (c *Cached) Load(ctx context.Context) error {
	ls, err := c.inner.Listings(ctx).Await(ctx)
	if err != nil {
		return fmt.Errorf("load listings: %w", err)
	}
	hes, err := c.inner.HeldEntries(ctx).Await(ctx)
	if err != nil {
		return fmt.Errorf("load held entries: %w", err)
	}
	hps, err := c.inner.HeldPrices(ctx).Await(ctx)
	if err != nil {
		return fmt.Errorf("load held prices: %w", err)
	}
	ign, err := c.inner.Ignorers(ctx).Await(ctx)
	if err != nil {
		return fmt.Errorf("load ignorers: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range ls {
		c.listings[l.ID] = l
	}
	for _, h := range hes {
		c.heldEntries[h.ID] = h
	}
	for _, h := range hps {
		c.heldPrices[h.ID] = h
	}
	for _, id := range ign {
		c.ignorers[id] = struct{}{}
	}
	metrics.ActiveListings.Set(float64(len(c.listings)))
	return nil
}

// serialize runs st after every earlier write to key has finished. st runs
// with the record's slot held and returns the value to report, the durable
// dispatch, and the undo for memory.
func serialize[T any](c *Cached, key string, st func() (T, func() *Future[struct{}], func(), error)) *Future[T] {
	out := newFuture[T]()
	done := make(chan struct{})

	c.mu.Lock()
	prev := c.tails[key]
	c.tails[key] = done
	c.mu.Unlock()

	go func() {
		defer c.release(key, done)
		if prev != nil {
			<-prev
		}
		// Taken after the previous write finishes, never while waiting.
		c.phase.RLock()
		defer c.phase.RUnlock()

		v, dispatch, undo, err := st()
		if err != nil {
			out.complete(v, err)
			return
		}
		if dispatch != nil {
			if err := dispatch().Err(); err != nil {
				if undo != nil {
					undo()
					metrics.Rollbacks.Inc()
				}
				var zero T
				out.complete(zero, err)
				return
			}
		}
		out.complete(v, nil)
	}()
	return out
}

func (c *Cached) release(key string, done chan struct{}) {
	c.mu.Lock()
	if c.tails[key] == done {
		delete(c.tails, key)
	}
	c.mu.Unlock()
	close(done)
}

func listingKey(id uuid.UUID) string { return "listing:" + id.String() }

// --- Listings ---

func (c *Cached) AddListing(ctx context.Context, l *listing.Listing) *Future[struct{}] {
	l = l.Clone()
	return serialize(c, listingKey(l.ID), func() (struct{}, func() *Future[struct{}], func(), error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.listings[l.ID]; ok {
			return struct{}{}, nil, nil, fmt.Errorf("listing %s: %w", l.ID, ErrDuplicate)
		}
		c.listings[l.ID] = l
		metrics.ActiveListings.Inc()
		return struct{}{},
			func() *Future[struct{}] { return c.inner.AddListing(ctx, l) },
			func() {
				c.mu.Lock()
				delete(c.listings, l.ID)
				c.mu.Unlock()
				metrics.ActiveListings.Dec()
			}, nil
	})
}

func (c *Cached) UpdateListing(ctx context.Context, l *listing.Listing) *Future[struct{}] {
	l = l.Clone()
	f := c.MutateListing(ctx, l.ID, func(*listing.Listing) (*listing.Listing, error) { return l, nil })
	return discard(f)
}

// MutateListing applies fn to the listing inside its write slot, so fn
// always observes the result of every earlier write to the same listing.
// The future carries the committed state.
func (c *Cached) MutateListing(ctx context.Context, id uuid.UUID, fn Mutation) *Future[*listing.Listing] {
	return serialize(c, listingKey(id), func() (*listing.Listing, func() *Future[struct{}], func(), error) {
		c.mu.Lock()
		cur, ok := c.listings[id]
		c.mu.Unlock()
		if !ok {
			return nil, nil, nil, fmt.Errorf("listing %s: %w", id, ErrUnknownListing)
		}

		next, err := fn(cur.Clone())
		if err != nil {
			return nil, nil, nil, err
		}
		next = next.Clone()

		c.mu.Lock()
		c.listings[id] = next
		c.mu.Unlock()
		return next.Clone(),
			func() *Future[struct{}] { return c.inner.UpdateListing(ctx, next) },
			func() {
				c.mu.Lock()
				c.listings[id] = cur
				c.mu.Unlock()
			}, nil
	})
}

func (c *Cached) RemoveListing(ctx context.Context, id uuid.UUID) *Future[struct{}] {
	return serialize(c, listingKey(id), func() (struct{}, func() *Future[struct{}], func(), error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		old, ok := c.listings[id]
		if !ok {
			return struct{}{}, nil, nil, fmt.Errorf("listing %s: %w", id, ErrUnknownListing)
		}
		delete(c.listings, id)
		metrics.ActiveListings.Dec()
		return struct{}{},
			func() *Future[struct{}] { return c.inner.RemoveListing(ctx, id) },
			func() {
				c.mu.Lock()
				c.listings[id] = old
				c.mu.Unlock()
				metrics.ActiveListings.Inc()
			}, nil
	})
}

// Listings returns the in-memory listings without touching the backing store.
func (c *Cached) Listings(_ context.Context) *Future[[]*listing.Listing] {
	return Completed(c.Snapshot(), nil)
}

// Listing returns a copy of the listing with the given id.
func (c *Cached) Listing(id uuid.UUID) (*listing.Listing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listings[id]
	if !ok {
		return nil, false
	}
	return l.Clone(), true
}

// Snapshot returns copies of all listings, oldest first.
func (c *Cached) Snapshot() []*listing.Listing {
	c.mu.Lock()
	out := make([]*listing.Listing, 0, len(c.listings))
	for _, l := range c.listings {
		out = append(out, l.Clone())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// --- Logs ---

func logsKey(owner uuid.UUID) string { return "logs:" + owner.String() }

func (c *Cached) AddLog(ctx context.Context, l model.Log) *Future[struct{}] {
	return serialize(c, logsKey(l.Owner), func() (struct{}, func() *Future[struct{}], func(), error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cached, ok := c.logs[l.Owner]; ok {
			c.logs[l.Owner] = append(cached, l)
		}
		return struct{}{},
			func() *Future[struct{}] { return c.inner.AddLog(ctx, l) },
			func() { c.dropLog(l.Owner, l.ID) }, nil
	})
}

func (c *Cached) RemoveLog(ctx context.Context, id uuid.UUID) *Future[struct{}] {
	owner, ok := c.logOwner(id)
	key := "log:" + id.String()
	if ok {
		key = logsKey(owner)
	}
	return serialize(c, key, func() (struct{}, func() *Future[struct{}], func(), error) {
		var removed *model.Log
		if ok {
			removed = c.dropLog(owner, id)
		}
		return struct{}{},
			func() *Future[struct{}] {
				err := c.inner.RemoveLog(ctx, id).Err()
				if err == nil && !ok {
					c.forgetLog(id)
				}
				return Completed(struct{}{}, err)
			},
			func() {
				if removed == nil {
					return
				}
				c.mu.Lock()
				defer c.mu.Unlock()
				if cached, ok := c.logs[owner]; ok {
					c.logs[owner] = append(cached, *removed)
					sort.SliceStable(c.logs[owner], func(i, j int) bool {
						return c.logs[owner][i].CreatedAt.Before(c.logs[owner][j].CreatedAt)
					})
				}
			}, nil
	})
}

// Logs returns owner's logs, reading through to the backing store once.
func (c *Cached) Logs(ctx context.Context, owner uuid.UUID) *Future[[]model.Log] {
	return serialize(c, logsKey(owner), func() ([]model.Log, func() *Future[struct{}], func(), error) {
		c.mu.Lock()
		cached, ok := c.logs[owner]
		gen := c.logGen
		c.mu.Unlock()
		if ok {
			return append([]model.Log(nil), cached...), nil, nil, nil
		}

		logs, err := c.inner.Logs(ctx, owner).Wait()
		if err != nil {
			return nil, nil, nil, err
		}
		// A removal that overlapped the read may have been missed by it.
		c.mu.Lock()
		if c.logGen == gen {
			c.logs[owner] = append([]model.Log(nil), logs...)
		}
		c.mu.Unlock()
		return logs, nil, nil, nil
	})
}

func (c *Cached) logOwner(id uuid.UUID) (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for owner, logs := range c.logs {
		for _, l := range logs {
			if l.ID == id {
				return owner, true
			}
		}
	}
	return uuid.Nil, false
}

// forgetLog drops id from every cached owner after it was removed from
// the backing store without its owner being known.
func (c *Cached) forgetLog(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logGen++
	for owner, logs := range c.logs {
		for i, l := range logs {
			if l.ID == id {
				c.logs[owner] = append(logs[:i:i], logs[i+1:]...)
				break
			}
		}
	}
}

func (c *Cached) dropLog(owner, id uuid.UUID) *model.Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	logs := c.logs[owner]
	for i, l := range logs {
		if l.ID == id {
			c.logs[owner] = append(logs[:i:i], logs[i+1:]...)
			return &l
		}
	}
	return nil
}

// --- Held deliveries ---

func (c *Cached) AddHeldEntry(ctx context.Context, h listing.HeldEntry) *Future[struct{}] {
	return serialize(c, "held-entry:"+h.ID.String(), func() (struct{}, func() *Future[struct{}], func(), error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.heldEntries[h.ID]; ok {
			return struct{}{}, nil, nil, fmt.Errorf("held entry %s: %w", h.ID, ErrDuplicate)
		}
		c.heldEntries[h.ID] = h
		return struct{}{},
			func() *Future[struct{}] { return c.inner.AddHeldEntry(ctx, h) },
			func() {
				c.mu.Lock()
				delete(c.heldEntries, h.ID)
				c.mu.Unlock()
			}, nil
	})
}

func (c *Cached) RemoveHeldEntry(ctx context.Context, id uuid.UUID) *Future[struct{}] {
	return serialize(c, "held-entry:"+id.String(), func() (struct{}, func() *Future[struct{}], func(), error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		old, ok := c.heldEntries[id]
		if !ok {
			return struct{}{}, nil, nil, fmt.Errorf("held entry %s: %w", id, ErrUnknownHeld)
		}
		delete(c.heldEntries, id)
		return struct{}{},
			func() *Future[struct{}] { return c.inner.RemoveHeldEntry(ctx, id) },
			func() {
				c.mu.Lock()
				c.heldEntries[id] = old
				c.mu.Unlock()
			}, nil
	})
}

func (c *Cached) HeldEntries(_ context.Context) *Future[[]listing.HeldEntry] {
	return Completed(c.HeldEntriesFor(uuid.Nil), nil)
}

// HeldEntriesFor returns held entries for recipient, or all of them when
// recipient is uuid.Nil. Oldest first.
func (c *Cached) HeldEntriesFor(recipient uuid.UUID) []listing.HeldEntry {
	c.mu.Lock()
	var out []listing.HeldEntry
	for _, h := range c.heldEntries {
		if recipient == uuid.Nil || h.Recipient == recipient {
			out = append(out, h)
		}
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (c *Cached) AddHeldPrice(ctx context.Context, h listing.HeldPrice) *Future[struct{}] {
	return serialize(c, "held-price:"+h.ID.String(), func() (struct{}, func() *Future[struct{}], func(), error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.heldPrices[h.ID]; ok {
			return struct{}{}, nil, nil, fmt.Errorf("held price %s: %w", h.ID, ErrDuplicate)
		}
		c.heldPrices[h.ID] = h
		return struct{}{},
			func() *Future[struct{}] { return c.inner.AddHeldPrice(ctx, h) },
			func() {
				c.mu.Lock()
				delete(c.heldPrices, h.ID)
				c.mu.Unlock()
			}, nil
	})
}

func (c *Cached) RemoveHeldPrice(ctx context.Context, id uuid.UUID) *Future[struct{}] {
	return serialize(c, "held-price:"+id.String(), func() (struct{}, func() *Future[struct{}], func(), error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		old, ok := c.heldPrices[id]
		if !ok {
			return struct{}{}, nil, nil, fmt.Errorf("held price %s: %w", id, ErrUnknownHeld)
		}
		delete(c.heldPrices, id)
		return struct{}{},
			func() *Future[struct{}] { return c.inner.RemoveHeldPrice(ctx, id) },
			func() {
				c.mu.Lock()
				c.heldPrices[id] = old
				c.mu.Unlock()
			}, nil
	})
}

func (c *Cached) HeldPrices(_ context.Context) *Future[[]listing.HeldPrice] {
	return Completed(c.HeldPricesFor(uuid.Nil), nil)
}

// HeldPricesFor returns held payments for recipient, or all of them when
// recipient is uuid.Nil. Oldest first.
func (c *Cached) HeldPricesFor(recipient uuid.UUID) []listing.HeldPrice {
	c.mu.Lock()
	var out []listing.HeldPrice
	for _, h := range c.heldPrices {
		if recipient == uuid.Nil || h.Recipient == recipient {
			out = append(out, h)
		}
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// --- Ignorers ---

func (c *Cached) AddIgnorer(ctx context.Context, player uuid.UUID) *Future[struct{}] {
	return c.setIgnoring(ctx, player, true)
}

func (c *Cached) RemoveIgnorer(ctx context.Context, player uuid.UUID) *Future[struct{}] {
	return c.setIgnoring(ctx, player, false)
}

func (c *Cached) setIgnoring(ctx context.Context, player uuid.UUID, on bool) *Future[struct{}] {
	return serialize(c, "ignorer:"+player.String(), func() (struct{}, func() *Future[struct{}], func(), error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, was := c.ignorers[player]
		if was == on {
			return struct{}{}, nil, nil, nil
		}
		apply := func(v bool) {
			if v {
				c.ignorers[player] = struct{}{}
			} else {
				delete(c.ignorers, player)
			}
		}
		apply(on)
		dispatch := func() *Future[struct{}] { return c.inner.AddIgnorer(ctx, player) }
		if !on {
			dispatch = func() *Future[struct{}] { return c.inner.RemoveIgnorer(ctx, player) }
		}
		return struct{}{}, dispatch, func() {
			c.mu.Lock()
			apply(was)
			c.mu.Unlock()
		}, nil
	})
}

func (c *Cached) Ignorers(_ context.Context) *Future[[]uuid.UUID] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uuid.UUID, 0, len(c.ignorers))
	for id := range c.ignorers {
		out = append(out, id)
	}
	return Completed(out, nil)
}

// IsIgnoring reports whether player has opted out of broadcasts.
func (c *Cached) IsIgnoring(player uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ignorers[player]
	return ok
}

// --- Quiescence points ---

// Purge clears listings (and cached logs when includeLogs is set) once all
// in-flight writes have finished.
func (c *Cached) Purge(ctx context.Context, includeLogs bool) *Future[struct{}] {
	return discard(c.PurgeListings(ctx, includeLogs))
}

// PurgeListings is Purge reporting the listings it removed, oldest first.
// Nothing can change them between the purge and the result.
func (c *Cached) PurgeListings(ctx context.Context, includeLogs bool) *Future[[]*listing.Listing] {
	out := newFuture[[]*listing.Listing]()
	go func() {
		c.phase.Lock()
		defer c.phase.Unlock()

		c.mu.Lock()
		oldListings, oldLogs := c.listings, c.logs
		c.listings = make(map[uuid.UUID]*listing.Listing)
		if includeLogs {
			c.logs = make(map[uuid.UUID][]model.Log)
		}
		c.mu.Unlock()

		if err := c.inner.Purge(ctx, includeLogs).Err(); err != nil {
			c.mu.Lock()
			c.listings, c.logs = oldListings, oldLogs
			c.mu.Unlock()
			metrics.Rollbacks.Inc()
			out.complete(nil, err)
			return
		}
		metrics.ActiveListings.Set(0)

		purged := make([]*listing.Listing, 0, len(oldListings))
		for _, l := range oldListings {
			purged = append(purged, l)
		}
		sort.Slice(purged, func(i, j int) bool { return purged[i].CreatedAt.Before(purged[j].CreatedAt) })
		out.complete(purged, nil)
	}()
	return out
}

// Save flushes the backing store once all in-flight writes have finished.
func (c *Cached) Save(ctx context.Context) *Future[struct{}] {
	out := newFuture[struct{}]()
	go func() {
		c.phase.Lock()
		defer c.phase.Unlock()
		out.complete(struct{}{}, c.inner.Save(ctx).Err())
	}()
	return out
}

func discard[T any](f *Future[T]) *Future[struct{}] {
	out := newFuture[struct{}]()
	go func() {
		_, err := f.Wait()
		out.complete(struct{}{}, err)
	}()
	return out
}
