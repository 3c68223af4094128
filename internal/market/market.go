// Package market coordinates every listing lifecycle operation. The
// Coordinator is the only writer of market state: it validates against the
// in-memory snapshot, commits through the cached storage, then moves
// entries and money, falling back to held deliveries when a recipient
// cannot receive them.
package market

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/metrics"
	"github.com/atmx/gts-market/internal/notify"
	"github.com/atmx/gts-market/internal/pricing"
	"github.com/atmx/gts-market/internal/storage"
	"github.com/atmx/gts-market/internal/text"
)

// ErrRejected is matched by every market-level rejection.
var ErrRejected = errors.New("market: rejected")

type rejection string

func (r rejection) Error() string        { return "market: " + string(r) }
func (r rejection) Is(target error) bool { return target == ErrRejected }

var (
	ErrListingNotFound   error = rejection("listing not found")
	ErrInsufficientFunds error = rejection("insufficient funds")
	ErrMaxListings       error = rejection("too many active listings")
	ErrTaxUnaffordable   error = rejection("cannot afford listing tax")
	ErrEntryUnavailable  error = rejection("entry cannot be taken from its owner")
)

// Outcome classifies a Result.
type Outcome int

const (
	Success Outcome = iota
	// Rejected means validation or a domain conflict; nothing changed.
	Rejected
	// Failed means storage failed; the transition was rolled back and the
	// caller may retry.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result is returned by every coordinator operation.
type Result struct {
	Outcome Outcome
	Listing *listing.Listing
	Err     error
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool { return r.Outcome == Success }

// Classify maps an error to the outcome it implies.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrRejected),
		errors.Is(err, listing.ErrConflict),
		errors.Is(err, listing.ErrInvalid),
		errors.Is(err, pricing.ErrPricing),
		errors.Is(err, storage.ErrUnknownListing),
		errors.Is(err, storage.ErrDuplicate):
		return Rejected
	}
	return Failed
}

// Store is the storage the coordinator needs: the Storage port plus the
// synchronous memory reads and in-slot mutation of storage.Cached.
type Store interface {
	storage.Storage
	Listing(id uuid.UUID) (*listing.Listing, bool)
	Snapshot() []*listing.Listing
	MutateListing(ctx context.Context, id uuid.UUID, fn storage.Mutation) *storage.Future[*listing.Listing]
	PurgeListings(ctx context.Context, includeLogs bool) *storage.Future[[]*listing.Listing]
	HeldEntriesFor(recipient uuid.UUID) []listing.HeldEntry
	HeldPricesFor(recipient uuid.UUID) []listing.HeldPrice
	IsIgnoring(player uuid.UUID) bool
}

var _ Store = (*storage.Cached)(nil)

// Bank is the game economy. Deposit returns false when the recipient
// cannot be paid right now.
type Bank interface {
	Withdraw(player uuid.UUID, amount decimal.Decimal) bool
	Deposit(player uuid.UUID, amount decimal.Decimal) bool
}

// Options tunes the coordinator.
type Options struct {
	MaxListings     int             // per player; 0 = unlimited
	TaxRate         decimal.Decimal // fraction of the listing price; 0 = off
	DefaultDuration time.Duration   // applied by Create when no expiry is given
	Clock           func() time.Time
}

// Coordinator runs the market.
type Coordinator struct {
	store  Store
	bank   Bank
	text   *text.Renderer
	notify notify.Notifier
	limits pricing.Limits
	opts   Options

	owners   [ownerStripes]sync.Mutex
	settling *settlements
}

const ownerStripes = 64

// New creates a coordinator. n may be nil.
func New(st Store, bank Bank, r *text.Renderer, n notify.Notifier, limits pricing.Limits, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if n == nil {
		n = notify.Discard{}
	}
	return &Coordinator{
		store:    st,
		bank:     bank,
		text:     r,
		notify:   n,
		limits:   limits,
		opts:     opts,
		settling: newSettlements(),
	}
}

func (c *Coordinator) now() time.Time { return c.opts.Clock().UTC() }

// ownerLock serializes deposits per seller so the listing cap holds.
// Sellers share a fixed set of stripes.
func (c *Coordinator) ownerLock(owner uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(owner[:])
	return &c.owners[h.Sum32()%ownerStripes]
}

func (c *Coordinator) finish(op string, res Result) Result {
	metrics.OperationsTotal.WithLabelValues(op, res.Outcome.String()).Inc()
	switch res.Outcome {
	case Rejected:
		slog.Debug("market operation rejected", "op", op, "error", res.Err)
	case Failed:
		slog.Error("market operation failed", "op", op, "error", res.Err)
	}
	return res
}

func success(l *listing.Listing) Result { return Result{Outcome: Success, Listing: l} }

func failure(err error, l *listing.Listing) Result {
	return Result{Outcome: Classify(err), Listing: l, Err: err}
}

// Save flushes the market. Failures are logged and returned, never fatal.
func (c *Coordinator) Save(ctx context.Context) error {
	start := time.Now()
	if _, err := c.store.Save(ctx).Await(ctx); err != nil {
		slog.Error("market save failed", "error", err)
		return err
	}
	slog.Info("market saved", "listings", len(c.store.Snapshot()), "took", time.Since(start))
	return nil
}

// Purge removes every listing, and every log when includeLogs is set.
// Entries inside purged listings are not returned, but bids reserved on
// open auctions go back to their bidders.
func (c *Coordinator) Purge(ctx context.Context, includeLogs bool) error {
	purged, err := c.store.PurgeListings(ctx, includeLogs).Await(ctx)
	if err != nil {
		slog.Error("market purge failed", "error", err)
		return err
	}
	refunds := 0
	for _, l := range purged {
		if l.Status != listing.StatusActive || !l.IsAuction() || !l.Auction.HasBids() {
			continue
		}
		bid := *l.Auction.HighBid
		c.pay(ctx, *l.Auction.HighBidder, bid, "purge refund", l)
		refunds++
	}
	slog.Warn("market purged", "include_logs", includeLogs, "listings", len(purged), "refunds", refunds)
	return nil
}

// Listings returns the active market, oldest first.
func (c *Coordinator) Listings() []*listing.Listing {
	all := c.store.Snapshot()
	out := all[:0]
	for _, l := range all {
		if l.Status == listing.StatusActive {
			out = append(out, l)
		}
	}
	return out
}

// Listing returns one listing from memory.
func (c *Coordinator) Listing(id uuid.UUID) (*listing.Listing, bool) {
	return c.store.Listing(id)
}

func (c *Coordinator) activeCount(owner uuid.UUID) int {
	n := 0
	for _, l := range c.store.Snapshot() {
		if l.Owner == owner && l.Status == listing.StatusActive {
			n++
		}
	}
	return n
}
