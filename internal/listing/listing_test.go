package listing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/game"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/pricing"
)

var t0 = time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return t0 }

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type env struct {
	reg    *entry.Registry
	limits pricing.Limits
	seller listing.Player
}

func newEnv() env {
	lim := pricing.Limits{Max: d(1_000_000), Symbol: "$"}
	reg := entry.NewRegistry(game.NewInventory(0), entry.Rules{ItemBase: d(10), CreatureBase: d(100)}, lim)
	return env{reg: reg, limits: lim, seller: listing.Player{ID: uuid.New(), Name: "seller"}}
}

func (e env) price(f float64) pricing.Price {
	p, err := e.limits.Of(d(f))
	if err != nil {
		panic(err)
	}
	return p
}

func (e env) fixed(t *testing.T, price float64) *listing.Listing {
	t.Helper()
	l, err := listing.New(e.seller, e.reg.NewItem(entry.Item{ID: "diamond", Title: "Diamond"}), e.price(price),
		listing.WithClock(clock), listing.ExpiresIn(time.Hour))
	if err != nil {
		t.Fatalf("build fixed listing: %v", err)
	}
	return l
}

func (e env) auction(t *testing.T, start, inc float64) *listing.Listing {
	t.Helper()
	l, err := listing.New(e.seller, e.reg.NewItem(entry.Item{ID: "diamond", Title: "Diamond"}), e.price(start),
		listing.AsAuction(e.price(inc)), listing.WithClock(clock), listing.ExpiresIn(time.Hour))
	if err != nil {
		t.Fatalf("build auction: %v", err)
	}
	return l
}

func player(name string) listing.Player {
	return listing.Player{ID: uuid.New(), Name: name}
}

// --- Construction ---

func TestNew_MinimumPrice(t *testing.T) {
	e := newEnv()
	item := entry.Item{ID: "diamond", Title: "Diamond", Quantity: 5} // min 50

	for _, price := range []float64{50, 51, 10_000} {
		if _, err := listing.New(e.seller, e.reg.NewItem(item), e.price(price)); err != nil {
			t.Errorf("price %v >= minimum should build, got %v", price, err)
		}
	}

	_, err := listing.New(e.seller, e.reg.NewItem(item), e.price(49.99))
	var pe *pricing.PricingError
	if !errors.As(err, &pe) || pe.Reason != pricing.ReasonBelowMinimum {
		t.Fatalf("expected BELOW_MINIMUM, got %v", err)
	}
	if !pe.Limit.Equal(d(50)) {
		t.Errorf("reported minimum = %s, want 50", pe.Limit)
	}
}

func TestNew_AuctionStartChecksMinimum(t *testing.T) {
	e := newEnv()
	_, err := listing.New(e.seller, e.reg.NewItem(entry.Item{ID: "x", Title: "X", Quantity: 2}), e.price(5),
		listing.AsAuction(e.price(1)))
	if !errors.Is(err, pricing.ErrPricing) {
		t.Fatalf("expected pricing error for auction start below minimum, got %v", err)
	}
}

func TestNew_ExactlyOnePricingMode(t *testing.T) {
	e := newEnv()
	fixed := e.fixed(t, 100)
	if fixed.Price == nil || fixed.Auction != nil {
		t.Error("fixed listing must carry Price only")
	}
	auc := e.auction(t, 100, 10)
	if auc.Price != nil || auc.Auction == nil {
		t.Error("auction listing must carry AuctionData only")
	}
	if !auc.Auction.Start.Amount().Equal(d(100)) {
		t.Errorf("auction start = %s, want 100", auc.Auction.Start.Amount())
	}
}

func TestNew_ExpirationMustFollowCreation(t *testing.T) {
	e := newEnv()
	_, err := listing.New(e.seller, e.reg.NewItem(entry.Item{ID: "x", Title: "X"}), e.price(100),
		listing.WithClock(clock), listing.ExpiresAt(t0))
	if !errors.Is(err, listing.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for expiration == creation, got %v", err)
	}

	l, err := listing.New(e.seller, e.reg.NewItem(entry.Item{ID: "x", Title: "X"}), e.price(100), listing.WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	if l.Expires() {
		t.Error("listing without expiration option should not expire")
	}
}

func TestNew_MissingParts(t *testing.T) {
	e := newEnv()
	if _, err := listing.New(listing.Player{}, e.reg.NewItem(entry.Item{ID: "x"}), e.price(100)); !errors.Is(err, listing.ErrInvalid) {
		t.Errorf("missing owner: got %v", err)
	}
	if _, err := listing.New(e.seller, nil, e.price(100)); !errors.Is(err, listing.ErrInvalid) {
		t.Errorf("missing entry: got %v", err)
	}
}

// --- Bidding ---

func TestBid_Sequence(t *testing.T) {
	e := newEnv()
	l := e.auction(t, 100, 10)
	now := t0.Add(time.Minute)

	bidders := []listing.Player{player("a"), player("b"), player("c"), player("a")}
	amounts := []float64{100, 110, 125, 135}
	for i, amount := range amounts {
		next, err := l.Bid(now, bidders[i], e.price(amount))
		if err != nil {
			t.Fatalf("bid %d (%v) rejected: %v", i, amount, err)
		}
		l = next
	}

	if !l.Auction.HighBid.Amount().Equal(d(135)) {
		t.Errorf("high bid = %s, want 135", l.Auction.HighBid.Amount())
	}
	if *l.Auction.HighBidder != bidders[3].ID {
		t.Error("high bidder should be the last accepted bidder")
	}
}

func TestBid_BelowIncrementRejected(t *testing.T) {
	e := newEnv()
	l := e.auction(t, 100, 10)
	now := t0.Add(time.Minute)

	l, err := l.Bid(now, player("a"), e.price(100))
	if err != nil {
		t.Fatal(err)
	}

	for _, amount := range []float64{90, 100, 109.99} {
		if _, err := l.Bid(now, player("b"), e.price(amount)); !errors.Is(err, listing.ErrBidTooLow) {
			t.Errorf("bid %v: expected ErrBidTooLow, got %v", amount, err)
		}
	}
	if !l.Auction.HighBid.Amount().Equal(d(100)) {
		t.Error("rejected bids must leave auction state unchanged")
	}
}

func TestBid_ZeroIncrementStillRequiresRaise(t *testing.T) {
	e := newEnv()
	l := e.auction(t, 100, 0)
	now := t0.Add(time.Minute)

	l, _ = l.Bid(now, player("a"), e.price(100))
	if _, err := l.Bid(now, player("b"), e.price(100)); !errors.Is(err, listing.ErrBidTooLow) {
		t.Errorf("equal bid must be rejected, got %v", err)
	}
}

func TestBid_FirstBidBelowStart(t *testing.T) {
	e := newEnv()
	l := e.auction(t, 100, 10)
	if _, err := l.Bid(t0.Add(time.Minute), player("a"), e.price(99)); !errors.Is(err, listing.ErrBidTooLow) {
		t.Errorf("expected ErrBidTooLow, got %v", err)
	}
}

func TestBid_SelfBidRejected(t *testing.T) {
	e := newEnv()
	l := e.auction(t, 100, 10)
	now := t0.Add(time.Minute)
	a := player("a")

	l, err := l.Bid(now, a, e.price(100))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Bid(now, a, e.price(500)); !errors.Is(err, listing.ErrSelfBid) {
		t.Errorf("expected ErrSelfBid, got %v", err)
	}
	if _, err := l.Bid(now, e.seller, e.price(500)); !errors.Is(err, listing.ErrOwnListing) {
		t.Errorf("expected ErrOwnListing, got %v", err)
	}
}

func TestBid_ExpiredOrFixed(t *testing.T) {
	e := newEnv()
	if _, err := e.auction(t, 100, 10).Bid(t0.Add(2*time.Hour), player("a"), e.price(200)); !errors.Is(err, listing.ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
	if _, err := e.fixed(t, 100).Bid(t0, player("a"), e.price(200)); !errors.Is(err, listing.ErrNotAuction) {
		t.Errorf("expected ErrNotAuction, got %v", err)
	}
}

// --- Purchase ---

func TestPurchase(t *testing.T) {
	e := newEnv()
	l := e.fixed(t, 100)
	buyer := player("buyer")

	sold, err := l.Purchase(t0.Add(time.Minute), buyer)
	if err != nil {
		t.Fatal(err)
	}
	if sold.Status != listing.StatusSold || *sold.Buyer != buyer.ID {
		t.Errorf("expected SOLD to buyer, got %s", sold.Status)
	}
	if l.Status != listing.StatusActive {
		t.Error("Purchase must not mutate the receiver")
	}

	if _, err := sold.Purchase(t0.Add(time.Minute), player("late")); !errors.Is(err, listing.ErrNotActive) {
		t.Errorf("purchase of SOLD listing: expected ErrNotActive, got %v", err)
	}
	if !errors.Is(listing.ErrNotActive, listing.ErrConflict) {
		t.Error("ErrNotActive should be a conflict")
	}
}

func TestPurchase_Rejections(t *testing.T) {
	e := newEnv()
	l := e.fixed(t, 100)

	if _, err := l.Purchase(t0.Add(time.Hour), player("b")); !errors.Is(err, listing.ErrExpired) {
		t.Errorf("expected ErrExpired at expiration instant, got %v", err)
	}
	if _, err := l.Purchase(t0, e.seller); !errors.Is(err, listing.ErrOwnListing) {
		t.Errorf("expected ErrOwnListing, got %v", err)
	}
	if _, err := e.auction(t, 100, 5).Purchase(t0, player("b")); !errors.Is(err, listing.ErrIsAuction) {
		t.Errorf("expected ErrIsAuction, got %v", err)
	}

	expired, err := l.Expire(t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := expired.Purchase(t0, player("b")); !errors.Is(err, listing.ErrNotActive) {
		t.Errorf("purchase of EXPIRED listing: expected ErrNotActive, got %v", err)
	}
}

// --- Expiration / cancel ---

func TestExpire(t *testing.T) {
	e := newEnv()
	after := t0.Add(time.Hour + time.Second)

	if _, err := e.fixed(t, 100).Expire(t0.Add(time.Minute)); !errors.Is(err, listing.ErrNotExpired) {
		t.Errorf("expected ErrNotExpired, got %v", err)
	}

	exp, err := e.fixed(t, 100).Expire(after)
	if err != nil || exp.Status != listing.StatusExpired {
		t.Fatalf("fixed listing should expire, got %v %v", exp, err)
	}
	ret, err := exp.Return()
	if err != nil || ret.Status != listing.StatusReturned {
		t.Fatalf("expired listing should return, got %v", err)
	}

	noBids, err := e.auction(t, 100, 10).Expire(after)
	if err != nil || noBids.Status != listing.StatusExpired {
		t.Fatalf("auction without bids should expire, got %v", err)
	}

	x := player("x")
	withBid, _ := e.auction(t, 50, 10).Bid(t0, x, e.price(50))
	sold, err := withBid.Expire(after)
	if err != nil {
		t.Fatal(err)
	}
	if sold.Status != listing.StatusSold || *sold.Buyer != x.ID {
		t.Errorf("auction with bids should sell to high bidder, got %s", sold.Status)
	}
}

func TestCancel(t *testing.T) {
	e := newEnv()
	l := e.fixed(t, 100)

	if _, err := l.Cancel(uuid.New()); !errors.Is(err, listing.ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	c, err := l.Cancel(e.seller.ID)
	if err != nil || c.Status != listing.StatusCancelled {
		t.Fatalf("owner cancel failed: %v", err)
	}
	if _, err := c.Cancel(e.seller.ID); !errors.Is(err, listing.ErrNotActive) {
		t.Errorf("double cancel: expected ErrNotActive, got %v", err)
	}

	withBid, _ := e.auction(t, 100, 10).Bid(t0, player("x"), e.price(100))
	if _, err := withBid.Cancel(e.seller.ID); !errors.Is(err, listing.ErrHasBids) {
		t.Errorf("expected ErrHasBids, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to listing.Status
		ok       bool
	}{
		{listing.StatusActive, listing.StatusSold, true},
		{listing.StatusActive, listing.StatusExpired, true},
		{listing.StatusActive, listing.StatusCancelled, true},
		{listing.StatusActive, listing.StatusReturned, false},
		{listing.StatusExpired, listing.StatusReturned, true},
		{listing.StatusSold, listing.StatusActive, false},
		{listing.StatusReturned, listing.StatusActive, false},
		{listing.StatusCancelled, listing.StatusReturned, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
	for _, s := range []listing.Status{listing.StatusSold, listing.StatusReturned, listing.StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestSettle(t *testing.T) {
	e := newEnv()
	l := e.fixed(t, 100)

	if _, err := l.Settle(); !errors.Is(err, listing.ErrInvalidTransition) {
		t.Errorf("settle active: expected ErrInvalidTransition, got %v", err)
	}
	exp, _ := l.Expire(t0.Add(2 * time.Hour))
	if _, err := exp.Settle(); !errors.Is(err, listing.ErrInvalidTransition) {
		t.Errorf("settle expired: expected ErrInvalidTransition, got %v", err)
	}

	sold, err := l.Purchase(t0, player("x"))
	if err != nil {
		t.Fatal(err)
	}
	settled, err := sold.Settle()
	if err != nil || !settled.Settled || settled.Status != listing.StatusSold {
		t.Fatalf("settle sold: %+v %v", settled, err)
	}
	if sold.Settled {
		t.Error("Settle changed the receiver")
	}

	rec, err := listing.Codec{Registry: e.reg}.ListingToRecord(settled)
	if err != nil || !rec.Settled {
		t.Errorf("settled marker not encoded: %+v %v", rec, err)
	}
}

// --- Records ---

func TestCodec_ListingRoundTrip(t *testing.T) {
	e := newEnv()
	codec := listing.Codec{Registry: e.reg}
	l, _ := e.auction(t, 100, 10).Bid(t0, player("x"), e.price(120))

	rec, err := codec.ListingToRecord(l)
	if err != nil {
		t.Fatal(err)
	}
	got, err := codec.ListingFromRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != l.ID || got.Status != l.Status || !got.ExpiresAt.Equal(*l.ExpiresAt) {
		t.Error("identity, status or expiration lost in round trip")
	}
	if !got.Auction.HighBid.Amount().Equal(d(120)) || *got.Auction.HighBidder != *l.Auction.HighBidder {
		t.Error("auction state lost in round trip")
	}
	if got.Entry.Name() != "Diamond" {
		t.Errorf("entry name = %q", got.Entry.Name())
	}
}
