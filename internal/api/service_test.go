package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/api"
	"github.com/atmx/gts-market/internal/config"
	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/game"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/market"
	"github.com/atmx/gts-market/internal/pricing"
	"github.com/atmx/gts-market/internal/storage"
	"github.com/atmx/gts-market/internal/store"
	"github.com/atmx/gts-market/internal/text"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type testEnv struct {
	router chi.Router
	inv    *game.Inventory
	bank   *game.Bank
	seller uuid.UUID
	buyer  uuid.UUID
}

// newTestEnv wires a coordinator over the in-memory backend behind a chi router.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	lim := pricing.Limits{Max: d(1_000_000), Symbol: "$"}
	inv := game.NewInventory(0)
	bank := game.NewBank()
	reg := entry.NewRegistry(inv, entry.Rules{ItemBase: d(1)}, lim)

	a := storage.NewAsync(store.NewMemoryStore(), listing.Codec{Registry: reg}, storage.NewPool(2, 32))
	t.Cleanup(func() { _ = a.Close() })
	cached := storage.NewCached(a)
	if err := cached.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	renderer := text.NewRenderer(config.Default())
	m := market.New(cached, bank, renderer, nil, lim, market.Options{
		DefaultDuration: time.Hour,
		Clock:           func() time.Time { return t0 },
	})
	svc := api.NewService(m, reg, renderer).WithClock(func() time.Time { return t0.Add(2 * time.Hour) })

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return &testEnv{router: r, inv: inv, bank: bank, seller: uuid.New(), buyer: uuid.New()}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type listingBody struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Status  string          `json:"status"`
	Auction *struct {
		MinimumBid decimal.Decimal `json:"minimum_bid"`
		HighBidder *uuid.UUID      `json:"high_bidder"`
	} `json:"auction"`
}

type resultBody struct {
	Outcome string       `json:"outcome"`
	Listing *listingBody `json:"listing"`
	Error   string       `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// seed lists an item for the seller through the API.
func (e *testEnv) seed(t *testing.T, id string, price int64, increment *decimal.Decimal) uuid.UUID {
	t.Helper()
	e.inv.Grant(e.seller, entry.KindItem, id, nil)
	w := e.do(t, http.MethodPost, "/api/v1/listings", api.CreateListingRequest{
		Seller:    api.PlayerRef{ID: e.seller, Name: "Sam"},
		Item:      &entry.Item{ID: id, Title: id},
		Price:     d(price),
		Increment: increment,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[resultBody](t, w).Listing.ID
}

func TestCreateListing(t *testing.T) {
	e := newTestEnv(t)
	id := e.seed(t, "diamond", 100, nil)

	w := e.do(t, http.MethodGet, "/api/v1/listings/"+id.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := decode[listingBody](t, w)
	if got.Name != "diamond" || !got.Price.Equal(d(100)) || got.Status != "ACTIVE" {
		t.Errorf("listing = %+v", got)
	}
	if e.inv.Has(e.seller, entry.KindItem, "diamond") {
		t.Error("item should be in escrow")
	}
}

func TestCreateListing_Validation(t *testing.T) {
	e := newTestEnv(t)
	seller := api.PlayerRef{ID: e.seller, Name: "Sam"}

	tests := []struct {
		name string
		body any
		want int
	}{
		{"malformed", "not an object", http.StatusBadRequest},
		{"no seller", api.CreateListingRequest{Item: &entry.Item{ID: "a", Title: "a"}, Price: d(5)}, http.StatusBadRequest},
		{"no entry", api.CreateListingRequest{Seller: seller, Price: d(5)}, http.StatusBadRequest},
		{"both entries", api.CreateListingRequest{
			Seller: seller, Item: &entry.Item{ID: "a"}, Creature: &entry.Creature{UID: "c", Species: "Eevee"}, Price: d(5),
		}, http.StatusBadRequest},
		{"bad duration", api.CreateListingRequest{Seller: seller, Item: &entry.Item{ID: "a"}, Price: d(5), Duration: "soon"}, http.StatusBadRequest},
		{"below minimum", api.CreateListingRequest{Seller: seller, Item: &entry.Item{ID: "a", Quantity: 10}, Price: d(5)}, http.StatusUnprocessableEntity},
		{"not in inventory", api.CreateListingRequest{Seller: seller, Item: &entry.Item{ID: "ghost"}, Price: d(5)}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/v1/listings", tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestListListings_Filters(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t, "a", 10, nil)
	e.seed(t, "b", 10, nil)

	all := decode[[]listingBody](t, e.do(t, http.MethodGet, "/api/v1/listings", nil))
	if len(all) != 2 {
		t.Errorf("expected 2 listings, got %d", len(all))
	}
	none := decode[[]listingBody](t, e.do(t, http.MethodGet, "/api/v1/listings?owner="+e.buyer.String(), nil))
	if len(none) != 0 {
		t.Errorf("expected no listings for buyer, got %d", len(none))
	}
	creatures := decode[[]listingBody](t, e.do(t, http.MethodGet, "/api/v1/listings?kind=creature", nil))
	if len(creatures) != 0 {
		t.Errorf("expected no creature listings, got %d", len(creatures))
	}
	if w := e.do(t, http.MethodGet, "/api/v1/listings?owner=nope", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid owner, got %d", w.Code)
	}
}

func TestGetListing_NotFound(t *testing.T) {
	e := newTestEnv(t)
	if w := e.do(t, http.MethodGet, "/api/v1/listings/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/listings/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestPurchase(t *testing.T) {
	e := newTestEnv(t)
	id := e.seed(t, "diamond", 100, nil)
	path := "/api/v1/listings/" + id.String() + "/purchase"
	buyer := api.PlayerRef{ID: e.buyer, Name: "Alice"}

	w := e.do(t, http.MethodPost, path, buyer)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 without funds, got %d: %s", w.Code, w.Body.String())
	}
	if res := decode[resultBody](t, w); res.Outcome != "rejected" {
		t.Errorf("outcome = %s", res.Outcome)
	}

	e.bank.SetBalance(e.buyer, d(150))
	w = e.do(t, http.MethodPost, path, buyer)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[resultBody](t, w)
	if res.Outcome != "success" || res.Listing.Status != "SOLD" {
		t.Errorf("result = %+v", res)
	}
	if !e.inv.Has(e.buyer, entry.KindItem, "diamond") {
		t.Error("buyer should hold the item")
	}

	// Already sold and removed.
	if w := e.do(t, http.MethodPost, path, buyer); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for settled listing, got %d", w.Code)
	}

	logs := decode[[]map[string]any](t, e.do(t, http.MethodGet, "/api/v1/players/"+e.buyer.String()+"/logs", nil))
	if len(logs) != 1 || logs[0]["action"] != "purchase" {
		t.Errorf("buyer logs = %v", logs)
	}
}

func TestPlaceBidAndSweep(t *testing.T) {
	e := newTestEnv(t)
	inc := d(5)
	id := e.seed(t, "diamond", 50, &inc)
	e.bank.SetBalance(e.buyer, d(100))

	w := e.do(t, http.MethodPost, "/api/v1/listings/"+id.String()+"/bids", api.BidRequest{
		Bidder: api.PlayerRef{ID: e.buyer, Name: "Alice"},
		Amount: d(50),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[resultBody](t, w)
	if a := res.Listing.Auction; a == nil || *a.HighBidder != e.buyer || !a.MinimumBid.Equal(d(55)) {
		t.Errorf("auction = %+v", a)
	}

	w = e.do(t, http.MethodPost, "/api/v1/listings/"+id.String()+"/bids", api.BidRequest{
		Bidder: api.PlayerRef{ID: e.buyer, Name: "Alice"},
		Amount: d(60),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for self bid, got %d", w.Code)
	}

	swept := decode[[]resultBody](t, e.do(t, http.MethodPost, "/api/v1/admin/sweep", nil))
	if len(swept) != 1 || swept[0].Listing.Status != "SOLD" {
		t.Fatalf("sweep = %+v", swept)
	}
	if !e.bank.Balance(e.seller).Equal(d(50)) {
		t.Errorf("seller balance = %s", e.bank.Balance(e.seller))
	}
}

func TestCancel(t *testing.T) {
	e := newTestEnv(t)
	id := e.seed(t, "diamond", 100, nil)
	path := "/api/v1/listings/" + id.String() + "/cancel"

	if w := e.do(t, http.MethodPost, path, api.PlayerRef{ID: e.buyer}); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for non-owner, got %d", w.Code)
	}
	w := e.do(t, http.MethodPost, path, api.PlayerRef{ID: e.seller})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if res := decode[resultBody](t, w); res.Listing.Status != "CANCELLED" {
		t.Errorf("status = %s", res.Listing.Status)
	}
	if !e.inv.Has(e.seller, entry.KindItem, "diamond") {
		t.Error("item should be back with the seller")
	}
}

func TestHeldAndClaim(t *testing.T) {
	e := newTestEnv(t)
	id := e.seed(t, "diamond", 100, nil)
	e.bank.SetBalance(e.buyer, d(100))
	e.inv.SetOnline(e.buyer, false)

	if w := e.do(t, http.MethodPost, "/api/v1/listings/"+id.String()+"/purchase", api.PlayerRef{ID: e.buyer}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	held := decode[api.HeldResponse](t, e.do(t, http.MethodGet, "/api/v1/players/"+e.buyer.String()+"/held", nil))
	if len(held.Entries) != 1 || held.Entries[0].Name != "diamond" {
		t.Fatalf("held = %+v", held)
	}

	e.inv.SetOnline(e.buyer, true)
	claim := decode[map[string]int](t, e.do(t, http.MethodPost, "/api/v1/players/"+e.buyer.String()+"/claim", nil))
	if claim["delivered"] != 1 {
		t.Errorf("claim = %v", claim)
	}
	if !e.inv.Has(e.buyer, entry.KindItem, "diamond") {
		t.Error("held item not delivered")
	}
}

func TestSetIgnoring(t *testing.T) {
	e := newTestEnv(t)
	path := "/api/v1/players/" + e.buyer.String() + "/ignore"

	w := e.do(t, http.MethodPut, path, api.IgnoreRequest{Ignoring: true})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[map[string]bool](t, w); !got["ignoring"] {
		t.Errorf("got %v", got)
	}
	if w := e.do(t, http.MethodPut, path, "bad"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAdminSaveAndPurge(t *testing.T) {
	e := newTestEnv(t)
	e.seed(t, "diamond", 100, nil)

	if w := e.do(t, http.MethodPost, "/api/v1/admin/save", nil); w.Code != http.StatusOK {
		t.Errorf("save: expected 200, got %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/api/v1/admin/purge?logs=true", nil); w.Code != http.StatusOK {
		t.Errorf("purge: expected 200, got %d", w.Code)
	}
	if all := decode[[]listingBody](t, e.do(t, http.MethodGet, "/api/v1/listings", nil)); len(all) != 0 {
		t.Errorf("expected empty market after purge, got %d", len(all))
	}
}
