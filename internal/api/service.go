// Package api exposes the market over HTTP for the game server bridge and
// admin tooling.
//
// All monetary values use shopspring/decimal, never float64.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/market"
	"github.com/atmx/gts-market/internal/model"
	"github.com/atmx/gts-market/internal/pricing"
	"github.com/atmx/gts-market/internal/storage"
	"github.com/atmx/gts-market/internal/text"
)

// Service handles market requests. The coordinator does all the
// serialization; handlers only translate.
type Service struct {
	market *market.Coordinator
	reg    *entry.Registry
	text   *text.Renderer
	now    func() time.Time
}

// NewService creates the HTTP service.
func NewService(m *market.Coordinator, reg *entry.Registry, r *text.Renderer) *Service {
	return &Service{market: m, reg: reg, text: r, now: time.Now}
}

// WithClock overrides the clock used by the admin sweep.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Routes mounts every market endpoint on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/listings", s.ListListings)
	r.Post("/listings", s.CreateListing)
	r.Get("/listings/{listingID}", s.GetListing)
	r.Post("/listings/{listingID}/purchase", s.Purchase)
	r.Post("/listings/{listingID}/bids", s.PlaceBid)
	r.Post("/listings/{listingID}/cancel", s.Cancel)

	r.Get("/players/{playerID}/logs", s.GetLogs)
	r.Get("/players/{playerID}/held", s.GetHeld)
	r.Post("/players/{playerID}/claim", s.Claim)
	r.Put("/players/{playerID}/ignore", s.SetIgnoring)

	r.Post("/admin/save", s.Save)
	r.Post("/admin/purge", s.Purge)
	r.Post("/admin/sweep", s.Sweep)
}

// --- Request/Response types ---

// PlayerRef identifies the acting player.
type PlayerRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (p PlayerRef) player() listing.Player { return listing.Player{ID: p.ID, Name: p.Name} }

// CreateListingRequest is the JSON body for POST /listings. Exactly one of
// Item and Creature is set.
type CreateListingRequest struct {
	Seller    PlayerRef        `json:"seller"`
	Item      *entry.Item      `json:"item,omitempty"`
	Creature  *entry.Creature  `json:"creature,omitempty"`
	Price     decimal.Decimal  `json:"price"`
	Increment *decimal.Decimal `json:"increment,omitempty"` // set for auctions
	Duration  string           `json:"duration,omitempty"`  // Go duration; "0" never expires
}

// BidRequest is the JSON body for POST /listings/{id}/bids.
type BidRequest struct {
	Bidder PlayerRef       `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
}

// IgnoreRequest is the JSON body for PUT /players/{id}/ignore.
type IgnoreRequest struct {
	Ignoring bool `json:"ignoring"`
}

// AuctionView is the public bidding state of an auction.
type AuctionView struct {
	Start      pricing.Price  `json:"start"`
	Increment  pricing.Price  `json:"increment"`
	MinimumBid pricing.Price  `json:"minimum_bid"`
	HighBid    *pricing.Price `json:"high_bid,omitempty"`
	HighBidder *uuid.UUID     `json:"high_bidder,omitempty"`
}

// ListingView is the JSON form of a listing.
type ListingView struct {
	ID        uuid.UUID      `json:"id"`
	Owner     uuid.UUID      `json:"owner"`
	OwnerName string         `json:"owner_name"`
	Kind      string         `json:"kind"`
	Name      string         `json:"name"`
	Specifics string         `json:"specifics"`
	Price     pricing.Price  `json:"price"`
	Auction   *AuctionView   `json:"auction,omitempty"`
	Status    listing.Status `json:"status"`
	Buyer     *uuid.UUID     `json:"buyer,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// ResultResponse is returned by every lifecycle operation.
type ResultResponse struct {
	Outcome string       `json:"outcome"`
	Listing *ListingView `json:"listing,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// HeldResponse lists undelivered entries and payments for a player.
type HeldResponse struct {
	Entries []HeldEntryView `json:"entries"`
	Prices  []HeldPriceView `json:"prices"`
}

type HeldEntryView struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type HeldPriceView struct {
	ID        uuid.UUID     `json:"id"`
	Amount    pricing.Price `json:"amount"`
	Reason    string        `json:"reason"`
	CreatedAt time.Time     `json:"created_at"`
}

func (s *Service) view(l *listing.Listing) *ListingView {
	if l == nil {
		return nil
	}
	v := &ListingView{
		ID:        l.ID,
		Owner:     l.Owner,
		OwnerName: l.OwnerName,
		Kind:      l.Entry.Kind(),
		Name:      l.Entry.Name(),
		Specifics: s.text.Specifics(l),
		Price:     l.CurrentPrice(),
		Status:    l.Status,
		Buyer:     l.Buyer,
		CreatedAt: l.CreatedAt,
		ExpiresAt: l.ExpiresAt,
	}
	if a := l.Auction; a != nil {
		v.Auction = &AuctionView{
			Start:      a.Start,
			Increment:  a.Increment,
			MinimumBid: a.MinimumBid(),
			HighBid:    a.HighBid,
			HighBidder: a.HighBidder,
		}
	}
	return v
}

// --- HTTP Handlers ---

// ListListings handles GET /api/v1/listings
// Optional filters: ?owner=<uuid>, ?kind=item|creature.
func (s *Service) ListListings(w http.ResponseWriter, r *http.Request) {
	var owner uuid.UUID
	if raw := r.URL.Query().Get("owner"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, "invalid owner", http.StatusBadRequest)
			return
		}
		owner = id
	}
	kind := r.URL.Query().Get("kind")

	views := []*ListingView{}
	for _, l := range s.market.Listings() {
		if owner != uuid.Nil && l.Owner != owner {
			continue
		}
		if kind != "" && l.Entry.Kind() != kind {
			continue
		}
		views = append(views, s.view(l))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetListing handles GET /api/v1/listings/{listingID}
func (s *Service) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "listingID")
	if !ok {
		return
	}
	l, found := s.market.Listing(id)
	if !found {
		writeError(w, "listing not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.view(l))
}

// CreateListing handles POST /api/v1/listings
func (s *Service) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	if req.Seller.ID == uuid.Nil {
		writeError(w, "seller.id is required", http.StatusBadRequest)
		return
	}
	var e entry.Entry
	switch {
	case req.Item != nil && req.Creature == nil:
		if req.Item.ID == "" {
			writeError(w, "item.id is required", http.StatusBadRequest)
			return
		}
		e = s.reg.NewItem(*req.Item)
	case req.Creature != nil && req.Item == nil:
		if req.Creature.UID == "" || req.Creature.Species == "" {
			writeError(w, "creature.uid and creature.species are required", http.StatusBadRequest)
			return
		}
		e = s.reg.NewCreature(*req.Creature)
	default:
		writeError(w, "exactly one of item or creature is required", http.StatusBadRequest)
		return
	}

	var opts []listing.Option
	if req.Increment != nil {
		inc, err := s.reg.Limits().Of(*req.Increment)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		opts = append(opts, listing.AsAuction(inc))
	}
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil || d < 0 {
			writeError(w, "invalid duration", http.StatusBadRequest)
			return
		}
		opts = append(opts, listing.ExpiresIn(d))
	}

	res := s.market.Create(r.Context(), req.Seller.player(), e, req.Price, opts...)
	if res.OK() {
		slog.Info("listing created", "id", res.Listing.ID, "owner", req.Seller.ID, "kind", e.Kind())
	}
	s.writeResult(w, res, http.StatusCreated)
}

// Purchase handles POST /api/v1/listings/{listingID}/purchase
func (s *Service) Purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "listingID")
	if !ok {
		return
	}
	var buyer PlayerRef
	if err := json.NewDecoder(r.Body).Decode(&buyer); err != nil || buyer.ID == uuid.Nil {
		writeError(w, "buyer id is required", http.StatusBadRequest)
		return
	}
	s.writeResult(w, s.market.Purchase(r.Context(), id, buyer.player()), http.StatusOK)
}

// PlaceBid handles POST /api/v1/listings/{listingID}/bids
func (s *Service) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "listingID")
	if !ok {
		return
	}
	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Bidder.ID == uuid.Nil {
		writeError(w, "bidder.id is required", http.StatusBadRequest)
		return
	}
	s.writeResult(w, s.market.PlaceBid(r.Context(), id, req.Bidder.player(), req.Amount), http.StatusOK)
}

// Cancel handles POST /api/v1/listings/{listingID}/cancel
func (s *Service) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "listingID")
	if !ok {
		return
	}
	var owner PlayerRef
	if err := json.NewDecoder(r.Body).Decode(&owner); err != nil || owner.ID == uuid.Nil {
		writeError(w, "owner id is required", http.StatusBadRequest)
		return
	}
	s.writeResult(w, s.market.Cancel(r.Context(), id, owner.ID), http.StatusOK)
}

// GetLogs handles GET /api/v1/players/{playerID}/logs
func (s *Service) GetLogs(w http.ResponseWriter, r *http.Request) {
	player, ok := pathID(w, r, "playerID")
	if !ok {
		return
	}
	logs, err := s.market.Logs(r.Context(), player)
	if err != nil {
		writeError(w, "failed to load logs", http.StatusServiceUnavailable)
		return
	}
	if logs == nil {
		logs = []model.Log{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// GetHeld handles GET /api/v1/players/{playerID}/held
func (s *Service) GetHeld(w http.ResponseWriter, r *http.Request) {
	player, ok := pathID(w, r, "playerID")
	if !ok {
		return
	}
	entries, prices := s.market.Held(player)
	resp := HeldResponse{Entries: []HeldEntryView{}, Prices: []HeldPriceView{}}
	for _, h := range entries {
		resp.Entries = append(resp.Entries, HeldEntryView{
			ID: h.ID, Kind: h.Entry.Kind(), Name: h.Entry.Name(), Reason: h.Reason, CreatedAt: h.CreatedAt,
		})
	}
	for _, h := range prices {
		resp.Prices = append(resp.Prices, HeldPriceView{
			ID: h.ID, Amount: h.Amount, Reason: h.Reason, CreatedAt: h.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Claim handles POST /api/v1/players/{playerID}/claim
// Called by the game server when a player joins.
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	player, ok := pathID(w, r, "playerID")
	if !ok {
		return
	}
	n, err := s.market.ClaimHeld(r.Context(), player)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"delivered": n, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
}

// SetIgnoring handles PUT /api/v1/players/{playerID}/ignore
func (s *Service) SetIgnoring(w http.ResponseWriter, r *http.Request) {
	player, ok := pathID(w, r, "playerID")
	if !ok {
		return
	}
	var req IgnoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.market.SetIgnoring(r.Context(), player, req.Ignoring); err != nil {
		writeError(w, "failed to update broadcast preference", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ignoring": s.market.IsIgnoring(player)})
}

// Save handles POST /api/v1/admin/save
func (s *Service) Save(w http.ResponseWriter, r *http.Request) {
	if err := s.market.Save(r.Context()); err != nil {
		writeError(w, "save failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// Purge handles POST /api/v1/admin/purge?logs=true
func (s *Service) Purge(w http.ResponseWriter, r *http.Request) {
	logs, _ := strconv.ParseBool(r.URL.Query().Get("logs"))
	if err := s.market.Purge(r.Context(), logs); err != nil {
		writeError(w, "purge failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

// Sweep handles POST /api/v1/admin/sweep
// Runs one expiry pass immediately.
func (s *Service) Sweep(w http.ResponseWriter, r *http.Request) {
	results := s.market.ExpireSweep(r.Context(), s.now())
	out := make([]ResultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, s.result(res))
	}
	writeJSON(w, http.StatusOK, out)
}

// --- helpers ---

func (s *Service) result(res market.Result) ResultResponse {
	out := ResultResponse{Outcome: res.Outcome.String(), Listing: s.view(res.Listing)}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (s *Service) writeResult(w http.ResponseWriter, res market.Result, okStatus int) {
	writeJSON(w, statusFor(res, okStatus), s.result(res))
}

// statusFor maps an outcome to an HTTP status.
func statusFor(res market.Result, okStatus int) int {
	switch res.Outcome {
	case market.Success:
		return okStatus
	case market.Failed:
		return http.StatusServiceUnavailable
	}
	switch {
	case errors.Is(res.Err, market.ErrListingNotFound), errors.Is(res.Err, storage.ErrUnknownListing):
		return http.StatusNotFound
	case errors.Is(res.Err, pricing.ErrPricing), errors.Is(res.Err, listing.ErrInvalid):
		return http.StatusUnprocessableEntity
	}
	return http.StatusConflict
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, "invalid "+param, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
