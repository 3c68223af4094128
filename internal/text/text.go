// Package text renders configured message templates. Templates use
// {{token}} placeholders; unknown tokens are left in place so a typo in a
// config file shows up in chat instead of vanishing.
package text

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasttemplate"

	"github.com/atmx/gts-market/internal/config"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/pricing"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

// Source supplies the template lines for a message key.
type Source interface {
	Message(key string) []string
}

// Vars is the variable bag for one rendering. Zero fields are omitted.
type Vars struct {
	Player      string
	Listing     *listing.Listing
	Price       *pricing.Price // overrides the listing's current price
	Tax         *pricing.Price
	MinPrice    *pricing.Price
	MaxListings int
	Count       int
	Extra       map[string]string
}

// Renderer turns message keys into chat lines.
type Renderer struct {
	src Source
	now func() time.Time
}

// NewRenderer creates a renderer over src.
func NewRenderer(src Source) *Renderer {
	return &Renderer{src: src, now: time.Now}
}

// WithClock returns a copy of r that computes time_left against now.
func (r *Renderer) WithClock(now func() time.Time) *Renderer {
	c := *r
	c.now = now
	return &c
}

// Lines renders every line configured for key.
func (r *Renderer) Lines(key string, v Vars) []string {
	tmpl := r.src.Message(key)
	if len(tmpl) == 0 {
		return nil
	}
	tokens := r.tokens(v)
	out := make([]string, 0, len(tmpl))
	for _, line := range tmpl {
		out = append(out, fasttemplate.ExecuteStringStd(line, startTag, endTag, tokens))
	}
	return out
}

// Line renders key as a single string, lines joined by newlines.
func (r *Renderer) Line(key string, v Vars) string {
	return strings.Join(r.Lines(key, v), "\n")
}

// Specifics renders the entry's own description template.
func (r *Renderer) Specifics(l *listing.Listing) string {
	if l == nil || l.Entry == nil {
		return ""
	}
	tokens := make(map[string]any)
	for k, val := range l.Entry.Tokens() {
		tokens[k] = val
	}
	lines := r.src.Message(l.Entry.SpecTemplateKey())
	if len(lines) == 0 {
		return l.Entry.Name()
	}
	return fasttemplate.ExecuteStringStd(lines[0], startTag, endTag, tokens)
}

func (r *Renderer) tokens(v Vars) map[string]any {
	t := map[string]any{
		"gts_prefix": r.first(config.MsgPrefix),
		"gts_error":  r.first(config.MsgErrorPrefix),
	}
	if v.Player != "" {
		t["player"] = v.Player
	}
	if l := v.Listing; l != nil {
		for k, val := range l.Entry.Tokens() {
			t[k] = val
		}
		t["id"] = l.ID.String()
		t["seller"] = l.OwnerName
		t["buyer"] = l.BuyerName
		t["price"] = l.CurrentPrice().String()
		t["listing_name"] = l.Entry.Name()
		t["listing_specifics"] = r.Specifics(l)
		t["time_left"] = r.timeLeft(l)
		if a := l.Auction; a != nil {
			t["increment"] = a.Increment.String()
			t["high_bidder"] = a.HighBidderName
			t["min_price"] = a.MinimumBid().String()
		}
	}
	if v.Price != nil {
		t["price"] = v.Price.String()
	}
	if v.Tax != nil {
		t["tax"] = v.Tax.String()
	}
	if v.MinPrice != nil {
		t["min_price"] = v.MinPrice.String()
	}
	if v.MaxListings > 0 {
		t["max_listings"] = strconv.Itoa(v.MaxListings)
	}
	t["count"] = strconv.Itoa(v.Count)
	for k, val := range v.Extra {
		t[k] = val
	}
	return t
}

func (r *Renderer) first(key string) string {
	lines := r.src.Message(key)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

func (r *Renderer) timeLeft(l *listing.Listing) string {
	if l.ExpiresAt == nil {
		return "never"
	}
	now := r.now()
	if !now.Before(*l.ExpiresAt) {
		return "expired"
	}
	return humanize.RelTime(now, *l.ExpiresAt, "left", "ago")
}
