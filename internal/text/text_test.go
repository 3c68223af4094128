package text_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/gts-market/internal/config"
	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/game"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/pricing"
	"github.com/atmx/gts-market/internal/text"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixture(t *testing.T, opts ...listing.Option) *listing.Listing {
	t.Helper()
	reg := entry.NewRegistry(game.NewInventory(0), entry.Rules{}, pricing.DefaultLimits())
	e := reg.NewCreature(entry.Creature{
		UID: "c-1", Species: "Eevee", Level: 12, Shiny: true,
		IVs: [6]int{31, 31, 31, 31, 31, 31},
	})
	opts = append([]listing.Option{listing.WithClock(func() time.Time { return t0 })}, opts...)
	l, err := listing.New(listing.Player{ID: uuid.New(), Name: "Ash"}, e, pricing.DefaultLimits().MustOf(1250), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestRenderer_ListingTokens(t *testing.T) {
	r := text.NewRenderer(config.Default())
	l := fixture(t)

	got := r.Line(config.MsgAddedBroadcast, text.Vars{Player: "Ash", Listing: l})
	want := "GTS » Ash has added a (Shiny) Eevee (Lv 12, 100.00% IVs) to the GTS for $1,250!"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestRenderer_MultiLineAndOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.Messages = map[string][]string{
		config.MsgPrefix: {"[M]"},
		config.LogSell:   {"{{gts_prefix}} to {{buyer}}", "for {{price}}", "{{unknown}}"},
	}
	r := text.NewRenderer(cfg)
	l := fixture(t)
	l.BuyerName = "Misty"
	p := pricing.DefaultLimits().MustOf(99)

	lines := r.Lines(config.LogSell, text.Vars{Listing: l, Price: &p})
	want := []string{"[M] to Misty", "for $99", "{{unknown}}"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestRenderer_AuctionAndTimeLeft(t *testing.T) {
	lim := pricing.DefaultLimits()
	l := fixture(t, listing.AsAuction(lim.MustOf(50)), listing.ExpiresIn(3*time.Hour))
	cfg := config.Default()
	cfg.Messages = map[string][]string{
		config.MsgBidTooLow: {"{{min_price}}|{{increment}}|{{time_left}}"},
	}
	r := text.NewRenderer(cfg).WithClock(func() time.Time { return t0 })
	got := r.Line(config.MsgBidTooLow, text.Vars{Listing: l})
	parts := strings.Split(got, "|")
	if len(parts) != 3 {
		t.Fatalf("got %q", got)
	}
	if parts[0] != "$1,250" || parts[1] != "$50" {
		t.Errorf("min/increment = %q/%q", parts[0], parts[1])
	}
	if !strings.HasSuffix(parts[2], "left") {
		t.Errorf("time_left = %q", parts[2])
	}

	late := r.WithClock(func() time.Time { return t0.Add(4 * time.Hour) })
	if got := late.Line(config.MsgBidTooLow, text.Vars{Listing: l}); !strings.HasSuffix(got, "|expired") {
		t.Errorf("after expiry got %q", got)
	}
}

func TestRenderer_Specifics(t *testing.T) {
	reg := entry.NewRegistry(game.NewInventory(0), entry.Rules{}, pricing.DefaultLimits())
	e := reg.NewItem(entry.Item{ID: "minecraft:diamond", Title: "Diamond", Quantity: 3})
	l, err := listing.New(listing.Player{ID: uuid.New(), Name: "Brock"}, e, pricing.DefaultLimits().MustOf(10))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Messages = map[string][]string{config.MsgItemSpec: {"{{quantity}}x {{item_title}}"}}
	if got := text.NewRenderer(cfg).Specifics(l); got != "3x Diamond" {
		t.Errorf("specifics = %q", got)
	}
}

func TestRenderer_UnknownKey(t *testing.T) {
	r := text.NewRenderer(config.Default())
	if lines := r.Lines("general.missing", text.Vars{}); lines != nil {
		t.Errorf("lines = %q, want nil", lines)
	}
}
