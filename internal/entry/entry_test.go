package entry_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/game"
	"github.com/atmx/gts-market/internal/pricing"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testRules() entry.Rules {
	return entry.Rules{
		ItemBase:      d(10),
		CreatureBase:  d(100),
		Legendary:     d(5000),
		Shiny:         d(2000),
		IVThreshold:   31,
		IVBonus:       d(500),
		HiddenAbility: d(1000),
		Blacklist:     []string{"Missingno"},
	}
}

func newRegistry(inv *game.Inventory, max float64) *entry.Registry {
	return entry.NewRegistry(inv, testRules(), pricing.Limits{Max: d(max), Symbol: "$"})
}

func TestCreatureMinimumPrice(t *testing.T) {
	reg := newRegistry(game.NewInventory(0), 1_000_000)

	tests := []struct {
		name string
		c    entry.Creature
		want decimal.Decimal
	}{
		{"plain", entry.Creature{UID: "a", Species: "Pidgey"}, d(100)},
		{"shiny", entry.Creature{UID: "b", Species: "Pidgey", Shiny: true}, d(2100)},
		{"shiny legend", entry.Creature{UID: "c", Species: "Mew", Shiny: true, Legendary: true}, d(7100)},
		{"two perfect ivs", entry.Creature{UID: "d", Species: "Eevee", IVs: [6]int{31, 31, 0, 0, 0, 0}}, d(1100)},
		{"hidden ability", entry.Creature{UID: "e", Species: "Eevee", AbilitySlot: 2}, d(1100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.NewCreature(tt.c).MinimumPrice()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Amount().Equal(tt.want) {
				t.Errorf("min price = %s, want %s", got.Amount(), tt.want)
			}
		})
	}
}

func TestMinimumPrice_HooksAreSummed(t *testing.T) {
	reg := newRegistry(game.NewInventory(0), 1_000_000)
	lim := reg.Limits()
	reg.RegisterMinPrice(entry.KindItem, func(entry.Entry) (pricing.Price, error) { return lim.MustOf(5), nil })
	reg.RegisterMinPrice(entry.KindItem, func(entry.Entry) (pricing.Price, error) { return lim.MustOf(7), nil })

	got, err := reg.NewItem(entry.Item{ID: "diamond", Title: "Diamond", Quantity: 3}).MinimumPrice()
	if err != nil {
		t.Fatal(err)
	}
	// 3 * 10 + 5 + 7
	if !got.Amount().Equal(d(42)) {
		t.Errorf("min price = %s, want 42", got.Amount())
	}
}

func TestMinimumPrice_Overflow(t *testing.T) {
	reg := newRegistry(game.NewInventory(0), 5000)
	_, err := reg.NewCreature(entry.Creature{UID: "x", Species: "Mew", Legendary: true, Shiny: true}).MinimumPrice()
	var pe *pricing.PricingError
	if !errors.As(err, &pe) || pe.Reason != pricing.ReasonExceedsMax {
		t.Fatalf("expected EXCEEDS_MAX, got %v", err)
	}
}

func TestTakeGive_Idempotent(t *testing.T) {
	inv := game.NewInventory(0)
	reg := newRegistry(inv, 1_000_000)
	owner, buyer := uuid.New(), uuid.New()
	inv.Grant(owner, entry.KindItem, "diamond", nil)

	e := reg.NewItem(entry.Item{ID: "diamond", Title: "Diamond"})
	if e.Give(buyer) {
		t.Fatal("give before take must fail")
	}
	if !e.Take(owner) {
		t.Fatal("first take should succeed")
	}
	if e.Take(owner) {
		t.Fatal("second take must fail")
	}
	if !e.Give(buyer) {
		t.Fatal("first give should succeed")
	}
	if e.Give(buyer) {
		t.Fatal("second give must fail")
	}
	if inv.Count(buyer, entry.KindItem) != 1 {
		t.Errorf("buyer should hold exactly one item, has %d", inv.Count(buyer, entry.KindItem))
	}
}

func TestGive_FailureKeepsEscrow(t *testing.T) {
	inv := game.NewInventory(0)
	reg := newRegistry(inv, 1_000_000)
	owner, buyer := uuid.New(), uuid.New()
	inv.Grant(owner, entry.KindItem, "diamond", nil)
	inv.SetOnline(buyer, false)

	e := reg.NewItem(entry.Item{ID: "diamond", Title: "Diamond"})
	e.Take(owner)
	if e.Give(buyer) {
		t.Fatal("give to offline player should fail")
	}
	inv.SetOnline(buyer, true)
	if !e.Give(buyer) {
		t.Fatal("retry after failure should succeed")
	}
}

func TestCreatureTake_Restrictions(t *testing.T) {
	inv := game.NewInventory(0)
	reg := newRegistry(inv, 1_000_000)
	owner := uuid.New()
	inv.Grant(owner, entry.KindCreature, "only", nil)

	if reg.NewCreature(entry.Creature{UID: "only", Species: "Pidgey"}).Take(owner) {
		t.Error("last party member must not be taken")
	}

	inv.Grant(owner, entry.KindCreature, "second", nil)
	if reg.NewCreature(entry.Creature{UID: "second", Species: "Missingno"}).Take(owner) {
		t.Error("blacklisted species must not be taken")
	}
	if reg.NewCreature(entry.Creature{UID: "second", Species: "Pidgey", Untradeable: true}).Take(owner) {
		t.Error("untradeable creature must not be taken")
	}
	if !reg.NewCreature(entry.Creature{UID: "second", Species: "Pidgey"}).Take(owner) {
		t.Error("tradeable creature should be taken")
	}
}

func TestRegistry_RoundTrip(t *testing.T) {
	inv := game.NewInventory(0)
	reg := newRegistry(inv, 1_000_000)
	c := entry.Creature{UID: "u1", Species: "Eevee", Level: 12, IVs: [6]int{1, 2, 3, 4, 5, 6}}

	kind, blob, err := reg.Encode(reg.NewCreature(c))
	if err != nil {
		t.Fatal(err)
	}
	e, err := reg.Decode(kind, blob)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := e.Payload().(entry.Creature)
	if !ok || got != c {
		t.Fatalf("decoded payload = %+v, want %+v", e.Payload(), c)
	}
	// Decoded entries are in escrow and can be delivered directly.
	if !e.Give(uuid.New()) {
		t.Error("decoded entry should be deliverable")
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	reg := newRegistry(game.NewInventory(0), 100)
	if _, err := reg.Decode("spaceship", []byte(`{}`)); !errors.Is(err, entry.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if err := reg.Register(entry.KindItem, nil); !errors.Is(err, entry.ErrKindRegistered) {
		t.Errorf("expected ErrKindRegistered, got %v", err)
	}
}
