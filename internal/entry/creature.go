package entry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/pricing"
)

const (
	KindCreature = "creature"

	KeyCreatureSpec    = "entries.creature.spec-template"
	KeyCreatureEggSpec = "entries.creature.egg-spec-template"

	hiddenAbilitySlot = 2
	maxIVTotal        = 186
)

// Creature is a party creature as exported by the game mod.
type Creature struct {
	UID         string `json:"uid"`
	Species     string `json:"species"`
	Level       int    `json:"level"`
	Shiny       bool   `json:"shiny,omitempty"`
	Legendary   bool   `json:"legendary,omitempty"`
	Egg         bool   `json:"egg,omitempty"`
	Untradeable bool   `json:"untradeable,omitempty"`
	IVs         [6]int `json:"ivs"`
	AbilitySlot int    `json:"ability_slot"`
	Ability     string `json:"ability,omitempty"`
	Nature      string `json:"nature,omitempty"`
	Gender      string `json:"gender,omitempty"`
}

// CreatureEntry wraps a Creature for the market.
type CreatureEntry struct {
	transfer
	c   Creature
	reg *Registry
}

// NewCreature wraps c as an entry still held by its owner.
func (r *Registry) NewCreature(c Creature) *CreatureEntry {
	return &CreatureEntry{c: c, reg: r}
}

func decodeCreature(r *Registry, payload []byte) (Entry, error) {
	var c Creature
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("%w: creature: %v", ErrMalformed, err)
	}
	if c.UID == "" || c.Species == "" {
		return nil, fmt.Errorf("%w: creature without uid or species", ErrMalformed)
	}
	return r.NewCreature(c), nil
}

func (e *CreatureEntry) Kind() string { return KindCreature }
func (e *CreatureEntry) Payload() any { return e.c }

func (e *CreatureEntry) Name() string {
	if e.c.Egg {
		return "Creature Egg"
	}
	return e.c.Species
}

func (e *CreatureEntry) SpecTemplateKey() string {
	if e.c.Egg {
		return KeyCreatureEggSpec
	}
	return KeyCreatureSpec
}

func (e *CreatureEntry) Tokens() map[string]string {
	total := 0
	for _, iv := range e.c.IVs {
		total += iv
	}
	shiny := ""
	if e.c.Shiny {
		shiny = "(Shiny) "
	}
	level := e.c.Level
	if e.c.Egg {
		level = 1
	}
	return map[string]string{
		"creature":    e.Name(),
		"level":       strconv.Itoa(level),
		"shiny":       shiny,
		"ability":     e.c.Ability,
		"nature":      e.c.Nature,
		"gender":      e.c.Gender,
		"ivs_total":   strconv.Itoa(total),
		"ivs_percent": fmt.Sprintf("%.2f%%", float64(total)*100/maxIVTotal),
	}
}

// MinimumPrice sums the base price with legendary/shiny bonuses, a bonus
// per IV at or above the threshold, the hidden ability bonus, and hooks.
func (e *CreatureEntry) MinimumPrice() (pricing.Price, error) {
	rules := e.reg.rules
	amounts := []decimal.Decimal{rules.CreatureBase}
	if e.c.Legendary {
		amounts = append(amounts, rules.Legendary)
	}
	if e.c.Shiny {
		amounts = append(amounts, rules.Shiny)
	}
	for _, iv := range e.c.IVs {
		if iv >= rules.IVThreshold {
			amounts = append(amounts, rules.IVBonus)
		}
	}
	if e.c.AbilitySlot == hiddenAbilitySlot {
		amounts = append(amounts, rules.HiddenAbility)
	}

	parts := make([]pricing.Price, 0, len(amounts))
	for _, a := range amounts {
		p, err := e.reg.limits.Of(a)
		if err != nil {
			return pricing.Price{}, err
		}
		parts = append(parts, p)
	}
	return e.reg.minimum(e, parts...)
}

func (e *CreatureEntry) Take(owner uuid.UUID) bool {
	if e.c.Untradeable || e.blacklisted() {
		return false
	}
	return e.take(func() bool {
		// The last party member cannot be sold.
		if e.reg.inv.Count(owner, KindCreature) <= 1 {
			return false
		}
		return e.reg.inv.Remove(owner, KindCreature, e.c.UID)
	})
}

func (e *CreatureEntry) Give(recipient uuid.UUID) bool {
	return e.give(func() bool {
		blob, err := json.Marshal(e.c)
		if err != nil {
			return false
		}
		return e.reg.inv.Add(recipient, KindCreature, e.c.UID, blob)
	})
}

func (e *CreatureEntry) blacklisted() bool {
	for _, name := range e.reg.rules.Blacklist {
		if strings.EqualFold(name, e.c.Species) {
			return true
		}
	}
	return false
}
