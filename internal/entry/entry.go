// Package entry defines the tradable asset contract. The market never looks
// inside an entry's payload; it only prices, displays and transfers it.
package entry

import (
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/pricing"
)

var (
	ErrUnknownKind    = errors.New("entry: unknown entry kind")
	ErrKindRegistered = errors.New("entry: kind already registered")
	ErrMalformed      = errors.New("entry: malformed payload")
)

// Entry is a tradable asset wrapped for the market.
type Entry interface {
	// Kind is the registry key used to encode and decode the payload.
	Kind() string
	Name() string
	// SpecTemplateKey names the message template describing this entry.
	SpecTemplateKey() string
	// Tokens returns display metadata for message rendering.
	Tokens() map[string]string
	MinimumPrice() (pricing.Price, error)
	// Take removes the asset from owner. Returns false if the asset cannot
	// be removed right now; callers must not assume success.
	Take(owner uuid.UUID) bool
	// Give delivers the asset to recipient. Returns false if delivery is
	// impossible right now; the caller records a held entry instead.
	Give(recipient uuid.UUID) bool
	Payload() any
}

// Inventory is the game-side store of player assets.
type Inventory interface {
	Remove(owner uuid.UUID, kind, key string) bool
	Add(recipient uuid.UUID, kind, key string, payload []byte) bool
	Count(owner uuid.UUID, kind string) int
}

// Rules are the server-configured minimum price factors.
type Rules struct {
	ItemBase      decimal.Decimal
	CreatureBase  decimal.Decimal
	Legendary     decimal.Decimal
	Shiny         decimal.Decimal
	IVThreshold   int
	IVBonus       decimal.Decimal
	HiddenAbility decimal.Decimal
	Blacklist     []string
}

// Transfer states. An entry starts owned, moves to escrow once taken from
// its seller, and is delivered at most once.
const (
	stateOwned int32 = iota
	stateEscrowed
	stateDelivered
	stateBusy
)

type transfer struct {
	state atomic.Int32
}

func (t *transfer) take(fn func() bool) bool {
	if !t.state.CompareAndSwap(stateOwned, stateBusy) {
		return false
	}
	if !fn() {
		t.state.Store(stateOwned)
		return false
	}
	t.state.Store(stateEscrowed)
	return true
}

func (t *transfer) give(fn func() bool) bool {
	if !t.state.CompareAndSwap(stateEscrowed, stateBusy) {
		return false
	}
	if !fn() {
		t.state.Store(stateEscrowed)
		return false
	}
	t.state.Store(stateDelivered)
	return true
}

func (t *transfer) markEscrowed() { t.state.Store(stateEscrowed) }

// Delivered reports whether the entry has been handed to a recipient.
func (t *transfer) Delivered() bool { return t.state.Load() == stateDelivered }

type escrower interface{ markEscrowed() }
