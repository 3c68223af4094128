package entry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/atmx/gts-market/internal/pricing"
)

// Decoder rebuilds an entry of one kind from its stored payload.
type Decoder func(r *Registry, payload []byte) (Entry, error)

// MinPriceHook contributes an extra amount to an entry's minimum price.
// Hooks registered for the same kind are summed.
type MinPriceHook func(Entry) (pricing.Price, error)

// Registry binds entries to the game inventory and pricing configuration,
// and encodes/decodes them for storage.
type Registry struct {
	inv    Inventory
	rules  Rules
	limits pricing.Limits

	mu       sync.RWMutex
	decoders map[string]Decoder
	hooks    map[string][]MinPriceHook
}

// NewRegistry creates a registry with the built-in item and creature kinds.
func NewRegistry(inv Inventory, rules Rules, limits pricing.Limits) *Registry {
	r := &Registry{
		inv:      inv,
		rules:    rules,
		limits:   limits,
		decoders: make(map[string]Decoder),
		hooks:    make(map[string][]MinPriceHook),
	}
	r.decoders[KindItem] = decodeItem
	r.decoders[KindCreature] = decodeCreature
	return r
}

// Limits returns the price limits entries are priced under.
func (r *Registry) Limits() pricing.Limits { return r.limits }

// Register adds a decoder for a new entry kind.
func (r *Registry) Register(kind string, dec Decoder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.decoders[kind]; ok {
		return fmt.Errorf("%w: %s", ErrKindRegistered, kind)
	}
	r.decoders[kind] = dec
	return nil
}

// RegisterMinPrice adds a minimum price hook for kind.
func (r *Registry) RegisterMinPrice(kind string, hook MinPriceHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[kind] = append(r.hooks[kind], hook)
}

// Encode returns the kind and JSON payload of e.
func (r *Registry) Encode(e Entry) (string, []byte, error) {
	blob, err := json.Marshal(e.Payload())
	if err != nil {
		return "", nil, fmt.Errorf("encode %s entry: %w", e.Kind(), err)
	}
	return e.Kind(), blob, nil
}

// Decode rebuilds a stored entry. Stored entries are always in escrow.
func (r *Registry) Decode(kind string, blob []byte) (Entry, error) {
	r.mu.RLock()
	dec, ok := r.decoders[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	e, err := dec(r, blob)
	if err != nil {
		return nil, err
	}
	if es, ok := e.(escrower); ok {
		es.markEscrowed()
	}
	return e, nil
}

// minimum sums base with every hook registered for e's kind.
func (r *Registry) minimum(e Entry, base ...pricing.Price) (pricing.Price, error) {
	r.mu.RLock()
	hooks := append([]MinPriceHook(nil), r.hooks[e.Kind()]...)
	r.mu.RUnlock()

	parts := append([]pricing.Price(nil), base...)
	for _, h := range hooks {
		p, err := h(e)
		if err != nil {
			return pricing.Price{}, err
		}
		parts = append(parts, p)
	}
	return r.limits.Sum(parts...)
}
