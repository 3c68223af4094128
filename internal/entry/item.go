package entry

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/gts-market/internal/pricing"
)

const (
	KindItem = "item"

	KeyItemSpec = "entries.item.spec-template"
)

// Item is a stack of a game item.
type Item struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Quantity   int    `json:"quantity"`
	Restricted bool   `json:"restricted,omitempty"`
}

// ItemEntry wraps an Item for the market.
type ItemEntry struct {
	transfer
	item Item
	reg  *Registry
}

// NewItem wraps item as an entry still held by its owner.
func (r *Registry) NewItem(item Item) *ItemEntry {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	return &ItemEntry{item: item, reg: r}
}

func decodeItem(r *Registry, payload []byte) (Entry, error) {
	var item Item
	if err := json.Unmarshal(payload, &item); err != nil {
		return nil, fmt.Errorf("%w: item: %v", ErrMalformed, err)
	}
	if item.ID == "" {
		return nil, fmt.Errorf("%w: item without id", ErrMalformed)
	}
	return r.NewItem(item), nil
}

func (e *ItemEntry) Kind() string            { return KindItem }
func (e *ItemEntry) Name() string            { return e.item.Title }
func (e *ItemEntry) SpecTemplateKey() string { return KeyItemSpec }
func (e *ItemEntry) Payload() any            { return e.item }

func (e *ItemEntry) Tokens() map[string]string {
	return map[string]string{
		"item_title": e.item.Title,
		"item_id":    e.item.ID,
		"quantity":   strconv.Itoa(e.item.Quantity),
	}
}

// MinimumPrice is the per-unit base times quantity plus extension hooks.
func (e *ItemEntry) MinimumPrice() (pricing.Price, error) {
	base, err := e.reg.limits.Of(e.reg.rules.ItemBase.Mul(decimal.NewFromInt(int64(e.item.Quantity))))
	if err != nil {
		return pricing.Price{}, err
	}
	return e.reg.minimum(e, base)
}

func (e *ItemEntry) Take(owner uuid.UUID) bool {
	if e.item.Restricted {
		return false
	}
	return e.take(func() bool {
		return e.reg.inv.Remove(owner, KindItem, e.item.ID)
	})
}

func (e *ItemEntry) Give(recipient uuid.UUID) bool {
	return e.give(func() bool {
		blob, err := json.Marshal(e.item)
		if err != nil {
			return false
		}
		return e.reg.inv.Add(recipient, KindItem, e.item.ID, blob)
	})
}
