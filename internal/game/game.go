// Package game provides in-memory stand-ins for the host server's economy
// and player inventories. Used for development and testing; a real server
// plugs its own implementations into the market.
package game

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type asset struct {
	key     string
	payload []byte
}

// Inventory stores assets per player and kind. Delivery fails for offline
// players or when a player's kind slot is full.
type Inventory struct {
	mu       sync.Mutex
	assets   map[uuid.UUID]map[string][]asset
	offline  map[uuid.UUID]bool
	capacity int
}

// NewInventory creates an inventory with capacity assets per kind (0 = unlimited).
func NewInventory(capacity int) *Inventory {
	return &Inventory{
		assets:   make(map[uuid.UUID]map[string][]asset),
		offline:  make(map[uuid.UUID]bool),
		capacity: capacity,
	}
}

// Grant puts an asset into a player's inventory unconditionally.
func (i *Inventory) Grant(player uuid.UUID, kind, key string, payload []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.put(player, kind, key, payload)
}

// SetOnline toggles whether deliveries to player succeed.
func (i *Inventory) SetOnline(player uuid.UUID, online bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.offline[player] = !online
}

// Has reports whether player holds the asset.
func (i *Inventory) Has(player uuid.UUID, kind, key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, a := range i.assets[player][kind] {
		if a.key == key {
			return true
		}
	}
	return false
}

func (i *Inventory) Remove(owner uuid.UUID, kind, key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	list := i.assets[owner][kind]
	for idx, a := range list {
		if a.key == key {
			i.assets[owner][kind] = append(list[:idx], list[idx+1:]...)
			return true
		}
	}
	return false
}

func (i *Inventory) Add(recipient uuid.UUID, kind, key string, payload []byte) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.offline[recipient] {
		return false
	}
	if i.capacity > 0 && len(i.assets[recipient][kind]) >= i.capacity {
		return false
	}
	i.put(recipient, kind, key, payload)
	return true
}

func (i *Inventory) Count(owner uuid.UUID, kind string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.assets[owner][kind])
}

func (i *Inventory) put(player uuid.UUID, kind, key string, payload []byte) {
	byKind, ok := i.assets[player]
	if !ok {
		byKind = make(map[string][]asset)
		i.assets[player] = byKind
	}
	byKind[kind] = append(byKind[kind], asset{key: key, payload: payload})
}

// Bank is an in-memory economy. Deposits to offline accounts fail.
type Bank struct {
	mu       sync.Mutex
	balances map[uuid.UUID]decimal.Decimal
	offline  map[uuid.UUID]bool
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[uuid.UUID]decimal.Decimal),
		offline:  make(map[uuid.UUID]bool),
	}
}

// SetBalance overwrites a player's balance.
func (b *Bank) SetBalance(player uuid.UUID, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[player] = amount
}

// SetOnline toggles whether deposits to player succeed.
func (b *Bank) SetOnline(player uuid.UUID, online bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offline[player] = !online
}

func (b *Bank) Balance(player uuid.UUID) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[player]
}

func (b *Bank) Withdraw(player uuid.UUID, amount decimal.Decimal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balances[player]
	if bal.LessThan(amount) {
		return false
	}
	b.balances[player] = bal.Sub(amount)
	return true
}

func (b *Bank) Deposit(player uuid.UUID, amount decimal.Decimal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline[player] {
		return false
	}
	b.balances[player] = b.balances[player].Add(amount)
	return true
}
