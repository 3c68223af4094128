// Package notify delivers market announcements to players and downstream
// consumers.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindDeposit  = "deposit"
	KindPurchase = "purchase"
	KindBid      = "bid"
	KindOutbid   = "outbid"
	KindSold     = "sold"
	KindExpired  = "expired"
	KindReturned = "returned"
	KindHeld     = "held"
	KindClaimed  = "claimed"
	KindRejected = "rejected"
)

// Message is one announcement. Player is set for personal messages and
// empty for broadcasts.
type Message struct {
	Kind      string    `json:"kind"`
	Player    string    `json:"player,omitempty"`
	ListingID string    `json:"listing_id,omitempty"`
	Price     string    `json:"price,omitempty"`
	Lines     []string  `json:"lines"`
	At        time.Time `json:"at"`
}

// Notifier delivers messages. Implementations must not block the caller on
// slow consumers.
type Notifier interface {
	Tell(player uuid.UUID, msg Message)
	Broadcast(msg Message)
}

// Multi fans messages out to every notifier.
type Multi []Notifier

func (m Multi) Tell(player uuid.UUID, msg Message) {
	for _, n := range m {
		n.Tell(player, msg)
	}
}

func (m Multi) Broadcast(msg Message) {
	for _, n := range m {
		n.Broadcast(msg)
	}
}

// Discard drops every message.
type Discard struct{}

func (Discard) Tell(uuid.UUID, Message) {}
func (Discard) Broadcast(Message)       {}
