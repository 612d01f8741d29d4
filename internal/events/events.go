package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeCountryCreated  = "country_created"
	TypeCountryDeleted  = "country_deleted"
	TypeItemPurchased   = "item_purchased"
	TypeTransfer        = "transfer_completed"
	TypeFieldSet        = "field_set"
	TypeBalanceAdjusted = "balance_adjusted"
	TypePayout          = "payout_completed"
)

// Event is a notification about a committed ledger mutation.
type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	OwnerID        string    `json:"owner_id,omitempty"`
	CounterpartyID string    `json:"counterparty_id,omitempty"`
	Amount         int64     `json:"amount,omitempty"`
	Item           string    `json:"item,omitempty"`
	Field          string    `json:"field,omitempty"`
	Count          int       `json:"count,omitempty"`
	At             time.Time `json:"at"`
}

func New(typ string) Event {
	return Event{ID: uuid.NewString(), Type: typ, At: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
