package ledger

import (
	"context"
	"errors"
	"sort"
)

var (
	ErrNotFound      = errors.New("country not found")
	ErrAlreadyExists = errors.New("country already exists")
	ErrStorage       = errors.New("ledger storage failure")
)

// Country is one owner's economic state. Items maps catalog item id to owned count.
type Country struct {
	OwnerID string           `json:"owner_id"`
	Name    string           `json:"name"`
	Wallet  int64            `json:"wallet"`
	Income  int64            `json:"income"`
	Items   map[string]int64 `json:"items"`
}

func (c Country) Clone() Country {
	out := c
	out.Items = make(map[string]int64, len(c.Items))
	for k, v := range c.Items {
		out.Items[k] = v
	}
	return out
}

// ItemIDs returns owned item ids in ascending order.
func (c Country) ItemIDs() []string {
	ids := make([]string, 0, len(c.Items))
	for id, n := range c.Items {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// MutateFunc receives the current state (zero value and exists=false when the owner has no
// country) and returns the state to store. A non-nil error rejects the mutation.
type MutateFunc func(cur Country, exists bool) (Country, error)

// PairFunc receives both countries of a two-owner mutation, in argument order.
type PairFunc func(a, b Country) (Country, Country, error)

// Store is the sole authority over country state. Mutations on one owner are linearized,
// pair mutations lock both owners, and MutateAll excludes every other mutation.
type Store interface {
	Get(ctx context.Context, ownerID string) (Country, error)
	Mutate(ctx context.Context, ownerID string, fn MutateFunc) (Country, error)
	MutatePair(ctx context.Context, a, b string, fn PairFunc) (Country, Country, error)
	MutateAll(ctx context.Context, fn func(*Country)) (int, error)
	List(ctx context.Context) ([]Country, error)
	Delete(ctx context.Context, ownerID string) error
	Close() error
}

// storedCountry is the persisted form, keyed by owner id.
type storedCountry struct {
	Name   string           `json:"name"`
	Wallet int64            `json:"wallet"`
	Income int64            `json:"income"`
	Items  map[string]int64 `json:"items"`
}

func toStored(c Country) storedCountry {
	items := c.Items
	if items == nil {
		items = map[string]int64{}
	}
	return storedCountry{Name: c.Name, Wallet: c.Wallet, Income: c.Income, Items: items}
}

func fromStored(ownerID string, s storedCountry) Country {
	items := s.Items
	if items == nil {
		items = map[string]int64{}
	}
	return Country{OwnerID: ownerID, Name: s.Name, Wallet: s.Wallet, Income: s.Income, Items: items}
}

func sortByOwner(countries []Country) {
	sort.Slice(countries, func(i, j int) bool {
		return countries[i].OwnerID < countries[j].OwnerID
	})
}
