package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnknownItem = errors.New("item not found in shop")

type Item struct {
	ID     string `json:"id" yaml:"id"`
	Price  int64  `json:"price" yaml:"price"`
	Income int64  `json:"income" yaml:"income"`
}

// Catalog is read-only once built and safe for concurrent use.
type Catalog struct {
	items []Item
	byID  map[string]Item
}

func New(items []Item) (*Catalog, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one item")
	}
	c := &Catalog{
		items: make([]Item, 0, len(items)),
		byID:  make(map[string]Item, len(items)),
	}
	for _, it := range items {
		it.ID = normalizeID(it.ID)
		if it.ID == "" {
			return nil, fmt.Errorf("catalog item id is required")
		}
		if _, dup := c.byID[it.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog item %q", it.ID)
		}
		if it.Price <= 0 {
			return nil, fmt.Errorf("catalog item %q: price must be > 0", it.ID)
		}
		if it.Income < 0 {
			return nil, fmt.Errorf("catalog item %q: income must be >= 0", it.ID)
		}
		c.items = append(c.items, it)
		c.byID[it.ID] = it
	}
	return c, nil
}

func Default() *Catalog {
	c, err := New(defaultItems)
	if err != nil {
		panic(err)
	}
	return c
}

type fileFormat struct {
	Items []Item `yaml:"items"`
}

// LoadFile reads a YAML catalog of the form `items: [{id, price, income}]`.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(f.Items)
}

func (c *Catalog) Lookup(id string) (Item, error) {
	it, ok := c.byID[normalizeID(id)]
	if !ok {
		return Item{}, ErrUnknownItem
	}
	return it, nil
}

// Items returns the catalog in declaration order.
func (c *Catalog) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) Len() int {
	return len(c.items)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

var defaultItems = []Item{
	{ID: "farm", Price: 500, Income: 50},
	{ID: "coal factory", Price: 1500, Income: 150},
	{ID: "iron factory", Price: 3000, Income: 300},
	{ID: "clothes factory", Price: 5000, Income: 750},
	{ID: "food factory", Price: 25000, Income: 5000},
	{ID: "diamond factory", Price: 65000, Income: 16500},
	{ID: "store", Price: 250, Income: 500},
	{ID: "bank", Price: 10000, Income: 2000},
	{ID: "mine", Price: 5000, Income: 1000},
	{ID: "oil_rig", Price: 20000, Income: 4000},
	{ID: "tourism1", Price: 8000, Income: 1000},
	{ID: "tourism2", Price: 11000, Income: 2000},
	{ID: "tourism3", Price: 50000, Income: 25000},
	{ID: "powerplant", Price: 25000, Income: 15000},
	{ID: "weapons_upgrade", Price: 10000, Income: 0},
	{ID: "missile", Price: 25000, Income: 0},
	{ID: "nuke", Price: 100000, Income: 0},
}
