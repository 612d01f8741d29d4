package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if c.Len() != 17 {
		t.Fatalf("default catalog size = %d, want 17", c.Len())
	}
	farm, err := c.Lookup("farm")
	if err != nil {
		t.Fatalf("lookup farm: %v", err)
	}
	if farm.Price != 500 || farm.Income != 50 {
		t.Fatalf("farm = %+v", farm)
	}
	items := c.Items()
	if items[0].ID != "farm" || items[len(items)-1].ID != "nuke" {
		t.Fatalf("unexpected order: first=%s last=%s", items[0].ID, items[len(items)-1].ID)
	}
}

func TestLookupNormalizesID(t *testing.T) {
	c := Default()
	for _, id := range []string{"FARM", "  Farm ", "Coal Factory"} {
		if _, err := c.Lookup(id); err != nil {
			t.Fatalf("expected %q to resolve: %v", id, err)
		}
	}
	if _, err := c.Lookup("castle"); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
}

func TestNewRejectsInvalidItems(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
	}{
		{name: "empty", items: nil},
		{name: "blank id", items: []Item{{ID: " ", Price: 1}}},
		{name: "zero price", items: []Item{{ID: "a", Price: 0}}},
		{name: "negative income", items: []Item{{ID: "a", Price: 1, Income: -1}}},
		{name: "duplicate", items: []Item{{ID: "a", Price: 1}, {ID: "A", Price: 2}}},
	}
	for _, tc := range tests {
		if _, err := New(tc.items); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	c := Default()
	items := c.Items()
	items[0].Price = 1
	farm, _ := c.Lookup("farm")
	if farm.Price != 500 {
		t.Fatalf("catalog mutated through Items(): %+v", farm)
	}
	if got := c.Items()[0].Price; got != 500 {
		t.Fatalf("items slice aliased: price=%d", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := "items:\n  - id: farm\n    price: 500\n    income: 50\n  - id: Castle\n    price: 9000\n    income: 0\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	castle, err := c.Lookup("castle")
	if err != nil {
		t.Fatalf("lookup castle: %v", err)
	}
	if castle.Price != 9000 || castle.Income != 0 {
		t.Fatalf("castle = %+v", castle)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
