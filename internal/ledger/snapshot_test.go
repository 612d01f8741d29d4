package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"nations/internal/config"
	"nations/internal/db"
)

func sampleLedger() map[string]Country {
	return map[string]Country{
		"111": {OwnerID: "111", Name: "Atlantis", Wallet: 500, Income: 150, Items: map[string]int64{"farm": 1}},
		"222": {OwnerID: "222", Name: "Sparta", Wallet: 1000, Income: 100},
	}
}

func TestFileSnapshotMissingFileIsEmpty(t *testing.T) {
	snap := NewFileSnapshot(filepath.Join(t.TempDir(), "countries.json"))
	got, err := snap.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty ledger, got %d", len(got))
	}
}

func TestFileSnapshotEmptyFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countries.json")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := NewFileSnapshot(path).Load(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("Load: got=%v err=%v", got, err)
	}
}

func TestFileSnapshotRoundTripAndFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "countries.json")
	snap := NewFileSnapshot(path)
	if err := snap.Save(context.Background(), sampleLedger()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var onDisk map[string]map[string]any
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("decode on-disk format: %v", err)
	}
	entry := onDisk["111"]
	for _, key := range []string{"name", "wallet", "income", "items"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("on-disk entry missing %q: %v", key, entry)
		}
	}
	if _, ok := entry["owner_id"]; ok {
		t.Fatalf("owner id should only be the object key")
	}

	got, err := snap.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got["111"].Items["farm"] != 1 || got["111"].OwnerID != "111" {
		t.Fatalf("round trip mismatch: %+v", got["111"])
	}
	if got["222"].Items == nil {
		t.Fatalf("items should decode as empty map, not nil")
	}
}

func TestFileSnapshotReadsOriginalFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countries.json")
	body := `{"42": {"name": "Rome", "wallet": 1000, "income": 100, "items": {"farm": 2}}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := OpenMemStore(context.Background(), NewFileSnapshot(path), Options{})
	if err != nil {
		t.Fatalf("OpenMemStore: %v", err)
	}
	rome, err := s.Get(context.Background(), "42")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rome.Name != "Rome" || rome.Items["farm"] != 2 {
		t.Fatalf("unexpected country: %+v", rome)
	}
}

func TestFileSnapshotCorruptFileFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countries.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := OpenMemStore(context.Background(), NewFileSnapshot(path), Options{}); err == nil {
		t.Fatalf("expected error for corrupt snapshot")
	}
}

func TestSQLSnapshotSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenSQL(ctx, "sqlite", filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	snap, err := NewSQLSnapshot(ctx, conn, DialectSQLite)
	if err != nil {
		t.Fatalf("NewSQLSnapshot: %v", err)
	}
	defer snap.Close()

	if err := snap.Save(ctx, sampleLedger()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	smaller := sampleLedger()
	delete(smaller, "222")
	if err := snap.Save(ctx, smaller); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	got, err := snap.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected wholesale rewrite to drop deleted owner, got %d rows", len(got))
	}
	if got["111"].Wallet != 500 || got["111"].Items["farm"] != 1 {
		t.Fatalf("round trip mismatch: %+v", got["111"])
	}
}

func TestNewSQLSnapshotRejectsUnknownDialect(t *testing.T) {
	if _, err := NewSQLSnapshot(context.Background(), nil, Dialect("mysql")); err == nil {
		t.Fatalf("expected dialect error")
	}
}

func TestOpenFileBackend(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Backend:  config.StoreFile,
		DataFile: filepath.Join(t.TempDir(), "countries.json"),
	}
	s, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustCreate(t, s, "1", "Atlantis", 1000, 100)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if c, err := reopened.Get(ctx, "1"); err != nil || c.Name != "Atlantis" {
		t.Fatalf("Get after reopen: %+v %v", c, err)
	}
}

func TestOpenSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Backend:    config.StoreSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "db", "nations.sqlite"),
	}
	s, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustCreate(t, s, "1", "Atlantis", 1000, 100)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if all, err := reopened.List(ctx); err != nil || len(all) != 1 {
		t.Fatalf("List after reopen: %+v %v", all, err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), config.StoreConfig{Backend: "redis"}, nil); err == nil {
		t.Fatalf("expected error")
	}
}
