package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MemorySnapshot keeps the last saved ledger in memory. Nothing survives a restart.
type MemorySnapshot struct {
	mu   sync.Mutex
	data map[string]storedCountry
}

func NewMemorySnapshot() *MemorySnapshot {
	return &MemorySnapshot{data: map[string]storedCountry{}}
}

func (m *MemorySnapshot) Load(_ context.Context) (map[string]Country, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Country, len(m.data))
	for id, s := range m.data {
		out[id] = fromStored(id, s).Clone()
	}
	return out, nil
}

func (m *MemorySnapshot) Save(_ context.Context, countries map[string]Country) error {
	next := make(map[string]storedCountry, len(countries))
	for id, c := range countries {
		next[id] = toStored(c.Clone())
	}
	m.mu.Lock()
	m.data = next
	m.mu.Unlock()
	return nil
}

// FileSnapshot stores the ledger as one JSON object keyed by owner id:
// {"<owner>": {"name": ..., "wallet": ..., "income": ..., "items": {...}}}.
type FileSnapshot struct {
	path string
}

func NewFileSnapshot(path string) *FileSnapshot {
	return &FileSnapshot{path: path}
}

func (f *FileSnapshot) Load(_ context.Context) (map[string]Country, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Country{}, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]Country{}, nil
	}
	var stored map[string]storedCountry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	out := make(map[string]Country, len(stored))
	for id, s := range stored {
		out[id] = fromStored(id, s)
	}
	return out, nil
}

// Save writes to a temp file in the same directory and renames it over the target.
func (f *FileSnapshot) Save(ctx context.Context, countries map[string]Country) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := make(map[string]storedCountry, len(countries))
	for id, c := range countries {
		stored[id] = toStored(c)
	}
	raw, err := json.MarshalIndent(stored, "", "    ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".countries-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLSnapshot rewrites the countries table wholesale inside one transaction.
type SQLSnapshot struct {
	dialect Dialect
	db      *sql.DB
}

func NewSQLSnapshot(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLSnapshot, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported snapshot dialect %q", dialect)
	}
	s := &SQLSnapshot{dialect: dialect, db: db}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS countries (
			owner_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create countries table: %w", err)
	}
	return s, nil
}

func (s *SQLSnapshot) bind(pos int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

func (s *SQLSnapshot) Load(ctx context.Context) (map[string]Country, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, payload FROM countries`)
	if err != nil {
		return nil, fmt.Errorf("read countries: %w", err)
	}
	defer rows.Close()
	out := map[string]Country{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		var sc storedCountry
		if err := json.Unmarshal([]byte(payload), &sc); err != nil {
			return nil, fmt.Errorf("decode country %s: %w", id, err)
		}
		out[id] = fromStored(id, sc)
	}
	return out, rows.Err()
}

func (s *SQLSnapshot) Save(ctx context.Context, countries map[string]Country) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	if err := s.saveWithTx(ctx, tx, countries); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

func (s *SQLSnapshot) saveWithTx(ctx context.Context, tx *sql.Tx, countries map[string]Country) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM countries`); err != nil {
		return fmt.Errorf("clear countries: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO countries (owner_id, payload, updated_at) VALUES (%s, %s, %s)",
		s.bind(1), s.bind(2), s.bind(3))
	now := time.Now().UTC()
	for id, c := range countries {
		payload, err := json.Marshal(toStored(c))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, id, string(payload), now); err != nil {
			return fmt.Errorf("insert country %s: %w", id, err)
		}
	}
	return nil
}

func (s *SQLSnapshot) Close() error {
	return s.db.Close()
}
