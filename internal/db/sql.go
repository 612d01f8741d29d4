package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// OpenSQL opens a database/sql handle for the snapshot backends. dialect is "sqlite" or
// "postgres"; for sqlite dsn is a file path whose directory is created if missing.
func OpenSQL(ctx context.Context, dialect, dsn string) (*sql.DB, error) {
	var driverName string
	switch dialect {
	case "sqlite":
		driverName = "sqlite"
		if dir := filepath.Dir(dsn); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	case "postgres":
		driverName = "pgx"
		if dsn == "" {
			return nil, fmt.Errorf("postgres snapshot requires DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}
	return conn, nil
}
