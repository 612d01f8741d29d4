package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"nations/internal/config"
	"nations/internal/db"
)

// Open builds the configured ledger backend. The caller owns Close.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	opts := Options{WriteTimeout: cfg.WriteTimeout, Logger: logger}
	switch cfg.Backend {
	case config.StoreFile:
		return OpenMemStore(ctx, NewFileSnapshot(cfg.DataFile), opts)
	case config.StoreSQLite, config.StorePostgres:
		dialect, dsn := DialectSQLite, cfg.SQLitePath
		if cfg.Backend == config.StorePostgres {
			dialect, dsn = DialectPostgres, cfg.DatabaseURL
		}
		conn, err := db.OpenSQL(ctx, string(dialect), dsn)
		if err != nil {
			return nil, err
		}
		snap, err := NewSQLSnapshot(ctx, conn, dialect)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		store, err := OpenMemStore(ctx, snap, opts)
		if err != nil {
			_ = snap.Close()
			return nil, err
		}
		return store, nil
	case config.StorePostgresNative:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPGStore(pool, opts), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
