package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps one row per country in nations.countries. Owner mutual exclusion uses
// transaction-scoped advisory locks so creation of a missing row is serialized too; rows are
// read FOR UPDATE so the payout UPDATE and owner mutations never interleave.
type PGStore struct {
	db      *pgxpool.Pool
	log     *slog.Logger
	timeout time.Duration
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *pgxpool.Pool, opts Options) *PGStore {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &PGStore{db: db, log: opts.Logger, timeout: opts.WriteTimeout}
}

func (s *PGStore) Get(ctx context.Context, ownerID string) (Country, error) {
	c, ok, err := loadCountry(ctx, s.db, ownerID, false)
	if err != nil {
		return Country{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if !ok {
		return Country{}, ErrNotFound
	}
	return c, nil
}

func (s *PGStore) List(ctx context.Context) ([]Country, error) {
	rows, err := s.db.Query(ctx, `
		SELECT owner_id, name, wallet, income, items
		FROM nations.countries
		ORDER BY owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	defer rows.Close()
	var out []Country
	for rows.Next() {
		c, err := scanCountry(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return out, nil
}

func (s *PGStore) Mutate(ctx context.Context, ownerID string, fn MutateFunc) (Country, error) {
	var out Country
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := advisoryLock(ctx, tx, ownerID); err != nil {
			return err
		}
		cur, exists, err := loadCountry(ctx, tx, ownerID, true)
		if err != nil {
			return err
		}
		next, err := fn(cur, exists)
		if err != nil {
			return rejected{err}
		}
		next.OwnerID = ownerID
		if err := upsertCountry(ctx, tx, next); err != nil {
			return err
		}
		out = next.Clone()
		return nil
	})
	return out, err
}

func (s *PGStore) MutatePair(ctx context.Context, a, b string, fn PairFunc) (Country, Country, error) {
	if a == b {
		return Country{}, Country{}, fmt.Errorf("mutate pair: owners must differ")
	}
	var outA, outB Country
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		first, second := a, b
		if second < first {
			first, second = second, first
		}
		for _, id := range []string{first, second} {
			if err := advisoryLock(ctx, tx, id); err != nil {
				return err
			}
		}
		loaded := make(map[string]Country, 2)
		for _, id := range []string{first, second} {
			c, ok, err := loadCountry(ctx, tx, id, true)
			if err != nil {
				return err
			}
			if !ok {
				return rejected{ErrNotFound}
			}
			loaded[id] = c
		}
		na, nb, err := fn(loaded[a], loaded[b])
		if err != nil {
			return rejected{err}
		}
		na.OwnerID, nb.OwnerID = a, b
		if err := upsertCountry(ctx, tx, na); err != nil {
			return err
		}
		if err := upsertCountry(ctx, tx, nb); err != nil {
			return err
		}
		outA, outB = na.Clone(), nb.Clone()
		return nil
	})
	return outA, outB, err
}

// MutateAll applies fn to every row. The table lock keeps inserts and deletes
// out until the sweep commits.
func (s *PGStore) MutateAll(ctx context.Context, fn func(*Country)) (int, error) {
	var n int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE nations.countries IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT owner_id, name, wallet, income, items
			FROM nations.countries
			ORDER BY owner_id
			FOR UPDATE
		`)
		if err != nil {
			return err
		}
		var all []Country
		for rows.Next() {
			c, err := scanCountry(rows)
			if err != nil {
				rows.Close()
				return err
			}
			all = append(all, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for i := range all {
			id := all[i].OwnerID
			fn(&all[i])
			all[i].OwnerID = id
			if err := upsertCountry(ctx, tx, all[i]); err != nil {
				return err
			}
		}
		n = len(all)
		return nil
	})
	return n, err
}

func (s *PGStore) Delete(ctx context.Context, ownerID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := advisoryLock(ctx, tx, ownerID); err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx, `DELETE FROM nations.countries WHERE owner_id = $1`, ownerID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return rejected{ErrNotFound}
		}
		return nil
	})
}

func (s *PGStore) Close() error {
	s.db.Close()
	return nil
}

// rejected marks an error produced by domain validation rather than storage.
type rejected struct{ err error }

func (r rejected) Error() string { return r.err.Error() }
func (r rejected) Unwrap() error { return r.err }

// inTx runs fn in a read-committed transaction, retrying deadlock and serialization
// aborts with backoff. Rejections are returned unchanged; anything else wraps ErrStorage.
func (s *PGStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const maxAttempts = 5
	retryDelay := 50 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := func() error {
			tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		var rej rejected
		if errors.As(err, &rej) {
			return rej.err
		}
		lastErr = err
		if !isRetryableTxError(err) {
			break
		}
		s.log.Warn("ledger tx retry", "attempt", attempt+1, "err", err)
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			lastErr = err
			break
		}
		retryDelay *= 2
	}
	return fmt.Errorf("%w: %w", ErrStorage, lastErr)
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func advisoryLock(ctx context.Context, tx pgx.Tx, ownerID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID)
	return err
}

func loadCountry(ctx context.Context, q queryer, ownerID string, forUpdate bool) (Country, bool, error) {
	query := `
		SELECT owner_id, name, wallet, income, items
		FROM nations.countries
		WHERE owner_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	c, err := scanCountry(q.QueryRow(ctx, query, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Country{}, false, nil
	}
	if err != nil {
		return Country{}, false, err
	}
	return c, true, nil
}

func scanCountry(row pgx.Row) (Country, error) {
	var c Country
	var items []byte
	if err := row.Scan(&c.OwnerID, &c.Name, &c.Wallet, &c.Income, &items); err != nil {
		return Country{}, err
	}
	c.Items = map[string]int64{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &c.Items); err != nil {
			return Country{}, fmt.Errorf("decode items for %s: %w", c.OwnerID, err)
		}
	}
	return c, nil
}

func upsertCountry(ctx context.Context, tx pgx.Tx, c Country) error {
	items := c.Items
	if items == nil {
		items = map[string]int64{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO nations.countries (owner_id, name, wallet, income, items, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, now())
		ON CONFLICT (owner_id) DO UPDATE
		SET name = EXCLUDED.name,
		    wallet = EXCLUDED.wallet,
		    income = EXCLUDED.income,
		    items = EXCLUDED.items,
		    updated_at = now()
	`, c.OwnerID, c.Name, c.Wallet, c.Income, string(raw))
	return err
}

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
