package ledger

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"nations/internal/db"
)

func openPGStore(t *testing.T) *PGStore {
	t.Helper()
	url := strings.TrimSpace(os.Getenv("NATIONS_TEST_DATABASE_URL"))
	if url == "" {
		t.Skip("NATIONS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM nations.countries`); err != nil {
		t.Fatalf("reset: %v", err)
	}
	s := NewPGStore(pool, Options{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPGStoreLifecycle(t *testing.T) {
	s := openPGStore(t)
	ctx := context.Background()

	mustCreate(t, s, "a", "Atlantis", 1000, 100)
	if _, err := s.Mutate(ctx, "a", create("Again", 1, 1)); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	mustCreate(t, s, "b", "Sparta", 1000, 0)

	if _, err := s.MutateAll(ctx, func(c *Country) { c.Wallet += c.Income }); err != nil {
		t.Fatalf("MutateAll: %v", err)
	}
	a, _, err := s.MutatePair(ctx, "a", "b", func(x, y Country) (Country, Country, error) {
		x.Wallet -= 300
		y.Wallet += 300
		return x, y, nil
	})
	if err != nil {
		t.Fatalf("MutatePair: %v", err)
	}
	if a.Wallet != 800 {
		t.Fatalf("a wallet = %d, want 800", a.Wallet)
	}
	b, err := s.Get(ctx, "b")
	if err != nil || b.Wallet != 1300 {
		t.Fatalf("b = %+v err=%v", b, err)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPGStoreConcurrentMutations(t *testing.T) {
	s := openPGStore(t)
	mustCreate(t, s, "a", "A", 10_000, 0)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Mutate(context.Background(), "a", func(cur Country, _ bool) (Country, error) {
				cur.Wallet -= 10
				return cur, nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}()
	}
	wg.Wait()
	a, _ := s.Get(context.Background(), "a")
	if a.Wallet != 10_000-400 {
		t.Fatalf("wallet = %d, want %d", a.Wallet, 10_000-400)
	}
}

func TestPGStoreSweepHoldsOffInserts(t *testing.T) {
	s := openPGStore(t)
	ctx := context.Background()
	mustCreate(t, s, "a", "Atlantis", 0, 100)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	sweepDone := make(chan error, 1)
	go func() {
		_, err := s.MutateAll(ctx, func(c *Country) {
			once.Do(func() {
				close(entered)
				<-release
			})
			c.Wallet += c.Income
		})
		sweepDone <- err
	}()
	<-entered

	createDone := make(chan error, 1)
	go func() {
		_, err := s.Mutate(ctx, "b", create("Sparta", 0, 100))
		createDone <- err
	}()
	select {
	case err := <-createDone:
		t.Fatalf("create committed during sweep: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	if err := <-sweepDone; err != nil {
		t.Fatalf("MutateAll: %v", err)
	}
	if err := <-createDone; err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := s.Get(ctx, "b")
	if err != nil || b.Wallet != 0 {
		t.Fatalf("b = %+v err=%v, want wallet 0 (created after sweep)", b, err)
	}
	a, _ := s.Get(ctx, "a")
	if a.Wallet != 100 {
		t.Fatalf("a wallet = %d, want 100", a.Wallet)
	}
}
