package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultWriteTimeout = 5 * time.Second

	// sweepWeight is the full semaphore weight; owner mutations take 1.
	sweepWeight = int64(1 << 30)
)

// Snapshotter persists the whole ledger. Save must either durably write the given state or
// return an error without leaving a partial write visible to the next Load.
type Snapshotter interface {
	Load(ctx context.Context) (map[string]Country, error)
	Save(ctx context.Context, countries map[string]Country) error
}

type Options struct {
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// MemStore keeps the ledger in memory and rewrites a full snapshot on every commit.
// In-memory state is only replaced after the snapshot write succeeds.
type MemStore struct {
	snap    Snapshotter
	log     *slog.Logger
	timeout time.Duration

	sweep *semaphore.Weighted

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	// mu guards countries and serializes snapshot writes. Values in the map are never
	// mutated in place.
	mu        sync.Mutex
	countries map[string]Country
}

var _ Store = (*MemStore)(nil)

func OpenMemStore(ctx context.Context, snap Snapshotter, opts Options) (*MemStore, error) {
	if snap == nil {
		snap = NewMemorySnapshot()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	loaded, err := snap.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load snapshot: %w", ErrStorage, err)
	}
	countries := make(map[string]Country, len(loaded))
	for id, c := range loaded {
		c.OwnerID = id
		countries[id] = c.Clone()
	}
	opts.Logger.Info("ledger loaded", "countries", len(countries))
	return &MemStore{
		snap:      snap,
		log:       opts.Logger,
		timeout:   opts.WriteTimeout,
		sweep:     semaphore.NewWeighted(sweepWeight),
		locks:     make(map[string]chan struct{}),
		countries: countries,
	}, nil
}

func (s *MemStore) Get(_ context.Context, ownerID string) (Country, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.countries[ownerID]
	if !ok {
		return Country{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemStore) List(_ context.Context) ([]Country, error) {
	s.mu.Lock()
	out := make([]Country, 0, len(s.countries))
	for _, c := range s.countries {
		out = append(out, c.Clone())
	}
	s.mu.Unlock()
	sortByOwner(out)
	return out, nil
}

func (s *MemStore) Mutate(ctx context.Context, ownerID string, fn MutateFunc) (Country, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, err := s.acquire(ctx, ownerID)
	if err != nil {
		return Country{}, err
	}
	defer release()

	cur, exists := s.lookup(ownerID)
	next, err := fn(cur, exists)
	if err != nil {
		return Country{}, err
	}
	next = next.Clone()
	next.OwnerID = ownerID
	if err := s.commit(ctx, []Country{next}, nil); err != nil {
		return Country{}, err
	}
	return next.Clone(), nil
}

func (s *MemStore) MutatePair(ctx context.Context, a, b string, fn PairFunc) (Country, Country, error) {
	if a == b {
		return Country{}, Country{}, fmt.Errorf("mutate pair: owners must differ")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, err := s.acquire(ctx, a, b)
	if err != nil {
		return Country{}, Country{}, err
	}
	defer release()

	ca, okA := s.lookup(a)
	cb, okB := s.lookup(b)
	if !okA || !okB {
		return Country{}, Country{}, ErrNotFound
	}
	na, nb, err := fn(ca, cb)
	if err != nil {
		return Country{}, Country{}, err
	}
	na, nb = na.Clone(), nb.Clone()
	na.OwnerID, nb.OwnerID = a, b
	if err := s.commit(ctx, []Country{na, nb}, nil); err != nil {
		return Country{}, Country{}, err
	}
	return na.Clone(), nb.Clone(), nil
}

func (s *MemStore) MutateAll(ctx context.Context, fn func(*Country)) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.sweep.Acquire(ctx, sweepWeight); err != nil {
		return 0, fmt.Errorf("%w: wait for pending mutations: %w", ErrStorage, err)
	}
	defer s.sweep.Release(sweepWeight)

	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := make(map[string]Country, len(s.countries))
	for id, c := range s.countries {
		next := c.Clone()
		fn(&next)
		next.OwnerID = id
		candidate[id] = next
	}
	if err := s.snap.Save(ctx, candidate); err != nil {
		return 0, fmt.Errorf("%w: save snapshot: %w", ErrStorage, err)
	}
	s.countries = candidate
	return len(candidate), nil
}

func (s *MemStore) Delete(ctx context.Context, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	release, err := s.acquire(ctx, ownerID)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := s.lookup(ownerID); !ok {
		return ErrNotFound
	}
	return s.commit(ctx, nil, []string{ownerID})
}

func (s *MemStore) Close() error {
	if c, ok := s.snap.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *MemStore) lookup(ownerID string) (Country, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.countries[ownerID]
	if !ok {
		return Country{}, false
	}
	return c.Clone(), true
}

// commit persists the current ledger with changes applied, then publishes it.
func (s *MemStore) commit(ctx context.Context, changed []Country, removed []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := make(map[string]Country, len(s.countries)+len(changed))
	for id, c := range s.countries {
		candidate[id] = c
	}
	for _, c := range changed {
		candidate[c.OwnerID] = c
	}
	for _, id := range removed {
		delete(candidate, id)
	}
	if err := s.snap.Save(ctx, candidate); err != nil {
		return fmt.Errorf("%w: save snapshot: %w", ErrStorage, err)
	}
	s.countries = candidate
	return nil
}

// acquire takes the shared sweep slot and the owner locks in ascending owner order.
func (s *MemStore) acquire(ctx context.Context, owners ...string) (func(), error) {
	if err := s.sweep.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: wait for payout sweep: %w", ErrStorage, err)
	}
	if len(owners) == 2 && owners[1] < owners[0] {
		owners = []string{owners[1], owners[0]}
	}
	held := make([]chan struct{}, 0, len(owners))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
		s.sweep.Release(1)
	}
	for _, id := range owners {
		l := s.ownerLock(id)
		select {
		case l <- struct{}{}:
			held = append(held, l)
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("%w: lock %s: %w", ErrStorage, id, ctx.Err())
		}
	}
	return release, nil
}

func (s *MemStore) ownerLock(ownerID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[ownerID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[ownerID] = l
	}
	return l
}
