package payout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSweeper struct {
	calls    atomic.Int64
	running  atomic.Int64
	overlaps atomic.Int64
	delay    time.Duration
	err      error

	mu       sync.Mutex
	deadline bool
}

func (f *fakeSweeper) Payout(ctx context.Context) (int, error) {
	if f.running.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	defer f.running.Add(-1)
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		f.mu.Lock()
		f.deadline = true
		f.mu.Unlock()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 3, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runFor(s *Scheduler, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	<-done
}

func TestRunOnce(t *testing.T) {
	f := &fakeSweeper{}
	s := New(f, quietLogger(), Config{Every: time.Hour, Timeout: time.Second})
	n, err := s.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	if !f.deadline {
		t.Fatalf("expected sweep context to carry the timeout")
	}

	f.err = errors.New("disk full")
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, f.err) {
		t.Fatalf("expected sweep error, got %v", err)
	}
}

func TestRunTicksOnPeriod(t *testing.T) {
	f := &fakeSweeper{}
	runFor(New(f, quietLogger(), Config{Every: 10 * time.Millisecond}), 105*time.Millisecond)
	if got := f.calls.Load(); got < 5 || got > 11 {
		t.Fatalf("calls = %d, want roughly 10", got)
	}
}

func TestRunImmediately(t *testing.T) {
	f := &fakeSweeper{}
	runFor(New(f, quietLogger(), Config{Every: time.Hour, RunImmediately: true}), 20*time.Millisecond)
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}

	f = &fakeSweeper{}
	runFor(New(f, quietLogger(), Config{Every: time.Hour}), 20*time.Millisecond)
	if got := f.calls.Load(); got != 0 {
		t.Fatalf("calls = %d, want 0 without RunImmediately", got)
	}
}

func TestRunNeverOverlapsAndSkipsTicks(t *testing.T) {
	f := &fakeSweeper{delay: 35 * time.Millisecond}
	runFor(New(f, quietLogger(), Config{Every: 10 * time.Millisecond}), 200*time.Millisecond)
	if got := f.overlaps.Load(); got != 0 {
		t.Fatalf("sweeps overlapped %d times", got)
	}
	if got := f.calls.Load(); got < 2 || got > 6 {
		t.Fatalf("calls = %d, want between 2 and 6", got)
	}
}

func TestRunContinuesAfterFailure(t *testing.T) {
	f := &fakeSweeper{err: errors.New("storage unavailable")}
	runFor(New(f, quietLogger(), Config{Every: 10 * time.Millisecond}), 60*time.Millisecond)
	if got := f.calls.Load(); got < 2 {
		t.Fatalf("calls = %d, want the loop to keep ticking after failures", got)
	}
}

func TestNewDefaultsPeriod(t *testing.T) {
	s := New(&fakeSweeper{}, nil, Config{})
	if s.cfg.Every != DefaultEvery {
		t.Fatalf("Every = %s, want %s", s.cfg.Every, DefaultEvery)
	}
}
