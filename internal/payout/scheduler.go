package payout

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const DefaultEvery = 3 * time.Hour

// Sweeper applies one payout to every account and reports how many were paid.
type Sweeper interface {
	Payout(ctx context.Context) (int, error)
}

type Config struct {
	Every          time.Duration
	Timeout        time.Duration
	RunImmediately bool
}

// Scheduler runs the payout sweep on a fixed period. Sweeps never overlap:
// a tick that comes due while a sweep is still running is dropped.
type Scheduler struct {
	sweeper Sweeper
	cfg     Config
	log     *slog.Logger
}

func New(sweeper Sweeper, logger *slog.Logger, cfg Config) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Every <= 0 {
		cfg.Every = DefaultEvery
	}
	return &Scheduler{sweeper: sweeper, cfg: cfg, log: logger}
}

// Run blocks until ctx is cancelled. Sweep failures are logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) {
	if s.cfg.RunImmediately {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.cfg.Every)
	defer ticker.Stop()

	s.log.Info("payout scheduler started", "every", s.cfg.Every.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("payout scheduler shutdown")
			return
		case <-ticker.C:
			s.tick(ctx)
			select {
			case <-ticker.C:
				s.log.Warn("payout tick skipped, previous sweep still running", "every", s.cfg.Every.String())
			default:
			}
		}
	}
}

// RunOnce performs a single sweep and returns its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	return s.sweeper.Payout(ctx)
}

func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()
	n, err := s.RunOnce(ctx)
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		s.log.Error("payout sweep failed", "err", err, "duration", elapsed.String())
		return
	}
	s.log.Info("payout sweep complete", "accounts", n, "duration", elapsed.String())
	if elapsed >= s.cfg.Every {
		s.log.Warn("payout sweep overran its period", "duration", elapsed.String(), "every", s.cfg.Every.String())
	}
}
