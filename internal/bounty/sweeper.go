package bounty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/matchpit/bounty/internal/escrow"
	"github.com/matchpit/bounty/internal/retry"
)

// Sweeper periodically retires stale OPEN wagers and settles
// PENDING_RESULT wagers whose dispute window lapsed undisputed.
type Sweeper struct {
	service  *Service
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewSweeper creates a deadline sweeper.
func NewSweeper(service *Service, store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Sweeper{
		service:  service,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in wager sweeper", "panic", fmt.Sprint(r))
		}
	}()
	s.Sweep(ctx)
}

// Sweep runs one pass over both deadline queues.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.service.now()

	expired, err := s.store.ListExpiredOpen(ctx, now, 100)
	if err != nil {
		s.logger.Warn("failed to list expired wagers", "error", err)
	} else {
		for _, w := range expired {
			if err := s.withRetry(ctx, func() error {
				return s.service.Expire(ctx, w.ID)
			}); err != nil {
				s.logger.Warn("failed to expire wager", "wager", w.ID, "error", err)
				continue
			}
			s.logger.Info("expired unaccepted wager",
				"wager", w.ID, "creator", w.Creator, "stake", w.StakeAmount)
		}
	}

	overdue, err := s.store.ListOverduePending(ctx, now.Add(-s.service.cfg.DisputeWindow), 100)
	if err != nil {
		s.logger.Warn("failed to list overdue wagers", "error", err)
		return
	}
	for _, w := range overdue {
		if err := s.withRetry(ctx, func() error {
			return s.service.FinalizeOverdue(ctx, w.ID)
		}); err != nil {
			s.logger.Warn("failed to finalize overdue wager", "wager", w.ID, "error", err)
			continue
		}
		s.logger.Info("settled undisputed wager after window",
			"wager", w.ID, "stake", w.StakeAmount)
	}
}

// withRetry retries transient escrow failures and treats a state
// conflict as done: another path already moved the wager.
func (s *Sweeper) withRetry(ctx context.Context, fn func() error) error {
	err := retry.Do(ctx, 3, 200*time.Millisecond, func() error {
		err := fn()
		if err == nil || errors.Is(err, escrow.ErrEscrowUnavailable) {
			return err
		}
		return retry.Permanent(err)
	})
	if errors.Is(err, ErrStateConflict) {
		return nil
	}
	return err
}
