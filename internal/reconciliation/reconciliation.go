// Package reconciliation cross-checks wallet escrow totals against the
// wagers the platform believes are live.
//
// Every active wager locks exactly its stake in the creator's escrow,
// so at any quiet moment the sum of escrowed balances must equal the
// sum of active stakes. A drift between the two means a settlement
// moved money without recording state, or vice versa.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// BalanceSummer reports platform-wide wallet totals.
type BalanceSummer interface {
	SumAllBalances(ctx context.Context) (available, escrowed int64, err error)
}

// StakeSummer reports the total stake held by non-terminal wagers.
type StakeSummer interface {
	SumActiveStakes(ctx context.Context) (int64, error)
}

// StaleScanner exposes the sweeper's backlog queries.
type StaleScanner interface {
	CountStaleOpen(ctx context.Context, asOf time.Time) (int, error)
	CountOverduePending(ctx context.Context, submittedBefore time.Time) (int, error)
}

// Report holds the outcome of one reconciliation run.
type Report struct {
	EscrowMatch    bool      `json:"escrowMatch"`
	EscrowedTotal  int64     `json:"escrowedTotal"`
	ActiveStakes   int64     `json:"activeStakes"`
	Drift          int64     `json:"drift"`
	AvailableTotal int64     `json:"availableTotal"`
	StaleOpen      int       `json:"staleOpen"`
	OverduePending int       `json:"overduePending"`
	RanAt          time.Time `json:"ranAt"`
}

// Runner performs reconciliation checks.
type Runner struct {
	balances BalanceSummer
	stakes   StakeSummer
	stale    StaleScanner
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a reconciliation runner.
func NewRunner(balances BalanceSummer, stakes StakeSummer, stale StaleScanner, logger *slog.Logger) *Runner {
	return &Runner{
		balances: balances,
		stakes:   stakes,
		stale:    stale,
		logger:   logger,
		now:      time.Now,
	}
}

// RunAll executes every check and returns the combined report. A
// non-zero drift is logged at error level; sweeper backlog is only a
// warning since the next sweep normally clears it.
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	start := r.now()
	defer func() {
		reconcileDuration.Observe(time.Since(start).Seconds())
	}()

	available, escrowed, err := r.balances.SumAllBalances(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to sum wallet balances: %w", err)
	}

	activeStakes, err := r.stakes.SumActiveStakes(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to sum active stakes: %w", err)
	}

	staleOpen, err := r.stale.CountStaleOpen(ctx, start)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to count stale open wagers: %w", err)
	}

	overdue, err := r.stale.CountOverduePending(ctx, start)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to count overdue pending wagers: %w", err)
	}

	drift := escrowed - activeStakes
	report := &Report{
		EscrowMatch:    drift == 0,
		EscrowedTotal:  escrowed,
		ActiveStakes:   activeStakes,
		Drift:          drift,
		AvailableTotal: available,
		StaleOpen:      staleOpen,
		OverduePending: overdue,
		RanAt:          start,
	}

	reconcileEscrowDrift.Set(float64(drift))
	reconcileStaleOpen.Set(float64(staleOpen))
	reconcileOverduePending.Set(float64(overdue))

	if drift != 0 {
		r.logger.Error("CRITICAL: escrow drift detected",
			"escrowed_total", escrowed,
			"active_stakes", activeStakes,
			"drift", drift)
	}
	if staleOpen > 0 || overdue > 0 {
		r.logger.Warn("sweeper backlog detected",
			"stale_open", staleOpen,
			"overdue_pending", overdue)
	}

	return report, nil
}
