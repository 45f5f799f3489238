package reconciliation

import (
	"context"
	"time"

	"github.com/matchpit/bounty/internal/bounty"
)

// scanLimit caps how many stale rows a single run counts. Past this
// the exact number stops mattering; the sweeper is clearly behind.
const scanLimit = 1000

// WagerLister is the slice of the wager store the scanner needs.
type WagerLister interface {
	ListExpiredOpen(ctx context.Context, asOf time.Time, limit int) ([]*bounty.Wager, error)
	ListOverduePending(ctx context.Context, submittedBefore time.Time, limit int) ([]*bounty.Wager, error)
}

// WagerScanner adapts the wager store's sweep queries to backlog
// counts. A wager only counts as overdue once its dispute window has
// fully elapsed.
type WagerScanner struct {
	store         WagerLister
	disputeWindow time.Duration
}

// NewWagerScanner creates a scanner over the wager store.
func NewWagerScanner(store WagerLister, disputeWindow time.Duration) *WagerScanner {
	return &WagerScanner{store: store, disputeWindow: disputeWindow}
}

func (s *WagerScanner) CountStaleOpen(ctx context.Context, asOf time.Time) (int, error) {
	wagers, err := s.store.ListExpiredOpen(ctx, asOf, scanLimit)
	if err != nil {
		return 0, err
	}
	return len(wagers), nil
}

func (s *WagerScanner) CountOverduePending(ctx context.Context, asOf time.Time) (int, error) {
	wagers, err := s.store.ListOverduePending(ctx, asOf.Add(-s.disputeWindow), scanLimit)
	if err != nil {
		return 0, err
	}
	return len(wagers), nil
}
