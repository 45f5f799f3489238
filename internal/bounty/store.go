package bounty

import (
	"context"
	"time"
)

// Store persists wagers and their child records. Implementations must
// enforce the 1:1 acceptance and dispute constraints and the
// compare-and-swap contract on UpdateWager.
type Store interface {
	CreateWager(ctx context.Context, w *Wager) error
	GetWager(ctx context.Context, id string) (*Wager, error)
	// UpdateWager writes w only if the stored row is still in from.
	// Returns ErrStateConflict when the row moved underneath the caller.
	UpdateWager(ctx context.Context, w *Wager, from Status) error
	ListByUser(ctx context.Context, userID string, statuses []Status, limit int) ([]*Wager, error)
	// ListExpiredOpen returns OPEN wagers whose acceptance window ended
	// strictly before asOf.
	ListExpiredOpen(ctx context.Context, asOf time.Time, limit int) ([]*Wager, error)
	// ListOverduePending returns PENDING_RESULT wagers with no dispute
	// whose first proof arrived strictly before submittedBefore.
	ListOverduePending(ctx context.Context, submittedBefore time.Time, limit int) ([]*Wager, error)
	// SumActiveStakes totals the stakes of all non-terminal wagers.
	// These stakes should be sitting in escrow.
	SumActiveStakes(ctx context.Context) (int64, error)

	CreateAcceptance(ctx context.Context, a *Acceptance) error
	GetAcceptance(ctx context.Context, wagerID string) (*Acceptance, error)
	// DeleteAcceptance undoes a recorded acceptance whose wager
	// transition lost a concurrent update.
	DeleteAcceptance(ctx context.Context, wagerID string) error

	CreateProof(ctx context.Context, p *Proof) error
	ListProofs(ctx context.Context, wagerID string) ([]*Proof, error)

	CreateDispute(ctx context.Context, d *Dispute) error
	GetDispute(ctx context.Context, id string) (*Dispute, error)
	GetDisputeByWager(ctx context.Context, wagerID string) (*Dispute, error)
	UpdateDispute(ctx context.Context, d *Dispute) error
}
