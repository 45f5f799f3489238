// Package escrow is the only component that touches money. It wraps the
// wallet boundary with wager-scoped, idempotent operations: every call
// carries a key derived from the wager id and the operation kind, so a
// retried settlement can never move funds twice.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/matchpit/bounty/internal/metrics"
	"github.com/matchpit/bounty/internal/wallet"
)

// OpKind identifies one of the four ledger operations on a wager.
type OpKind string

const (
	OpHold    OpKind = "hold"
	OpRelease OpKind = "release"
	OpCollect OpKind = "collect"
	OpRefund  OpKind = "refund"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds for stake")
	ErrEscrowUnavailable = errors.New("escrow operation failed")
)

// WalletService is the slice of the wallet boundary the ledger drives.
type WalletService interface {
	EscrowLock(ctx context.Context, userID string, amount int64, opKey string) error
	EscrowRefund(ctx context.Context, userID string, amount int64, opKey string) error
	EscrowTransfer(ctx context.Context, fromID, toID string, amount int64, opKey string) error
}

// Ledger performs wager escrow operations against the wallet service.
type Ledger struct {
	wallet WalletService
	logger *slog.Logger
}

// NewLedger creates an escrow ledger backed by the given wallet service.
func NewLedger(w WalletService, logger *slog.Logger) *Ledger {
	return &Ledger{wallet: w, logger: logger}
}

// OpKey derives the idempotency key for a wager operation.
func OpKey(wagerID string, kind OpKind) string {
	return wagerID + ":" + string(kind)
}

// Hold locks a user's stake for a wager. Duplicate calls are no-ops.
func (l *Ledger) Hold(ctx context.Context, wagerID, userID string, amount int64) error {
	err := l.wallet.EscrowLock(ctx, userID, amount, OpKey(wagerID, OpHold))
	return l.finish(OpHold, wagerID, err)
}

// Release pays the winner from the stake holder's escrow.
// Duplicate calls are no-ops.
func (l *Ledger) Release(ctx context.Context, wagerID, fromID, toID string, amount int64) error {
	err := l.wallet.EscrowTransfer(ctx, fromID, toID, amount, OpKey(wagerID, OpRelease))
	return l.finish(OpRelease, wagerID, err)
}

// Collect moves the platform fee out of the stake holder's escrow.
// Duplicate calls are no-ops.
func (l *Ledger) Collect(ctx context.Context, wagerID, fromID string, fee int64) error {
	err := l.wallet.EscrowTransfer(ctx, fromID, wallet.PlatformAccount, fee, OpKey(wagerID, OpCollect))
	return l.finish(OpCollect, wagerID, err)
}

// Refund returns the full stake to its holder. Duplicate calls are no-ops.
func (l *Ledger) Refund(ctx context.Context, wagerID, userID string, amount int64) error {
	err := l.wallet.EscrowRefund(ctx, userID, amount, OpKey(wagerID, OpRefund))
	return l.finish(OpRefund, wagerID, err)
}

// finish translates wallet errors and records the op metric.
func (l *Ledger) finish(kind OpKind, wagerID string, err error) error {
	switch {
	case err == nil:
		metrics.LedgerOpsTotal.WithLabelValues(string(kind), "ok").Inc()
		return nil
	case errors.Is(err, wallet.ErrDuplicateOp):
		// Already applied for this wager. Idempotent success.
		metrics.LedgerOpsTotal.WithLabelValues(string(kind), "duplicate").Inc()
		l.logger.Info("escrow op already applied", "wager", wagerID, "op", kind)
		return nil
	case errors.Is(err, wallet.ErrInsufficientFunds), errors.Is(err, wallet.ErrAccountNotFound):
		metrics.LedgerOpsTotal.WithLabelValues(string(kind), "insufficient").Inc()
		return ErrInsufficientFunds
	default:
		metrics.LedgerOpsTotal.WithLabelValues(string(kind), "error").Inc()
		l.logger.Error("escrow op failed", "wager", wagerID, "op", kind, "error", err)
		return fmt.Errorf("%w: %s on %s: %v", ErrEscrowUnavailable, kind, wagerID, err)
	}
}
