// Package wallet tracks user balances on the platform.
//
// Flow:
//  1. The platform credits a user's balance (deposit, admin top-up)
//  2. Stakes are locked into escrow when a wager is created or accepted
//  3. Settlement moves escrowed funds to the winner and the fee account
//  4. Cancelled or voided wagers refund escrow back to available
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/matchpit/bounty/internal/money"
	"github.com/matchpit/bounty/internal/pagination"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrDuplicateOp       = errors.New("operation already processed")
)

// PlatformAccount is the reserved account that collects platform fees.
const PlatformAccount = "platform"

// Entry represents a ledger entry
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Type        string    `json:"type"` // deposit, escrow_lock, escrow_refund, escrow_out, escrow_in
	Amount      int64     `json:"amount"`
	Reference   string    `json:"reference,omitempty"` // wager op key
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Balance represents a user's balance in minor units
type Balance struct {
	UserID    string    `json:"userId"`
	Available int64     `json:"available"` // Can be staked
	Escrowed  int64     `json:"escrowed"`  // Locked behind active wagers
	TotalIn   int64     `json:"totalIn"`   // Lifetime credits
	TotalOut  int64     `json:"totalOut"`  // Lifetime outflows
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists wallet data. Escrow operations carry an opKey and must
// be applied at most once per key; a repeat returns ErrDuplicateOp with
// no balance change.
type Store interface {
	GetBalance(ctx context.Context, userID string) (*Balance, error)
	Credit(ctx context.Context, userID string, amount int64, reference, description string) error
	EscrowLock(ctx context.Context, userID string, amount int64, opKey string) error
	EscrowRefund(ctx context.Context, userID string, amount int64, opKey string) error
	EscrowTransfer(ctx context.Context, fromID, toID string, amount int64, opKey string) error
	GetHistory(ctx context.Context, userID string, before *pagination.Cursor, limit int) ([]*Entry, error)
	HasOp(ctx context.Context, opKey string) (bool, error)
	// SumAllBalances totals available and escrowed funds across every
	// account, the platform fee account included.
	SumAllBalances(ctx context.Context) (available, escrowed int64, err error)
}

// Service manages user balances
type Service struct {
	store Store
}

// New creates a new wallet service
func New(store Store) *Service {
	return &Service{store: store}
}

// GetBalance returns a user's current balance
func (s *Service) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	return s.store.GetBalance(ctx, userID)
}

// Deposit credits a user's balance
func (s *Service) Deposit(ctx context.Context, userID string, amount int64, reference string) error {
	if err := money.Validate(amount); err != nil {
		return ErrInvalidAmount
	}
	return s.store.Credit(ctx, userID, amount, reference, "deposit")
}

// EscrowLock moves funds from available to escrowed
func (s *Service) EscrowLock(ctx context.Context, userID string, amount int64, opKey string) error {
	if err := money.Validate(amount); err != nil {
		return ErrInvalidAmount
	}
	return s.store.EscrowLock(ctx, userID, amount, opKey)
}

// EscrowRefund returns escrowed funds to available
func (s *Service) EscrowRefund(ctx context.Context, userID string, amount int64, opKey string) error {
	if err := money.Validate(amount); err != nil {
		return ErrInvalidAmount
	}
	return s.store.EscrowRefund(ctx, userID, amount, opKey)
}

// EscrowTransfer moves funds from one user's escrow to another user's
// available balance. Settlement payouts and fee collection both go
// through here; fees target PlatformAccount.
func (s *Service) EscrowTransfer(ctx context.Context, fromID, toID string, amount int64, opKey string) error {
	if err := money.Validate(amount); err != nil {
		return ErrInvalidAmount
	}
	return s.store.EscrowTransfer(ctx, fromID, toID, amount, opKey)
}

// GetHistory returns a page of ledger entries for a user, most recent
// first, along with an opaque cursor for the next page.
func (s *Service) GetHistory(ctx context.Context, userID, cursor string, limit int) ([]*Entry, string, error) {
	if limit <= 0 {
		limit = 50
	}
	before, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}

	// Fetch one extra row to learn whether another page exists.
	entries, err := s.store.GetHistory(ctx, userID, before, limit+1)
	if err != nil {
		return nil, "", err
	}
	entries, next, _ := pagination.ComputePage(entries, limit, func(e *Entry) (time.Time, string) {
		return e.CreatedAt, e.ID
	})
	return entries, next, nil
}

// CanStake checks if a user has sufficient available balance
func (s *Service) CanStake(ctx context.Context, userID string, amount int64) (bool, error) {
	if err := money.Validate(amount); err != nil {
		return false, ErrInvalidAmount
	}
	bal, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return bal.Available >= amount, nil
}
