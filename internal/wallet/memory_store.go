package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/matchpit/bounty/internal/pagination"
)

// MemoryStore is an in-memory wallet store for demo/development mode.
type MemoryStore struct {
	balances map[string]*Balance
	entries  []*Entry
	ops      map[string]bool // opKey -> already applied
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*Balance),
		entries:  make([]*Entry, 0),
		ops:      make(map[string]bool),
	}
}

func (m *MemoryStore) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if bal, ok := m.balances[userID]; ok {
		cp := *bal
		return &cp, nil
	}
	return &Balance{
		UserID:    userID,
		UpdatedAt: time.Now(),
	}, nil
}

func (m *MemoryStore) Credit(ctx context.Context, userID string, amount int64, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.getOrCreate(userID)
	bal.Available += amount
	bal.TotalIn += amount
	bal.UpdatedAt = time.Now()

	m.entries = append(m.entries, &Entry{
		ID:          "entry_deposit_" + reference,
		UserID:      userID,
		Type:        "deposit",
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})

	return nil
}

func (m *MemoryStore) EscrowLock(ctx context.Context, userID string, amount int64, opKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ops[opKey] {
		return ErrDuplicateOp
	}

	bal, ok := m.balances[userID]
	if !ok {
		return ErrAccountNotFound
	}
	if bal.Available < amount {
		return ErrInsufficientFunds
	}

	bal.Available -= amount
	bal.Escrowed += amount
	bal.UpdatedAt = time.Now()

	m.ops[opKey] = true
	m.entries = append(m.entries, &Entry{
		ID:          "entry_lock_" + opKey,
		UserID:      userID,
		Type:        "escrow_lock",
		Amount:      amount,
		Reference:   opKey,
		Description: "stake_locked",
		CreatedAt:   time.Now(),
	})

	return nil
}

func (m *MemoryStore) EscrowRefund(ctx context.Context, userID string, amount int64, opKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ops[opKey] {
		return ErrDuplicateOp
	}

	bal, ok := m.balances[userID]
	if !ok {
		return ErrAccountNotFound
	}
	if bal.Escrowed < amount {
		return ErrInsufficientFunds
	}

	bal.Escrowed -= amount
	bal.Available += amount
	bal.UpdatedAt = time.Now()

	m.ops[opKey] = true
	m.entries = append(m.entries, &Entry{
		ID:          "entry_refund_" + opKey,
		UserID:      userID,
		Type:        "escrow_refund",
		Amount:      amount,
		Reference:   opKey,
		Description: "stake_refunded",
		CreatedAt:   time.Now(),
	})

	return nil
}

func (m *MemoryStore) EscrowTransfer(ctx context.Context, fromID, toID string, amount int64, opKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ops[opKey] {
		return ErrDuplicateOp
	}

	from, ok := m.balances[fromID]
	if !ok {
		return ErrAccountNotFound
	}
	if from.Escrowed < amount {
		return ErrInsufficientFunds
	}

	from.Escrowed -= amount
	from.TotalOut += amount
	from.UpdatedAt = time.Now()

	to := m.getOrCreate(toID)
	to.Available += amount
	to.TotalIn += amount
	to.UpdatedAt = time.Now()

	m.ops[opKey] = true
	m.entries = append(m.entries,
		&Entry{
			ID:          "entry_out_" + opKey,
			UserID:      fromID,
			Type:        "escrow_out",
			Amount:      amount,
			Reference:   opKey,
			Description: "escrow_paid_out",
			CreatedAt:   time.Now(),
		},
		&Entry{
			ID:          "entry_in_" + opKey,
			UserID:      toID,
			Type:        "escrow_in",
			Amount:      amount,
			Reference:   opKey,
			Description: "escrow_payment_received",
			CreatedAt:   time.Now(),
		},
	)

	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, userID string, before *pagination.Cursor, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := m.entries[i]
		if e.UserID != userID {
			continue
		}
		if before != nil && !olderThan(e, before) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// olderThan reports whether e sorts strictly after the cursor position
// in newest-first order. Ties on timestamp fall back to the entry id.
func olderThan(e *Entry, c *pagination.Cursor) bool {
	if e.CreatedAt.Equal(c.CreatedAt) {
		return e.ID < c.ID
	}
	return e.CreatedAt.Before(c.CreatedAt)
}

func (m *MemoryStore) SumAllBalances(ctx context.Context) (available, escrowed int64, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, bal := range m.balances {
		available += bal.Available
		escrowed += bal.Escrowed
	}
	return available, escrowed, nil
}

func (m *MemoryStore) HasOp(ctx context.Context, opKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops[opKey], nil
}

// getOrCreate returns the balance for userID, creating a zero balance
// if none exists. Caller must hold m.mu.
func (m *MemoryStore) getOrCreate(userID string) *Balance {
	bal, ok := m.balances[userID]
	if !ok {
		bal = &Balance{UserID: userID}
		m.balances[userID] = bal
	}
	return bal
}
