package wallet

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/matchpit/bounty/internal/pagination"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed wallet store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetBalance retrieves a user's balance
func (p *PostgresStore) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	bal := &Balance{UserID: userID}

	err := p.db.QueryRowContext(ctx, `
		SELECT available, escrowed, total_in, total_out, updated_at
		FROM wallet_accounts WHERE user_id = $1
	`, userID).Scan(&bal.Available, &bal.Escrowed, &bal.TotalIn, &bal.TotalOut, &bal.UpdatedAt)

	if err == sql.ErrNoRows {
		return &Balance{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return bal, nil
}

// Credit adds funds to a user's balance
func (p *PostgresStore) Credit(ctx context.Context, userID string, amount int64, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_accounts (user_id, available, total_in, updated_at)
		VALUES ($1, $2, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			available  = wallet_accounts.available + $2,
			total_in   = wallet_accounts.total_in  + $2,
			updated_at = NOW()
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, 'deposit', $3, $4, $5, NOW())
	`, uuid.NewString(), userID, amount, reference, description)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}

	return tx.Commit()
}

// EscrowLock moves funds from available to escrowed.
func (p *PostgresStore) EscrowLock(ctx context.Context, userID string, amount int64, opKey string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := claimOp(ctx, tx, opKey); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_accounts SET
			available  = available - $2,
			escrowed   = escrowed  + $2,
			updated_at = NOW()
		WHERE user_id = $1 AND available >= $2
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to lock escrow: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return p.shortfallErr(ctx, tx, userID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, 'escrow_lock', $3, $4, 'stake_locked', NOW())
	`, uuid.NewString(), userID, amount, opKey)
	if err != nil {
		return fmt.Errorf("failed to record escrow lock entry: %w", err)
	}

	return tx.Commit()
}

// EscrowRefund returns escrowed funds to available.
func (p *PostgresStore) EscrowRefund(ctx context.Context, userID string, amount int64, opKey string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := claimOp(ctx, tx, opKey); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_accounts SET
			escrowed   = escrowed  - $2,
			available  = available + $2,
			updated_at = NOW()
		WHERE user_id = $1 AND escrowed >= $2
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to refund escrow: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return p.shortfallErr(ctx, tx, userID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, 'escrow_refund', $3, $4, 'stake_refunded', NOW())
	`, uuid.NewString(), userID, amount, opKey)
	if err != nil {
		return fmt.Errorf("failed to record escrow refund entry: %w", err)
	}

	return tx.Commit()
}

// EscrowTransfer moves funds from one user's escrow to another user's available.
func (p *PostgresStore) EscrowTransfer(ctx context.Context, fromID, toID string, amount int64, opKey string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := claimOp(ctx, tx, opKey); err != nil {
		return err
	}

	// Debit sender's escrow
	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_accounts SET
			escrowed   = escrowed  - $2,
			total_out  = total_out + $2,
			updated_at = NOW()
		WHERE user_id = $1 AND escrowed >= $2
	`, fromID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit escrow: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return p.shortfallErr(ctx, tx, fromID)
	}

	// Credit receiver's available
	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_accounts (user_id, available, total_in, updated_at)
		VALUES ($1, $2, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			available  = wallet_accounts.available + $2,
			total_in   = wallet_accounts.total_in  + $2,
			updated_at = NOW()
	`, toID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit receiver: %w", err)
	}

	// Record entries for both parties
	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, 'escrow_out', $3, $4, 'escrow_paid_out', NOW())
	`, uuid.NewString(), fromID, amount, opKey)
	if err != nil {
		return fmt.Errorf("failed to record sender entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, 'escrow_in', $3, $4, 'escrow_payment_received', NOW())
	`, uuid.NewString(), toID, amount, opKey)
	if err != nil {
		return fmt.Errorf("failed to record receiver entry: %w", err)
	}

	return tx.Commit()
}

// GetHistory retrieves ledger entries for a user, newest first. A
// non-nil cursor restricts results to entries strictly before that
// position (keyset pagination on created_at, id).
func (p *PostgresStore) GetHistory(ctx context.Context, userID string, before *pagination.Cursor, limit int) ([]*Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if before != nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, user_id, type, amount, reference, description, created_at
			FROM wallet_entries
			WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, userID, before.CreatedAt, before.ID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, user_id, type, amount, reference, description, created_at
			FROM wallet_entries
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, userID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var reference, description sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &reference, &description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reference = reference.String
		e.Description = description.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumAllBalances totals available and escrowed funds across accounts
func (p *PostgresStore) SumAllBalances(ctx context.Context) (available, escrowed int64, err error) {
	err = p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(available), 0), COALESCE(SUM(escrowed), 0)
		FROM wallet_accounts
	`).Scan(&available, &escrowed)
	return available, escrowed, err
}

// HasOp checks if an escrow operation key has already been applied
func (p *PostgresStore) HasOp(ctx context.Context, opKey string) (bool, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM wallet_processed_ops WHERE op_key = $1
	`, opKey).Scan(&count)
	return count > 0, err
}

// claimOp records the op key inside the caller's transaction. A conflict
// means the operation already ran, so the whole transaction is abandoned.
func claimOp(ctx context.Context, tx *sql.Tx, opKey string) error {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_processed_ops (op_key, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (op_key) DO NOTHING
	`, opKey)
	if err != nil {
		return fmt.Errorf("failed to claim op key: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrDuplicateOp
	}
	return nil
}

// shortfallErr distinguishes a missing account from an overdraft after a
// guarded UPDATE matched no rows.
func (p *PostgresStore) shortfallErr(ctx context.Context, tx *sql.Tx, userID string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM wallet_accounts WHERE user_id = $1)
	`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotFound
	}
	return ErrInsufficientFunds
}
