package bounty

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists wagers in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed wager store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const wagerColumns = `id, creator, acceptor, target_user, winner, game, description,
	stake_amount, payout_amount, platform_fee, outcome, status,
	created_at, updated_at, expires_at, accepted_at, started_at, result_submitted_at, completed_at`

func (p *PostgresStore) CreateWager(ctx context.Context, w *Wager) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wagers (`+wagerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		w.ID, w.Creator, nullString(w.Acceptor), nullString(w.TargetUser),
		nullString(w.Winner), w.Game, nullString(w.Description),
		w.StakeAmount, w.PayoutAmount, w.PlatformFee, nullString(w.Outcome), string(w.Status),
		w.CreatedAt, w.UpdatedAt, w.ExpiresAt,
		nullTime(w.AcceptedAt), nullTime(w.StartedAt), nullTime(w.ResultSubmittedAt), nullTime(w.CompletedAt),
	)
	return err
}

func (p *PostgresStore) GetWager(ctx context.Context, id string) (*Wager, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+wagerColumns+`
		FROM wagers WHERE id = $1`, id)
	w, err := scanWager(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

// UpdateWager writes the row only while its status is still from. Zero
// rows affected means another writer moved the wager first.
func (p *PostgresStore) UpdateWager(ctx context.Context, w *Wager, from Status) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE wagers SET
			acceptor = $1, winner = $2,
			payout_amount = $3, platform_fee = $4, outcome = $5, status = $6,
			updated_at = $7, accepted_at = $8, started_at = $9,
			result_submitted_at = $10, completed_at = $11
		WHERE id = $12 AND status = $13`,
		nullString(w.Acceptor), nullString(w.Winner),
		w.PayoutAmount, w.PlatformFee, nullString(w.Outcome), string(w.Status),
		w.UpdatedAt, nullTime(w.AcceptedAt), nullTime(w.StartedAt),
		nullTime(w.ResultSubmittedAt), nullTime(w.CompletedAt),
		w.ID, string(from),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from a moved one.
		if _, gerr := p.GetWager(ctx, w.ID); errors.Is(gerr, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: wager %s is no longer %s", ErrStateConflict, w.ID, from)
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, statuses []Status, limit int) ([]*Wager, error) {
	states := make([]string, 0, len(statuses))
	for _, s := range statuses {
		states = append(states, string(s))
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+wagerColumns+`
		FROM wagers
		WHERE (creator = $1 OR acceptor = $1) AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT $3`, userID, pq.Array(states), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanWagers(rows)
}

func (p *PostgresStore) ListExpiredOpen(ctx context.Context, asOf time.Time, limit int) ([]*Wager, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+wagerColumns+`
		FROM wagers
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3`, string(StatusOpen), asOf, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanWagers(rows)
}

func (p *PostgresStore) ListOverduePending(ctx context.Context, submittedBefore time.Time, limit int) ([]*Wager, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+wagerColumns+`
		FROM wagers w
		WHERE w.status = $1
		  AND w.result_submitted_at < $2
		  AND NOT EXISTS (SELECT 1 FROM wager_disputes d WHERE d.wager_id = w.id)
		ORDER BY w.result_submitted_at ASC
		LIMIT $3`, string(StatusPendingResult), submittedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanWagers(rows)
}

func (p *PostgresStore) SumActiveStakes(ctx context.Context) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(stake_amount), 0)
		FROM wagers
		WHERE status NOT IN ($1, $2, $3)`,
		string(StatusCompleted), string(StatusExpired), string(StatusCancelled)).Scan(&total)
	return total, err
}

func (p *PostgresStore) CreateAcceptance(ctx context.Context, a *Acceptance) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wager_acceptances (id, wager_id, acceptor, created_at)
		VALUES ($1, $2, $3, $4)`,
		a.ID, a.WagerID, a.Acceptor, a.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyAccepted
	}
	return err
}

func (p *PostgresStore) GetAcceptance(ctx context.Context, wagerID string) (*Acceptance, error) {
	a := &Acceptance{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, wager_id, acceptor, created_at
		FROM wager_acceptances WHERE wager_id = $1`, wagerID).
		Scan(&a.ID, &a.WagerID, &a.Acceptor, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (p *PostgresStore) DeleteAcceptance(ctx context.Context, wagerID string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM wager_acceptances WHERE wager_id = $1`, wagerID)
	return err
}

func (p *PostgresStore) CreateProof(ctx context.Context, pr *Proof) error {
	urls, err := json.Marshal(pr.EvidenceURLs)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO wager_proofs (id, wager_id, submitter, claimed_winner, evidence_urls, evidence_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pr.ID, pr.WagerID, pr.Submitter, pr.ClaimedWinner, urls, nullString(pr.EvidenceType), pr.CreatedAt)
	if isUniqueViolation(err) {
		return ErrProofAlreadySubmitted
	}
	return err
}

func (p *PostgresStore) ListProofs(ctx context.Context, wagerID string) ([]*Proof, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, wager_id, submitter, claimed_winner, evidence_urls, evidence_type, created_at
		FROM wager_proofs
		WHERE wager_id = $1
		ORDER BY created_at ASC, id ASC`, wagerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Proof
	for rows.Next() {
		pr := &Proof{}
		var urls []byte
		var evType sql.NullString
		if err := rows.Scan(&pr.ID, &pr.WagerID, &pr.Submitter, &pr.ClaimedWinner, &urls, &evType, &pr.CreatedAt); err != nil {
			return nil, err
		}
		pr.EvidenceType = evType.String
		if len(urls) > 0 {
			_ = json.Unmarshal(urls, &pr.EvidenceURLs)
		}
		result = append(result, pr)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CreateDispute(ctx context.Context, d *Dispute) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wager_disputes (id, wager_id, disputer, reason, moderator, resolution, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.WagerID, d.Disputer, d.Reason,
		nullString(d.Moderator), nullString(d.Resolution), d.CreatedAt, nullTime(d.ResolvedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyDisputed
	}
	return err
}

func (p *PostgresStore) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, wager_id, disputer, reason, moderator, resolution, created_at, resolved_at
		FROM wager_disputes WHERE id = $1`, id)
	return scanDispute(row)
}

func (p *PostgresStore) GetDisputeByWager(ctx context.Context, wagerID string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, wager_id, disputer, reason, moderator, resolution, created_at, resolved_at
		FROM wager_disputes WHERE wager_id = $1`, wagerID)
	return scanDispute(row)
}

func (p *PostgresStore) UpdateDispute(ctx context.Context, d *Dispute) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE wager_disputes SET moderator = $1, resolution = $2, resolved_at = $3
		WHERE id = $4`,
		nullString(d.Moderator), nullString(d.Resolution), nullTime(d.ResolvedAt), d.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWager(s scanner) (*Wager, error) {
	w := &Wager{}
	var (
		acceptor    sql.NullString
		targetUser  sql.NullString
		winner      sql.NullString
		description sql.NullString
		outcome     sql.NullString
		status      string
		acceptedAt  sql.NullTime
		startedAt   sql.NullTime
		submittedAt sql.NullTime
		completedAt sql.NullTime
	)

	err := s.Scan(
		&w.ID, &w.Creator, &acceptor, &targetUser, &winner, &w.Game, &description,
		&w.StakeAmount, &w.PayoutAmount, &w.PlatformFee, &outcome, &status,
		&w.CreatedAt, &w.UpdatedAt, &w.ExpiresAt,
		&acceptedAt, &startedAt, &submittedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Status = Status(status)
	w.Acceptor = acceptor.String
	w.TargetUser = targetUser.String
	w.Winner = winner.String
	w.Description = description.String
	w.Outcome = outcome.String
	if acceptedAt.Valid {
		w.AcceptedAt = &acceptedAt.Time
	}
	if startedAt.Valid {
		w.StartedAt = &startedAt.Time
	}
	if submittedAt.Valid {
		w.ResultSubmittedAt = &submittedAt.Time
	}
	if completedAt.Valid {
		w.CompletedAt = &completedAt.Time
	}
	return w, nil
}

func scanWagers(rows *sql.Rows) ([]*Wager, error) {
	var result []*Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func scanDispute(s scanner) (*Dispute, error) {
	d := &Dispute{}
	var (
		moderator  sql.NullString
		resolution sql.NullString
		resolvedAt sql.NullTime
	)
	err := s.Scan(&d.ID, &d.WagerID, &d.Disputer, &d.Reason, &moderator, &resolution, &d.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Moderator = moderator.String
	d.Resolution = resolution.String
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return d, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
