package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PostgresStore persists webhook subscriptions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed subscription store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, sub *Subscription) error {
	eventsJSON, err := json.Marshal(sub.Events)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions (id, user_id, url, secret, events, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.UserID, sub.URL, sub.Secret, eventsJSON, sub.Active, sub.CreatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Subscription, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, url, secret, events, active, created_at, last_success, last_error
		FROM webhook_subscriptions WHERE id = $1`, id)
	return scanSubscription(row)
}

func (p *PostgresStore) GetByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, url, secret, events, active, created_at, last_success, last_error
		FROM webhook_subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, sub *Subscription) error {
	var lastSuccess sql.NullTime
	if sub.LastSuccess != nil {
		lastSuccess = sql.NullTime{Time: *sub.LastSuccess, Valid: true}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE webhook_subscriptions
		SET active = $1, last_success = $2, last_error = $3
		WHERE id = $4`,
		sub.Active, lastSuccess, sub.LastError, sub.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(s rowScanner) (*Subscription, error) {
	sub := &Subscription{}
	var (
		eventsJSON  []byte
		lastSuccess sql.NullTime
		lastError   sql.NullString
	)
	err := s.Scan(&sub.ID, &sub.UserID, &sub.URL, &sub.Secret, &eventsJSON,
		&sub.Active, &sub.CreatedAt, &lastSuccess, &lastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(eventsJSON, &sub.Events); err != nil {
		return nil, err
	}
	if lastSuccess.Valid {
		sub.LastSuccess = &lastSuccess.Time
	}
	sub.LastError = lastError.String
	return sub, nil
}

var _ Store = (*PostgresStore)(nil)
