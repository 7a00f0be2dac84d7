// Package postgres implements the service repository interfaces against
// PostgreSQL via database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/service/subscriber"
)

// SubscriberRepo implements subscriber.Repository and listsync.Registry.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

const subscriberColumns = `id, account_id, email, name, status, source,
	subscribed_at, unsubscribed_at, created_at, updated_at`

func scanSubscriber(row interface{ Scan(...interface{}) error }) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	err := row.Scan(
		&s.ID, &s.AccountID, &s.Email, &s.Name, &s.Status, &s.Source,
		&s.SubscribedAt, &s.UnsubscribedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SubscriberRepo) ListByAccount(ctx context.Context, accountID string) ([]domain.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE account_id = $1
		ORDER BY subscribed_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SubscriberRepo) FindByEmail(ctx context.Context, accountID, email string) (*domain.Subscriber, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE account_id = $1 AND email = lower($2)
	`, accountID, email)

	s, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, subscriber.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscriber by email: %w", err)
	}
	return s, nil
}

// BulkUpsertByEmail applies reconciliation writes in one transaction, keyed
// by (account_id, email). Re-applying the same batch is a no-op, which is
// what keeps overlapping reconciliation runs convergent. A row that is
// already unsubscribed keeps that status, so an opt-out landing between a
// reconciliation read and its write is never overwritten.
func (r *SubscriberRepo) BulkUpsertByEmail(ctx context.Context, accountID string, subs []domain.Subscriber) error {
	if len(subs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO subscribers
			(id, account_id, email, name, status, source, subscribed_at, unsubscribed_at, created_at, updated_at)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (account_id, email) DO UPDATE SET
			name            = EXCLUDED.name,
			status          = CASE WHEN subscribers.status = 'unsubscribed'
			                       THEN subscribers.status
			                       ELSE EXCLUDED.status END,
			source          = EXCLUDED.source,
			unsubscribed_at = COALESCE(subscribers.unsubscribed_at, EXCLUDED.unsubscribed_at),
			updated_at      = now()
	`)
	if err != nil {
		return fmt.Errorf("prepare bulk upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range subs {
		if _, err := stmt.ExecContext(ctx,
			s.ID, accountID, s.Email, s.Name, s.Status, s.Source,
			s.SubscribedAt, s.UnsubscribedAt,
		); err != nil {
			return fmt.Errorf("upsert subscriber %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

func (r *SubscriberRepo) UpdateStatus(ctx context.Context, id string, status domain.SubscriberStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET
			status = $2,
			unsubscribed_at = CASE
				WHEN $2 = 'unsubscribed' THEN COALESCE(unsubscribed_at, now())
				ELSE unsubscribed_at
			END,
			updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update subscriber status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update subscriber status: %w", err)
	}
	if n == 0 {
		return subscriber.ErrNotFound
	}
	return nil
}
