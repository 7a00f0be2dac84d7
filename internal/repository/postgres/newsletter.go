package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/service/dispatch"
)

// NewsletterRepo implements dispatch.NewsletterRepo plus the scheduler's
// due-newsletter query.
type NewsletterRepo struct{ db *sql.DB }

// NewNewsletterRepo creates a Postgres-backed newsletter repository.
func NewNewsletterRepo(db *sql.DB) *NewsletterRepo { return &NewsletterRepo{db: db} }

const newsletterColumns = `id, account_id, title, subject, COALESCE(html_content,''),
	status, COALESCE(from_name,''), COALESCE(from_email,''), COALESCE(reply_to,''),
	scheduled_at, sent_at, sent_to, created_at, updated_at`

func scanNewsletter(row interface{ Scan(...interface{}) error }) (*domain.Newsletter, error) {
	n := &domain.Newsletter{}
	err := row.Scan(
		&n.ID, &n.AccountID, &n.Title, &n.Subject, &n.HTMLContent,
		&n.Status, &n.FromName, &n.FromEmail, &n.ReplyTo,
		&n.ScheduledAt, &n.SentAt, &n.SentTo, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *NewsletterRepo) Get(ctx context.Context, accountID, id string) (*domain.Newsletter, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+newsletterColumns+`
		FROM newsletters
		WHERE id = $1 AND account_id = $2
	`, id, accountID)

	n, err := scanNewsletter(row)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get newsletter: %w", err)
	}
	return n, nil
}

// MarkSent transitions to sent; the status guard makes the transition
// idempotent under racing dispatches.
func (r *NewsletterRepo) MarkSent(ctx context.Context, accountID, id string, sentTo int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE newsletters SET
			status = 'sent', sent_at = $3, sent_to = $4, updated_at = now()
		WHERE id = $1 AND account_id = $2 AND status <> 'sent'
	`, id, accountID, at, sentTo)
	if err != nil {
		return fmt.Errorf("mark newsletter sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark newsletter sent: %w", err)
	}
	if n == 0 {
		return dispatch.ErrAlreadySent
	}
	return nil
}

func (r *NewsletterRepo) DeleteDraftsWithTitle(ctx context.Context, accountID, title, excludeID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM newsletters
		WHERE account_id = $1 AND title = $2 AND status = 'draft' AND id <> $3
	`, accountID, title, excludeID)
	if err != nil {
		return 0, fmt.Errorf("delete duplicate drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete duplicate drafts: %w", err)
	}
	return int(n), nil
}

// DueScheduled returns newsletters whose scheduled time has arrived, oldest
// first. The scheduler holds a claim lock while acting on them.
func (r *NewsletterRepo) DueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Newsletter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+newsletterColumns+`
		FROM newsletters
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due newsletters: %w", err)
	}
	defer rows.Close()

	var out []domain.Newsletter
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan newsletter: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
