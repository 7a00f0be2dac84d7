package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/service/tracking"
)

// EventRepo stores per-newsletter delivery records: four counters, each with
// a jsonb array of detail entries.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed delivery event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// column pairs per event type; values come from the fixed map below, never
// from caller input.
var eventColumns = map[domain.DeliveryEventType][2]string{
	domain.EventOpen:        {"opens", "open_details"},
	domain.EventClick:       {"clicks", "click_details"},
	domain.EventBounce:      {"bounces", "bounce_details"},
	domain.EventUnsubscribe: {"unsubscribes", "unsubscribe_details"},
}

// RecordEvent upserts the newsletter's record in one statement: the counter
// increments and the detail entry appends atomically, creating the record on
// first event.
func (r *EventRepo) RecordEvent(ctx context.Context, newsletterID string, typ domain.DeliveryEventType, detail domain.EventDetail) error {
	cols, ok := eventColumns[typ]
	if !ok {
		return fmt.Errorf("record event: unknown event type %q", typ)
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("record event: marshal detail: %w", err)
	}

	counter, details := cols[0], cols[1]
	query := fmt.Sprintf(`
		INSERT INTO delivery_events (newsletter_id, %[1]s, %[2]s, created_at, updated_at)
		VALUES ($1, 1, jsonb_build_array($2::jsonb), now(), now())
		ON CONFLICT (newsletter_id) DO UPDATE SET
			%[1]s = delivery_events.%[1]s + 1,
			%[2]s = delivery_events.%[2]s || $2::jsonb,
			updated_at = now()
	`, counter, details)

	if _, err := r.db.ExecContext(ctx, query, newsletterID, payload); err != nil {
		return fmt.Errorf("record %s event: %w", typ, err)
	}
	return nil
}

// EnsureRecord creates the empty record if missing. Idempotent.
func (r *EventRepo) EnsureRecord(ctx context.Context, newsletterID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_events (newsletter_id, created_at, updated_at)
		VALUES ($1, now(), now())
		ON CONFLICT (newsletter_id) DO NOTHING
	`, newsletterID)
	if err != nil {
		return fmt.Errorf("ensure delivery record: %w", err)
	}
	return nil
}

func (r *EventRepo) Get(ctx context.Context, newsletterID string) (*domain.DeliveryRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT newsletter_id, opens, clicks, bounces, unsubscribes,
			COALESCE(open_details, '[]'), COALESCE(click_details, '[]'),
			COALESCE(bounce_details, '[]'), COALESCE(unsubscribe_details, '[]'),
			created_at, updated_at
		FROM delivery_events
		WHERE newsletter_id = $1
	`, newsletterID)

	rec := &domain.DeliveryRecord{}
	var opens, clicks, bounces, unsubs []byte
	err := row.Scan(
		&rec.NewsletterID, &rec.Opens, &rec.Clicks, &rec.Bounces, &rec.Unsubscribes,
		&opens, &clicks, &bounces, &unsubs,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, tracking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery record: %w", err)
	}

	for _, pair := range []struct {
		raw []byte
		dst *[]domain.EventDetail
	}{
		{opens, &rec.OpenDetails},
		{clicks, &rec.ClickDetails},
		{bounces, &rec.BounceDetails},
		{unsubs, &rec.UnsubscribeDetails},
	} {
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, fmt.Errorf("get delivery record: decode details: %w", err)
		}
	}
	return rec, nil
}
