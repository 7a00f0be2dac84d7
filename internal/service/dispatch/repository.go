package dispatch

import (
	"context"
	"time"

	"github.com/ignite/mailflow/internal/domain"
)

// NewsletterRepo defines the newsletter data access the pipeline needs.
// Implementations must be safe for concurrent use.
type NewsletterRepo interface {
	// Get returns one newsletter. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, accountID, id string) (*domain.Newsletter, error)

	// MarkSent transitions the newsletter to sent, recording the timestamp
	// and the success count as its audience size.
	MarkSent(ctx context.Context, accountID, id string, sentTo int, at time.Time) error

	// DeleteDraftsWithTitle removes draft newsletters sharing the given
	// title, excluding excludeID. Returns the number deleted.
	DeleteDraftsWithTitle(ctx context.Context, accountID, title, excludeID string) (int, error)
}

// RecipientSource resolves the recipient set for an account.
// Satisfied by the subscriber service.
type RecipientSource interface {
	Active(ctx context.Context, accountID string) ([]domain.Subscriber, error)
}

// UsageCounter is the per-(account, day) email usage counter. Reserve is a
// single atomic check-and-increment so concurrent dispatches for the same
// account cannot overshoot the cap; Release refunds reservations that did
// not turn into sends, leaving the counter equal to actual successes.
type UsageCounter interface {
	Reserve(ctx context.Context, accountID string, day time.Time, n, cap int) (bool, error)
	Release(ctx context.Context, accountID string, day time.Time, n int) error
	SentToday(ctx context.Context, accountID string, day time.Time) (int, error)
}

// MailProvider sends one fully-resolved message. One call per recipient; no
// provider-side batching is relied upon.
type MailProvider interface {
	Send(ctx context.Context, msg domain.EmailMessage) (*domain.SendResult, error)
}

// EventStore creates the empty delivery record a freshly sent newsletter
// needs so later open/click events have a destination.
type EventStore interface {
	EnsureRecord(ctx context.Context, newsletterID string) error
}
