package tracking

import (
	"context"

	"github.com/ignite/mailflow/internal/domain"
)

// Repository defines the data access contract for delivery records.
// Implementations must be safe for concurrent use.
type Repository interface {
	// RecordEvent atomically increments the counter for typ and appends one
	// detail entry, creating the newsletter's record first if none exists.
	RecordEvent(ctx context.Context, newsletterID string, typ domain.DeliveryEventType, detail domain.EventDetail) error

	// EnsureRecord creates an empty delivery record for the newsletter if
	// none exists, so later events have a destination. Idempotent.
	EnsureRecord(ctx context.Context, newsletterID string) error

	// Get returns the delivery record for a newsletter.
	// Returns ErrNotFound if no events were ever recorded.
	Get(ctx context.Context, newsletterID string) (*domain.DeliveryRecord, error)
}

// StatusUpdater is the slice of the subscriber registry the unsubscribe
// flow needs.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, status domain.SubscriberStatus) error
}
