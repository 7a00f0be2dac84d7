package subscriber

import (
	"context"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/listsync"
)

// Repository defines the data access contract for the subscriber registry.
// Implementations must be safe for concurrent use: the registry is mutated
// by user-facing CRUD and by the reconciliation engine with no locking,
// so operations must be idempotent and convergent.
type Repository interface {
	// ListByAccount returns every subscriber owned by the account.
	ListByAccount(ctx context.Context, accountID string) ([]domain.Subscriber, error)

	// FindByEmail returns the subscriber with the given (normalized) email.
	// Returns ErrNotFound if no such subscriber exists.
	FindByEmail(ctx context.Context, accountID, email string) (*domain.Subscriber, error)

	// BulkUpsertByEmail inserts or updates subscribers keyed by
	// (account, lower-cased email) in one unordered write.
	BulkUpsertByEmail(ctx context.Context, accountID string, subs []domain.Subscriber) error

	// UpdateStatus transitions a subscriber's status by id, maintaining the
	// unsubscribed-timestamp invariant. Returns ErrNotFound for unknown ids.
	UpdateStatus(ctx context.Context, id string, status domain.SubscriberStatus) error
}

// Reconciler runs one reconciliation pass against the external platform.
// Satisfied by *listsync.Engine.
type Reconciler interface {
	Reconcile(ctx context.Context, accountID string) ([]listsync.RemoteMember, error)
}
