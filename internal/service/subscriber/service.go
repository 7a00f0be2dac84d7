package subscriber

import (
	"context"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

// Service implements subscriber registry business logic.
type Service struct {
	repo       Repository
	reconciler Reconciler
}

// NewService creates a subscriber service. reconciler may be nil when the
// deployment has no external platform configured.
func NewService(repo Repository, reconciler Reconciler) *Service {
	return &Service{repo: repo, reconciler: reconciler}
}

// List returns the account's subscribers after a best-effort reconciliation
// pass. A reconciliation failure is downgraded to local-only data; the
// external platform being down must never break subscriber listing.
func (s *Service) List(ctx context.Context, accountID string) ([]domain.Subscriber, error) {
	if s.reconciler != nil {
		if _, err := s.reconciler.Reconcile(ctx, accountID); err != nil {
			logger.Warn("reconciliation failed, serving local-only subscriber data",
				"account_id", accountID, "error", err.Error())
		}
	}
	return s.repo.ListByAccount(ctx, accountID)
}

// Active returns the account's active subscribers, the recipient set for a
// dispatch.
func (s *Service) Active(ctx context.Context, accountID string) ([]domain.Subscriber, error) {
	subs, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	active := subs[:0]
	for _, sub := range subs {
		if sub.Status == domain.SubscriberActive {
			active = append(active, sub)
		}
	}
	return active, nil
}

// Find returns one subscriber by normalized email.
func (s *Service) Find(ctx context.Context, accountID, email string) (*domain.Subscriber, error) {
	return s.repo.FindByEmail(ctx, accountID, domain.NormalizeEmail(email))
}

// Unsubscribe transitions a subscriber to unsubscribed by id.
func (s *Service) Unsubscribe(ctx context.Context, id string) error {
	return s.repo.UpdateStatus(ctx, id, domain.SubscriberUnsubscribed)
}
