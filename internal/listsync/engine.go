package listsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
	"github.com/ignite/mailflow/internal/pkg/secrets"
)

// Registry is the subscriber-registry contract the engine consumes.
// Implementations must be safe for concurrent use.
type Registry interface {
	ListByAccount(ctx context.Context, accountID string) ([]domain.Subscriber, error)
	FindByEmail(ctx context.Context, accountID, email string) (*domain.Subscriber, error)
	BulkUpsertByEmail(ctx context.Context, accountID string, subs []domain.Subscriber) error
	UpdateStatus(ctx context.Context, id string, status domain.SubscriberStatus) error
}

// CredentialSource yields an account's (encrypted) platform credential.
// A nil credential means the account never enabled external sync.
type CredentialSource interface {
	Credential(ctx context.Context, accountID string) (*domain.ExternalListCredential, error)
}

// MemberAPI is the slice of the platform client the engine needs.
type MemberAPI interface {
	ListMembers(ctx context.Context) ([]RemoteMember, error)
	PushUnsubscribe(ctx context.Context, email string) error
}

// ClientFactory builds a MemberAPI for one account's decrypted credential.
type ClientFactory func(apiKey, listID string) MemberAPI

// Engine converges the local registry with the remote platform. Divergences
// resolve toward "unsubscribed": opt-out expressed on either side wins, so a
// recipient never receives mail after unsubscribing anywhere.
type Engine struct {
	registry  Registry
	creds     CredentialSource
	box       *secrets.Box
	newClient ClientFactory
	now       func() time.Time
}

// NewEngine creates a reconciliation engine.
func NewEngine(registry Registry, creds CredentialSource, box *secrets.Box, factory ClientFactory) *Engine {
	return &Engine{
		registry:  registry,
		creds:     creds,
		box:       box,
		newClient: factory,
		now:       time.Now,
	}
}

// Reconcile runs one reconciliation pass for the account and returns the
// full remote member list for the caller to merge with local state.
//
// Sync being disabled (no credential, credential disabled, or a credential
// that no longer decrypts) is a normal empty outcome, not an error. A
// failure fetching the remote list propagates; failures on individual
// remote pushes are logged and isolated.
func (e *Engine) Reconcile(ctx context.Context, accountID string) ([]RemoteMember, error) {
	cred, err := e.creds.Credential(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load platform credential: %w", err)
	}
	if cred == nil || !cred.Enabled {
		return nil, nil
	}

	apiKey, err := e.box.Open(cred.APIKeyEncrypted)
	if err != nil {
		logger.Warn("platform credential failed to decrypt; skipping external sync",
			"account_id", accountID, "error", err.Error())
		return nil, nil
	}

	client := e.newClient(apiKey, cred.ListID)

	members, err := client.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch remote member list: %w", err)
	}

	locals, err := e.registry.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list local subscribers: %w", err)
	}
	byEmail := make(map[string]*domain.Subscriber, len(locals))
	for i := range locals {
		byEmail[locals[i].NormalizedEmail()] = &locals[i]
	}

	upserts, pushes := e.classify(accountID, members, byEmail)

	if len(upserts) > 0 {
		if err := e.registry.BulkUpsertByEmail(ctx, accountID, upserts); err != nil {
			return nil, fmt.Errorf("apply local reconciliation writes: %w", err)
		}
	}

	// Remote pushes run strictly one at a time so behavior under the
	// platform's rate limiter stays predictable. One failed push never
	// aborts the rest.
	for _, email := range pushes {
		if err := client.PushUnsubscribe(ctx, email); err != nil {
			logger.Warn("remote unsubscribe push failed",
				"account_id", accountID, "email", email, "error", err.Error())
		}
	}

	logger.Info("reconciliation pass complete",
		"account_id", accountID,
		"remote_members", len(members),
		"local_writes", len(upserts),
		"remote_pushes", len(pushes))
	return members, nil
}

// classify computes the reconciliation delta: local upserts and remote
// unsubscribe pushes. It never re-subscribes either side.
func (e *Engine) classify(accountID string, members []RemoteMember, byEmail map[string]*domain.Subscriber) (upserts []domain.Subscriber, pushes []string) {
	now := e.now()

	for _, m := range members {
		// Key by normalized address: MemberAPI implementations are not
		// required to lower-case what the platform returns.
		email := domain.NormalizeEmail(m.Email)
		local, exists := byEmail[email]

		switch {
		case exists && local.Status == domain.SubscriberUnsubscribed && m.Status == RemoteSubscribed:
			// The remote side is stale; push our opt-out, leave local alone.
			pushes = append(pushes, email)

		case exists && local.Status != domain.SubscriberUnsubscribed && m.Status == RemoteUnsubscribed:
			// The local side is stale.
			sub := *local
			sub.Name = m.Name
			sub.Source = domain.SourceExternalSync
			sub.MarkUnsubscribed(now)
			upserts = append(upserts, sub)

		case !exists:
			upserts = append(upserts, e.subscriberFromRemote(accountID, m, now))

		default:
			// Status already agrees.
		}
	}
	return upserts, pushes
}

func (e *Engine) subscriberFromRemote(accountID string, m RemoteMember, now time.Time) domain.Subscriber {
	sub := domain.Subscriber{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		Email:        domain.NormalizeEmail(m.Email),
		Name:         m.Name,
		Status:       domain.SubscriberActive,
		Source:       domain.SourceExternalSync,
		SubscribedAt: m.SignupAt,
	}
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = now
	}
	if m.Status == RemoteUnsubscribed {
		sub.MarkUnsubscribed(now)
	}
	return sub
}
