package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

// Options tunes the pipeline. Zero values fall back to the defaults.
type Options struct {
	DailyCap   int           // max emails per account per calendar day
	BatchSize  int           // concurrent sends per batch
	BatchPause time.Duration // pause between batches
}

func (o Options) normalized() Options {
	if o.DailyCap <= 0 {
		o.DailyCap = 100
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.BatchPause <= 0 {
		o.BatchPause = 100 * time.Millisecond
	}
	return o
}

// Request identifies one dispatch job. CleanupDuplicateDrafts opts into
// removing sibling drafts that share the newsletter's title after a
// successful send; it is never implicit because title equality can match
// unrelated newsletters.
type Request struct {
	AccountID              string
	NewsletterID           string
	CleanupDuplicateDrafts bool
}

// Service is the bulk dispatch pipeline.
type Service struct {
	newsletters NewsletterRepo
	recipients  RecipientSource
	usage       UsageCounter
	provider    MailProvider
	events      EventStore
	renderer    *Renderer
	defaults    domain.SenderIdentity
	opts        Options
	now         func() time.Time
}

// NewService creates a dispatch service.
func NewService(
	newsletters NewsletterRepo,
	recipients RecipientSource,
	usage UsageCounter,
	provider MailProvider,
	events EventStore,
	renderer *Renderer,
	defaults domain.SenderIdentity,
	opts Options,
) *Service {
	return &Service{
		newsletters: newsletters,
		recipients:  recipients,
		usage:       usage,
		provider:    provider,
		events:      events,
		renderer:    renderer,
		defaults:    defaults,
		opts:        opts.normalized(),
		now:         time.Now,
	}
}

// Dispatch sends one newsletter to the account's active subscribers.
// It returns the terminal aggregate (success count and failed addresses)
// or one of the package's single-reason errors with zero sends performed
// (except ErrDeliveryFailed, which reports that every send failed).
func (s *Service) Dispatch(ctx context.Context, req Request) (*domain.DispatchResult, error) {
	n, err := s.newsletters.Get(ctx, req.AccountID, req.NewsletterID)
	if err != nil {
		return nil, err
	}
	if n.Status == domain.NewsletterSent {
		return nil, ErrAlreadySent
	}

	identity := domain.SenderIdentity{
		FromName:  n.FromName,
		FromEmail: n.FromEmail,
		ReplyTo:   n.ReplyTo,
	}.Merge(s.defaults)
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSenderConfig, err)
	}

	subs, err := s.recipients.Active(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	recipients := dedupeByEmail(subs)
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	// Quota is reserved for the whole batch atomically before any network
	// call; a batch that would cross the cap is rejected outright, never
	// partially sent. Failed sends are refunded afterwards so the counter
	// ends up equal to actual successes.
	day := s.now()
	ok, err := s.usage.Reserve(ctx, req.AccountID, day, len(recipients), s.opts.DailyCap)
	if err != nil {
		return nil, fmt.Errorf("check daily quota: %w", err)
	}
	if !ok {
		return nil, ErrQuotaExceeded
	}

	outcomes := s.sendBatches(ctx, n, identity, recipients)

	sent := 0
	var failed []string
	for _, o := range outcomes {
		if o.Sent {
			sent++
		} else {
			failed = append(failed, o.Email)
		}
	}

	if sent == 0 {
		if err := s.usage.Release(ctx, req.AccountID, day, len(recipients)); err != nil {
			logger.Error("quota release failed", "account_id", req.AccountID, "error", err.Error())
		}
		return nil, ErrDeliveryFailed
	}
	if len(failed) > 0 {
		if err := s.usage.Release(ctx, req.AccountID, day, len(failed)); err != nil {
			logger.Error("quota refund failed", "account_id", req.AccountID, "error", err.Error())
		}
	}

	s.finalize(ctx, req, n, sent)

	logger.Info("dispatch complete",
		"newsletter_id", n.ID, "account_id", req.AccountID,
		"sent", sent, "failed", len(failed))
	return &domain.DispatchResult{
		NewsletterID:    n.ID,
		SentCount:       sent,
		FailedAddresses: failed,
	}, nil
}

// DispatchScheduled runs Dispatch on behalf of the scheduler. Scheduled
// sends have no caller to report to, so every failure terminates in a log
// line and a nil result.
func (s *Service) DispatchScheduled(ctx context.Context, req Request) *domain.DispatchResult {
	result, err := s.Dispatch(ctx, req)
	if err != nil {
		logger.Error("scheduled dispatch failed",
			"newsletter_id", req.NewsletterID, "account_id", req.AccountID, "error", err.Error())
		return nil
	}
	return result
}

// QuotaUsage reports an account's daily send budget consumption.
type QuotaUsage struct {
	AccountID string `json:"account_id"`
	SentToday int    `json:"sent_today"`
	DailyCap  int    `json:"daily_cap"`
	Remaining int    `json:"remaining"`
}

// Usage returns how much of today's send quota the account has consumed.
// The counter holds only confirmed sends, so Remaining is what a dispatch
// could still reserve right now.
func (s *Service) Usage(ctx context.Context, accountID string) (*QuotaUsage, error) {
	sent, err := s.usage.SentToday(ctx, accountID, s.now())
	if err != nil {
		return nil, fmt.Errorf("read daily usage: %w", err)
	}
	remaining := s.opts.DailyCap - sent
	if remaining < 0 {
		remaining = 0
	}
	return &QuotaUsage{
		AccountID: accountID,
		SentToday: sent,
		DailyCap:  s.opts.DailyCap,
		Remaining: remaining,
	}, nil
}

// sendBatches processes recipients in fixed-size batches. Sends within a
// batch run concurrently with no ordering guarantee; batches are strictly
// sequential with a pause between them to smooth provider-side limits.
func (s *Service) sendBatches(ctx context.Context, n *domain.Newsletter, identity domain.SenderIdentity, recipients []domain.Subscriber) []domain.RecipientOutcome {
	outcomes := make([]domain.RecipientOutcome, len(recipients))

	for start := 0; start < len(recipients); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = s.sendOne(ctx, n, identity, recipients[i])
			}(i)
		}
		wg.Wait()

		if end < len(recipients) {
			time.Sleep(s.opts.BatchPause)
		}
	}
	return outcomes
}

// sendOne renders and sends to a single recipient. Every failure is
// captured in the outcome, never propagated.
func (s *Service) sendOne(ctx context.Context, n *domain.Newsletter, identity domain.SenderIdentity, sub domain.Subscriber) domain.RecipientOutcome {
	outcome := domain.RecipientOutcome{Email: sub.Email}

	html, err := s.renderer.Render(n, sub)
	if err != nil {
		outcome.Error = err.Error()
		logger.Warn("recipient render failed",
			"newsletter_id", n.ID, "email", sub.Email, "error", err.Error())
		return outcome
	}

	_, err = s.provider.Send(ctx, domain.EmailMessage{
		NewsletterID: n.ID,
		SubscriberID: sub.ID,
		To:           sub.Email,
		FromName:     identity.FromName,
		FromEmail:    identity.FromEmail,
		ReplyTo:      identity.ReplyTo,
		Subject:      n.Subject,
		HTMLContent:  html,
	})
	if err != nil {
		outcome.Error = err.Error()
		logger.Warn("recipient send failed",
			"newsletter_id", n.ID, "email", sub.Email, "error", err.Error())
		return outcome
	}

	outcome.Sent = true
	return outcome
}

// finalize applies the post-send effects. The sends already happened, so
// failures here are logged rather than turned into a misleading dispatch
// error.
func (s *Service) finalize(ctx context.Context, req Request, n *domain.Newsletter, sent int) {
	if err := s.newsletters.MarkSent(ctx, req.AccountID, n.ID, sent, s.now()); err != nil {
		logger.Error("mark sent failed", "newsletter_id", n.ID, "error", err.Error())
	}
	if err := s.events.EnsureRecord(ctx, n.ID); err != nil {
		logger.Error("delivery record creation failed", "newsletter_id", n.ID, "error", err.Error())
	}
	if req.CleanupDuplicateDrafts {
		removed, err := s.newsletters.DeleteDraftsWithTitle(ctx, req.AccountID, n.Title, n.ID)
		if err != nil {
			logger.Error("duplicate draft cleanup failed", "newsletter_id", n.ID, "error", err.Error())
		} else if removed > 0 {
			logger.Info("duplicate drafts removed", "newsletter_id", n.ID, "count", removed)
		}
	}
}

// dedupeByEmail keeps the first subscriber for each normalized address.
func dedupeByEmail(subs []domain.Subscriber) []domain.Subscriber {
	seen := make(map[string]struct{}, len(subs))
	out := subs[:0:0]
	for _, sub := range subs {
		key := sub.NormalizedEmail()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sub)
	}
	return out
}
