package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

// Service records delivery events and drives the public unsubscribe flow.
type Service struct {
	events      Repository
	subscribers StatusUpdater
	tokens      *Tokens
	now         func() time.Time
}

// NewService creates a tracking service.
func NewService(events Repository, subscribers StatusUpdater, tokens *Tokens) *Service {
	return &Service{
		events:      events,
		subscribers: subscribers,
		tokens:      tokens,
		now:         time.Now,
	}
}

// Tokens exposes the token codec for URL building at send time.
func (s *Service) Tokens() *Tokens { return s.tokens }

// TrackOpen records one open event.
func (s *Service) TrackOpen(ctx context.Context, newsletterID, subscriberID string) error {
	return s.events.RecordEvent(ctx, newsletterID, domain.EventOpen, domain.EventDetail{
		SubscriberID: subscriberID,
		At:           s.now(),
	})
}

// TrackClick records one click event with the clicked URL.
func (s *Service) TrackClick(ctx context.Context, newsletterID, subscriberID, url string) error {
	return s.events.RecordEvent(ctx, newsletterID, domain.EventClick, domain.EventDetail{
		SubscriberID: subscriberID,
		URL:          url,
		At:           s.now(),
	})
}

// TrackBounce records one bounce event with an optional reason.
func (s *Service) TrackBounce(ctx context.Context, newsletterID, subscriberID, reason string) error {
	return s.events.RecordEvent(ctx, newsletterID, domain.EventBounce, domain.EventDetail{
		SubscriberID: subscriberID,
		Reason:       reason,
		At:           s.now(),
	})
}

// TrackUnsubscribe records one unsubscribe event with an optional reason.
func (s *Service) TrackUnsubscribe(ctx context.Context, newsletterID, subscriberID, reason string) error {
	return s.events.RecordEvent(ctx, newsletterID, domain.EventUnsubscribe, domain.EventDetail{
		SubscriberID: subscriberID,
		Reason:       reason,
		At:           s.now(),
	})
}

// Unsubscribe resolves a public unsubscribe token, transitions the
// subscriber and records the event. Malformed tokens and unknown
// subscribers both surface as "not found" to the public endpoint; the
// registry update is what must succeed, event recording is best-effort.
func (s *Service) Unsubscribe(ctx context.Context, token, newsletterID, reason string) (string, error) {
	subscriberID, err := s.tokens.ResolveUnsubscribeToken(token)
	if err != nil {
		return "", err
	}

	if err := s.subscribers.UpdateStatus(ctx, subscriberID, domain.SubscriberUnsubscribed); err != nil {
		return "", fmt.Errorf("unsubscribe %s: %w", subscriberID, err)
	}

	if newsletterID != "" {
		if err := s.TrackUnsubscribe(ctx, newsletterID, subscriberID, reason); err != nil {
			logger.Warn("unsubscribe event recording failed",
				"newsletter_id", newsletterID, "subscriber_id", subscriberID, "error", err.Error())
		}
	}
	return subscriberID, nil
}

// Record returns the delivery record for a newsletter.
func (s *Service) Record(ctx context.Context, newsletterID string) (*domain.DeliveryRecord, error) {
	return s.events.Get(ctx, newsletterID)
}
