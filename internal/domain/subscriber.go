package domain

import (
	"strings"
	"time"
)

// SubscriberStatus enumerates the states a subscriber can be in.
type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
)

// SubscriberSource records how a subscriber record entered the registry.
type SubscriberSource string

const (
	SourceManual       SubscriberSource = "manual"
	SourceImported     SubscriberSource = "imported"
	SourceExternalSync SubscriberSource = "external_sync"
)

// Subscriber is a single email recipient owned by one account. Unsubscribing
// is a status transition, never a physical delete. Whenever Status is
// unsubscribed, UnsubscribedAt must be non-nil.
type Subscriber struct {
	ID        string           `json:"id" db:"id"`
	AccountID string           `json:"account_id" db:"account_id"`
	Email     string           `json:"email" db:"email"`
	Name      string           `json:"name" db:"name"`
	Status    SubscriberStatus `json:"status" db:"status"`
	Source    SubscriberSource `json:"source" db:"source"`

	SubscribedAt   time.Time  `json:"subscribed_at" db:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at" db:"unsubscribed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// NormalizedEmail returns the email lowered and trimmed, the form under which
// uniqueness per account is enforced and reconciliation matching happens.
func (s *Subscriber) NormalizedEmail() string {
	return NormalizeEmail(s.Email)
}

// MarkUnsubscribed transitions the subscriber to unsubscribed, maintaining
// the status/timestamp invariant. Idempotent: an already-unsubscribed
// subscriber keeps its original timestamp.
func (s *Subscriber) MarkUnsubscribed(at time.Time) {
	if s.Status == SubscriberUnsubscribed && s.UnsubscribedAt != nil {
		return
	}
	s.Status = SubscriberUnsubscribed
	s.UnsubscribedAt = &at
}

// NormalizeEmail lowers and trims an address for matching and storage keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
