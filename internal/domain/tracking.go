package domain

import "time"

// DeliveryEventType enumerates the recordable engagement events.
type DeliveryEventType string

const (
	EventOpen        DeliveryEventType = "open"
	EventClick       DeliveryEventType = "click"
	EventBounce      DeliveryEventType = "bounce"
	EventUnsubscribe DeliveryEventType = "unsubscribe"
)

// EventDetail is one append-only log entry under a newsletter's delivery
// record. URL is set for clicks; Reason optionally for bounces and
// unsubscribes.
type EventDetail struct {
	SubscriberID string    `json:"subscriber_id"`
	URL          string    `json:"url,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// DeliveryRecord aggregates engagement for one newsletter: four monotonically
// increasing counters, each with its append-only detail list. Created lazily
// on the first event (or empty at send time so events have a destination).
type DeliveryRecord struct {
	NewsletterID string `json:"newsletter_id" db:"newsletter_id"`

	Opens        int `json:"opens" db:"opens"`
	Clicks       int `json:"clicks" db:"clicks"`
	Bounces      int `json:"bounces" db:"bounces"`
	Unsubscribes int `json:"unsubscribes" db:"unsubscribes"`

	OpenDetails        []EventDetail `json:"open_details" db:"open_details"`
	ClickDetails       []EventDetail `json:"click_details" db:"click_details"`
	BounceDetails      []EventDetail `json:"bounce_details" db:"bounce_details"`
	UnsubscribeDetails []EventDetail `json:"unsubscribe_details" db:"unsubscribe_details"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
