package domain

import "time"

// EmailMessage is the fully-resolved message ready for a mail provider.
// By the time a message reaches this struct, all personalization, tracking
// injection, and unsubscribe-footer generation is complete.
type EmailMessage struct {
	NewsletterID string `json:"newsletter_id"`
	SubscriberID string `json:"subscriber_id"`
	To           string `json:"to"`
	FromName     string `json:"from_name"`
	FromEmail    string `json:"from_email"`
	ReplyTo      string `json:"reply_to"`
	Subject      string `json:"subject"`
	HTMLContent  string `json:"html_content"`
}

// SendResult is returned by a mail provider after attempting delivery.
type SendResult struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}

// RecipientOutcome records the terminal state of one recipient within a
// dispatch job.
type RecipientOutcome struct {
	Email string `json:"email"`
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// DispatchResult is the aggregate a dispatch job leaves behind: how many
// recipients were sent and which addresses failed. Partial failure is data,
// not an error.
type DispatchResult struct {
	NewsletterID    string   `json:"newsletter_id"`
	SentCount       int      `json:"sent_count"`
	FailedAddresses []string `json:"failed_addresses,omitempty"`
}
