package domain

import (
	"fmt"
	"net/mail"
	"time"
)

// NewsletterStatus enumerates newsletter lifecycle states. Sent is terminal.
type NewsletterStatus string

const (
	NewsletterDraft     NewsletterStatus = "draft"
	NewsletterScheduled NewsletterStatus = "scheduled"
	NewsletterSent      NewsletterStatus = "sent"
)

// Newsletter is one issue to be dispatched to an account's subscribers.
type Newsletter struct {
	ID          string           `json:"id" db:"id"`
	AccountID   string           `json:"account_id" db:"account_id"`
	Title       string           `json:"title" db:"title"`
	Subject     string           `json:"subject" db:"subject"`
	HTMLContent string           `json:"html_content" db:"html_content"`
	Status      NewsletterStatus `json:"status" db:"status"`

	// Per-newsletter sender overrides; empty fields fall back to the
	// account's default sender identity.
	FromName  string `json:"from_name" db:"from_name"`
	FromEmail string `json:"from_email" db:"from_email"`
	ReplyTo   string `json:"reply_to" db:"reply_to"`

	ScheduledAt *time.Time `json:"scheduled_at" db:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at" db:"sent_at"`
	SentTo      int        `json:"sent_to" db:"sent_to"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SenderIdentity is the resolved from/reply addressing for a dispatch.
// Each field is independently required.
type SenderIdentity struct {
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
	ReplyTo   string `json:"reply_to"`
}

// Validate checks that every field is present and that the addresses parse.
func (si SenderIdentity) Validate() error {
	if si.FromName == "" {
		return fmt.Errorf("sender identity: from name is required")
	}
	if si.FromEmail == "" {
		return fmt.Errorf("sender identity: from email is required")
	}
	if _, err := mail.ParseAddress(si.FromEmail); err != nil {
		return fmt.Errorf("sender identity: invalid from email %q", si.FromEmail)
	}
	if si.ReplyTo == "" {
		return fmt.Errorf("sender identity: reply-to is required")
	}
	if _, err := mail.ParseAddress(si.ReplyTo); err != nil {
		return fmt.Errorf("sender identity: invalid reply-to %q", si.ReplyTo)
	}
	return nil
}

// Merge fills empty fields from the given defaults and returns the result.
func (si SenderIdentity) Merge(defaults SenderIdentity) SenderIdentity {
	out := si
	if out.FromName == "" {
		out.FromName = defaults.FromName
	}
	if out.FromEmail == "" {
		out.FromEmail = defaults.FromEmail
	}
	if out.ReplyTo == "" {
		out.ReplyTo = defaults.ReplyTo
	}
	return out
}

// ExternalListCredential holds an account's access to the external
// list-management platform. The API key is stored encrypted at rest; a
// decryption failure downgrades to "sync disabled" for the account.
type ExternalListCredential struct {
	AccountID       string `json:"account_id" db:"account_id"`
	ListID          string `json:"list_id" db:"list_id"`
	APIKeyEncrypted string `json:"-" db:"api_key_encrypted"`
	Enabled         bool   `json:"enabled" db:"enabled"`
}
