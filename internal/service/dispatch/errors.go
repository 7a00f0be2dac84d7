package dispatch

import "errors"

// Sentinel errors for the dispatch pipeline. Each maps to one user-visible
// single-reason failure; raw provider errors never reach the caller.
var (
	ErrNotFound       = errors.New("newsletter not found")
	ErrAlreadySent    = errors.New("newsletter already sent")
	ErrSenderConfig   = errors.New("sender identity is not configured")
	ErrNoRecipients   = errors.New("no active recipients")
	ErrQuotaExceeded  = errors.New("daily sending quota exceeded")
	ErrDeliveryFailed = errors.New("delivery failed for all recipients")
)
