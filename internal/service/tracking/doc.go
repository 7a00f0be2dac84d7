// Package tracking implements delivery tracking: signed tracking URLs and
// unsubscribe tokens, and the recording of open/click/bounce/unsubscribe
// events keyed by newsletter.
//
// Event recording is idempotent-upsert shaped: the counter increment and the
// detail append happen atomically, creating the newsletter's record lazily
// on first event. Token verification fails closed: a malformed or badly
// signed token is reported as invalid, never as a panic or a 500.
package tracking
