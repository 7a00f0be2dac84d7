// Package dispatch implements the bulk-send pipeline: it fans one
// newsletter out to the account's active subscribers under the daily
// sending quota, isolating per-recipient failures and leaving a
// well-defined terminal state behind regardless of partial failure.
//
// Preconditions (newsletter not yet sent, valid sender identity, at least
// one recipient, quota headroom for the whole batch) are checked before any
// network call. Sends run in fixed-size concurrent batches with a short
// pause between batches; one recipient failing never aborts the job, and
// partial failure is reported as data. Only a job with zero successes is an
// error.
package dispatch
