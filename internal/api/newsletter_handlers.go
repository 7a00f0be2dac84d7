package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailflow/internal/pkg/httputil"
	"github.com/ignite/mailflow/internal/service/dispatch"
	"github.com/ignite/mailflow/internal/service/tracking"
)

type dispatchRequest struct {
	CleanupDuplicateDrafts bool `json:"cleanup_duplicate_drafts"`
}

// handleDispatch runs the send pipeline for one newsletter. Partial failure
// returns 200 with the failed addresses listed; only a total failure or a
// precondition is an error status.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var body dispatchRequest
	if r.ContentLength > 0 && !httputil.Decode(w, r, &body) {
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), dispatch.Request{
		AccountID:              chi.URLParam(r, "accountID"),
		NewsletterID:           chi.URLParam(r, "newsletterID"),
		CleanupDuplicateDrafts: body.CleanupDuplicateDrafts,
	})
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrNotFound):
			httputil.NotFound(w, "newsletter not found")
		case errors.Is(err, dispatch.ErrAlreadySent):
			httputil.Conflict(w, "newsletter already sent")
		case errors.Is(err, dispatch.ErrQuotaExceeded):
			httputil.TooManyRequests(w, "daily send quota exceeded")
		case errors.Is(err, dispatch.ErrNoRecipients):
			httputil.BadRequest(w, "no active subscribers to send to")
		case errors.Is(err, dispatch.ErrSenderConfig):
			httputil.BadRequest(w, err.Error())
		case errors.Is(err, dispatch.ErrDeliveryFailed):
			httputil.Error(w, http.StatusBadGateway, "delivery failed for every recipient")
		default:
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.OK(w, result)
}

// handleUsage reports the account's daily send quota consumption.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.dispatcher.Usage(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, usage)
}

// handleDeliveryRecord returns the engagement counters and details for one
// newsletter.
func (s *Server) handleDeliveryRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.tracker.Record(r.Context(), chi.URLParam(r, "newsletterID"))
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			httputil.NotFound(w, "no delivery record for newsletter")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, rec)
}
