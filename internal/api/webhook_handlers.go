package api

import (
	"net/http"

	"github.com/ignite/mailflow/internal/pkg/httputil"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

// bounceNotification mirrors the SES event publishing payload. The message
// tags attached at send time carry the ids back to us.
type bounceNotification struct {
	EventType string `json:"eventType"`
	Bounce    struct {
		BounceType        string `json:"bounceType"`
		BouncedRecipients []struct {
			EmailAddress   string `json:"emailAddress"`
			DiagnosticCode string `json:"diagnosticCode"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Mail struct {
		Tags map[string][]string `json:"tags"`
	} `json:"mail"`
}

func firstTag(tags map[string][]string, key string) string {
	if vals := tags[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// handleBounceWebhook ingests provider bounce notifications. The provider
// retries on non-2xx, so anything we cannot use is acknowledged and logged
// rather than rejected.
func (s *Server) handleBounceWebhook(w http.ResponseWriter, r *http.Request) {
	var note bounceNotification
	if !httputil.Decode(w, r, &note) {
		return
	}
	if note.EventType != "Bounce" {
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}

	newsletterID := firstTag(note.Mail.Tags, "newsletter_id")
	subscriberID := firstTag(note.Mail.Tags, "subscriber_id")
	if newsletterID == "" || subscriberID == "" {
		logger.Warn("bounce notification missing message tags")
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}

	reason := note.Bounce.BounceType
	if len(note.Bounce.BouncedRecipients) > 0 && note.Bounce.BouncedRecipients[0].DiagnosticCode != "" {
		reason = note.Bounce.BouncedRecipients[0].DiagnosticCode
	}

	if err := s.tracker.TrackBounce(r.Context(), newsletterID, subscriberID, reason); err != nil {
		logger.Error("bounce event recording failed",
			"newsletter_id", newsletterID, "error", err.Error())
	}
	httputil.Accepted(w, map[string]string{"status": "recorded"})
}
