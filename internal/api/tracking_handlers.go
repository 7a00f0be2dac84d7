package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailflow/internal/pkg/logger"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

// handleOpenPixel records an open and serves the pixel. The pixel is served
// no matter what: a broken token or a storage failure must never surface as
// a broken image in a recipient's mail client.
func (s *Server) handleOpenPixel(w http.ResponseWriter, r *http.Request) {
	defer servePixel(w)

	newsletterID, subscriberID, err := s.tracker.Tokens().DecodeOpen(
		chi.URLParam(r, "data"), chi.URLParam(r, "sig"))
	if err != nil {
		return
	}
	if err := s.tracker.TrackOpen(r.Context(), newsletterID, subscriberID); err != nil {
		logger.Warn("open event recording failed",
			"newsletter_id", newsletterID, "error", err.Error())
	}
}

// handleClickRedirect records a click and redirects to the wrapped target.
// The target is inside the signed payload, so a valid signature guarantees
// the redirect goes where the sent mail pointed.
func (s *Server) handleClickRedirect(w http.ResponseWriter, r *http.Request) {
	newsletterID, subscriberID, target, err := s.tracker.Tokens().DecodeClick(
		chi.URLParam(r, "data"), chi.URLParam(r, "sig"))
	if err != nil {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}

	if err := s.tracker.TrackClick(r.Context(), newsletterID, subscriberID, target); err != nil {
		logger.Warn("click event recording failed",
			"newsletter_id", newsletterID, "error", err.Error())
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleUnsubscribe serves the one-click unsubscribe link. Invalid tokens
// fail closed as not found, never revealing whether a subscriber exists.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	newsletterID := r.URL.Query().Get("n")

	if _, err := s.tracker.Unsubscribe(r.Context(), token, newsletterID, "link"); err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html><html><body><p>You have been unsubscribed.</p></body></html>`))
}
