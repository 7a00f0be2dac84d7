package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailflow/internal/pkg/httputil"
)

// handleListSubscribers returns the account's subscribers. The service runs
// a reconciliation pass first, so the listing reflects the external platform
// when one is connected.
func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := s.subscribers.List(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"subscribers": subs,
		"total":       len(subs),
	})
}

// handleReconcile forces a reconciliation pass against the external list
// platform and reports how many remote members were seen.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	members, err := s.reconciler.Reconcile(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		httputil.Error(w, http.StatusBadGateway, "reconciliation failed: "+err.Error())
		return
	}
	httputil.OK(w, map[string]any{
		"remote_members": len(members),
	})
}
