// Package api exposes the HTTP surface: dispatch and reconciliation
// operations for authenticated clients, plus the public tracking endpoints
// embedded in sent mail.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/mailflow/internal/listsync"
	"github.com/ignite/mailflow/internal/pkg/httputil"
	"github.com/ignite/mailflow/internal/service/dispatch"
	"github.com/ignite/mailflow/internal/service/subscriber"
	"github.com/ignite/mailflow/internal/service/tracking"
)

// Server wires the services into an http.Server.
type Server struct {
	subscribers *subscriber.Service
	dispatcher  *dispatch.Service
	tracker     *tracking.Service
	reconciler  *listsync.Engine

	httpServer *http.Server
}

// NewServer creates the API server listening on the given port.
func NewServer(port int, subscribers *subscriber.Service, dispatcher *dispatch.Service, tracker *tracking.Service, reconciler *listsync.Engine) *Server {
	s := &Server{
		subscribers: subscribers,
		dispatcher:  dispatcher,
		tracker:     tracker,
		reconciler:  reconciler,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// Tracking endpoints are hit from mail clients and browsers anywhere.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	// Public endpoints referenced from sent mail.
	r.Get("/t/open/{data}/{sig}", s.handleOpenPixel)
	r.Get("/t/click/{data}/{sig}", s.handleClickRedirect)
	r.Get("/unsubscribe/{token}", s.handleUnsubscribe)

	// Provider webhooks.
	r.Post("/webhooks/bounce", s.handleBounceWebhook)

	// Account-scoped operations.
	r.Route("/api/v1/accounts/{accountID}", func(r chi.Router) {
		r.Get("/subscribers", s.handleListSubscribers)
		r.Post("/subscribers/reconcile", s.handleReconcile)
		r.Get("/usage", s.handleUsage)
		r.Post("/newsletters/{newsletterID}/dispatch", s.handleDispatch)
		r.Get("/newsletters/{newsletterID}/delivery", s.handleDeliveryRecord)
	})

	return r
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}
