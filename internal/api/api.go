// Package api exposes the spotcheck HTTP surface: the reference-arrival
// webhook, mismatch queries and summaries, and the review mutation endpoints.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/legis-watch/spotcheck-cli/internal/model"
	"github.com/legis-watch/spotcheck-cli/internal/store"
)

// Querier is the read side the API needs from the store.
type Querier interface {
	GetMismatches(ctx context.Context, q store.MismatchQuery, page store.LimitOffset) (*store.MismatchPage, error)
	GetMismatch(ctx context.Context, mismatchID string) (*model.DenormMismatch, error)
	StatusSummary(ctx context.Context, q store.MismatchQuery) (*store.StatusSummary, error)
	TypeSummary(ctx context.Context, q store.MismatchQuery) (*store.TypeSummary, error)
	ContentTypeSummary(ctx context.Context, q store.MismatchQuery) (*store.ContentTypeSummary, error)
	RecentRuns(ctx context.Context, limit int) ([]store.RunEntry, error)
}

// Mutator is the validated mutation side. The reconciler implements it.
type Mutator interface {
	SetIgnoreStatus(ctx context.Context, mismatchID string, status model.IgnoreStatus) error
	AddIssueID(ctx context.Context, mismatchID, issueID string) error
	DeleteIssueID(ctx context.Context, mismatchID, issueID string) error
}

// Runner dispatches comparison runs. The run service implements it.
type Runner interface {
	HandleReferenceArrived(ctx context.Context, refType model.ReferenceType, window model.TimeRange) error
}

// Server holds the API dependencies.
type Server struct {
	q      Querier
	mut    Mutator
	runner Runner
	log    *zap.Logger

	// dispatch runs webhook-triggered work; tests override it to run inline.
	dispatch func(fn func())
}

// NewServer creates the API server.
func NewServer(q Querier, mut Mutator, runner Runner) *Server {
	return &Server{
		q:        q,
		mut:      mut,
		runner:   runner,
		log:      zap.L().With(zap.String("component", "api")),
		dispatch: func(fn func()) { go fn() },
	}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/webhook/reference-arrived", s.handleReferenceArrived)

	r.Route("/api", func(r chi.Router) {
		r.Get("/mismatches", s.handleGetMismatches)
		r.Get("/mismatches/{id}", s.handleGetMismatch)
		r.Put("/mismatches/{id}/ignore", s.handleSetIgnore)
		r.Post("/mismatches/{id}/issues/{issueID}", s.handleAddIssue)
		r.Delete("/mismatches/{id}/issues/{issueID}", s.handleDeleteIssue)
		r.Get("/summary/status", s.handleStatusSummary)
		r.Get("/summary/type", s.handleTypeSummary)
		r.Get("/summary/contenttype", s.handleContentTypeSummary)
		r.Get("/runs", s.handleRecentRuns)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
