package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/legis-watch/spotcheck-cli/internal/model"
	"github.com/legis-watch/spotcheck-cli/internal/store"
)

type referenceArrivedRequest struct {
	RefType string    `json:"ref_type"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
}

// handleReferenceArrived accepts a reference-arrival event and dispatches the
// comparison asynchronously. The caller gets 202 as soon as the payload
// validates.
func (s *Server) handleReferenceArrived(w http.ResponseWriter, r *http.Request) {
	var req referenceArrivedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	refType, err := model.ParseReferenceType(req.RefType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown ref_type")
		return
	}
	window := model.TimeRange{Start: req.From, End: req.To}
	if window.Start.IsZero() && window.End.IsZero() {
		window = model.AllTime()
	}
	if !window.End.After(window.Start) {
		writeError(w, http.StatusBadRequest, "to must be after from")
		return
	}

	s.dispatch(func() {
		// Detached from the request; the run outlives the HTTP exchange.
		if err := s.runner.HandleReferenceArrived(context.Background(), refType, window); err != nil {
			s.log.Error("webhook dispatch failed",
				zap.String("ref_type", string(refType)), zap.Error(err))
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"ref_type": string(refType),
	})
}

func (s *Server) handleGetMismatches(w http.ResponseWriter, r *http.Request) {
	q, page, err := parseMismatchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.q.GetMismatches(r.Context(), q, page)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetMismatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.q.GetMismatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type ignoreRequest struct {
	Kind  string     `json:"kind"`
	Until *time.Time `json:"until,omitempty"`
}

func (s *Server) handleSetIgnore(w http.ResponseWriter, r *http.Request) {
	var req ignoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	status := model.IgnoreStatus{Kind: model.IgnoreKind(req.Kind)}
	if req.Until != nil {
		status.Until = *req.Until
	}
	if err := s.mut.SetIgnoreStatus(r.Context(), chi.URLParam(r, "id"), status); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddIssue(w http.ResponseWriter, r *http.Request) {
	err := s.mut.AddIssueID(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "issueID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteIssue(w http.ResponseWriter, r *http.Request) {
	err := s.mut.DeleteIssueID(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "issueID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatusSummary(w http.ResponseWriter, r *http.Request) {
	q, _, err := parseMismatchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.q.StatusSummary(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleTypeSummary(w http.ResponseWriter, r *http.Request) {
	q, _, err := parseMismatchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.q.TypeSummary(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleContentTypeSummary(w http.ResponseWriter, r *http.Request) {
	q, _, err := parseMismatchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.q.ContentTypeSummary(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.q.RecentRuns(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// parseMismatchQuery reads the shared filter params: from/to (RFC3339),
// source, content_type, state, ignore, type (comma-separated lists), plus
// limit/offset pagination.
func parseMismatchQuery(r *http.Request) (store.MismatchQuery, store.LimitOffset, error) {
	var q store.MismatchQuery
	params := r.URL.Query()

	if v := params.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, store.All, eris.New("from must be RFC3339")
		}
		q.ObservedFrom = ts
	}
	if v := params.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, store.All, eris.New("to must be RFC3339")
		}
		q.ObservedTo = ts
	}
	q.Source = model.DataSource(params.Get("source"))
	for _, v := range splitList(params.Get("content_type")) {
		q.ContentTypes = append(q.ContentTypes, model.ContentType(v))
	}
	for _, v := range splitList(params.Get("state")) {
		q.States = append(q.States, model.MismatchState(v))
	}
	for _, v := range splitList(params.Get("ignore")) {
		q.IgnoreKinds = append(q.IgnoreKinds, model.IgnoreKind(v))
	}
	for _, v := range splitList(params.Get("type")) {
		q.Types = append(q.Types, model.MismatchType(v))
	}

	page := store.All
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return q, page, eris.New("limit must be a positive integer")
		}
		page.Limit = n
	}
	if v := params.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, page, eris.New("offset must be a non-negative integer")
		}
		page.Offset = n
	}
	return q, page, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case model.IsInvalidArgument(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case model.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
